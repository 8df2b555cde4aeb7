package analysis

// Analyzer runs the full scoring pipeline over fetched snapshots. It
// holds no mutable state, so one instance is safe for concurrent use
// across requests.
type Analyzer struct{}

// NewAnalyzer validates the weight table and returns an analyzer.
// A bad weight table is a startup configuration error.
func NewAnalyzer() (*Analyzer, error) {
	if err := ValidateWeights(); err != nil {
		return nil, err
	}
	return &Analyzer{}, nil
}

// Analyze scores one snapshot: detect signals, score each dimension,
// aggregate. Pure with respect to the snapshot, so identical
// snapshots produce identical results.
func (a *Analyzer) Analyze(snap RepositorySnapshot) AnalysisResult {
	signals := DetectSignals(snap)
	dims := ScoreDimensions(signals)
	return Aggregate(snap, signals, dims)
}
