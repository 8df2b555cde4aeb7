package analysis

// Dimension names, matching the keys of the weight table.
const (
	DimensionMarketDemand      = "market_demand"
	DimensionMonetizationReady = "monetization_ready"
	DimensionTechStackModern   = "tech_stack_modern"
	DimensionDeploymentReady   = "deployment_ready"
	DimensionUserTraction      = "user_traction"
	DimensionCodeQuality       = "code_quality"
	DimensionStrategicValue    = "strategic_value"
)

// dimensionRule declares one dimension's formula and the signals it
// reads. The table is static so each dimension can change and be
// tested without touching the others.
type dimensionRule struct {
	name    string
	signals []string
	score   func(SignalSet) float64
}

var dimensionTable = []dimensionRule{
	{
		name:    DimensionMarketDemand,
		signals: []string{SignalStars, SignalTrendingKeywords, SignalReadmeBytes},
		score:   scoreMarketDemand,
	},
	{
		name:    DimensionMonetizationReady,
		signals: []string{SignalMonetizationPaths, SignalPaymentConfigFiles, SignalPaymentLibrary},
		score:   scoreMonetizationReady,
	},
	{
		name:    DimensionTechStackModern,
		signals: []string{SignalTechCategoryHits, SignalModernConfigFiles},
		score:   scoreTechStackModern,
	},
	{
		name:    DimensionDeploymentReady,
		signals: []string{SignalDockerfile, SignalCIConfig, SignalEnvExample, SignalBuildScript, SignalDocsPaths},
		score:   scoreDeploymentReady,
	},
	{
		name:    DimensionUserTraction,
		signals: []string{SignalStars, SignalDaysSinceUpdate},
		score:   scoreUserTraction,
	},
	{
		name:    DimensionCodeQuality,
		signals: []string{SignalTests, SignalLintConfig, SignalTypeScriptConfig},
		score:   scoreCodeQuality,
	},
	{
		name:    DimensionStrategicValue,
		signals: []string{SignalStrategicKeywords},
		score:   scoreStrategicValue,
	},
}

// ScoreDimensions evaluates every dimension rule against the signal
// set. Each score is clamped to [0,100].
func ScoreDimensions(signals SignalSet) Dimensions {
	scores := make(map[string]float64, len(dimensionTable))
	for _, rule := range dimensionTable {
		scores[rule.name] = clampScore(rule.score(signals))
	}
	return Dimensions{
		MarketDemand:      scores[DimensionMarketDemand],
		MonetizationReady: scores[DimensionMonetizationReady],
		TechStackModern:   scores[DimensionTechStackModern],
		DeploymentReady:   scores[DimensionDeploymentReady],
		UserTraction:      scores[DimensionUserTraction],
		CodeQuality:       scores[DimensionCodeQuality],
		StrategicValue:    scores[DimensionStrategicValue],
	}
}

func scoreMarketDemand(s SignalSet) float64 {
	score := 0.0

	stars := s.Count(SignalStars)
	switch {
	case stars > 100:
		score += 40
	case stars > 50:
		score += 30
	case stars > 10:
		score += 20
	case stars > 0:
		score += 10
	}

	score += 10 * s.Count(SignalTrendingKeywords)

	readme := s.Count(SignalReadmeBytes)
	switch {
	case readme > 1000:
		score += 20
	case readme > 200:
		score += 10
	}

	return score
}

func scoreMonetizationReady(s SignalSet) float64 {
	score := 0.0

	pathScore := s.Count(SignalMonetizationPaths) * 10
	if pathScore > 50 {
		pathScore = 50
	}
	score += pathScore

	score += 15 * s.Count(SignalPaymentConfigFiles)

	if s.Flag(SignalPaymentLibrary) {
		score += 30
	}

	return score
}

func scoreTechStackModern(s SignalSet) float64 {
	return 10*s.Count(SignalTechCategoryHits) + 15*s.Count(SignalModernConfigFiles)
}

func scoreDeploymentReady(s SignalSet) float64 {
	score := 0.0
	if s.Flag(SignalDockerfile) {
		score += 30
	}
	if s.Flag(SignalCIConfig) {
		score += 20
	}
	if s.Flag(SignalEnvExample) {
		score += 15
	}
	if s.Flag(SignalBuildScript) {
		score += 20
	}
	score += 5 * s.Count(SignalDocsPaths)
	return score
}

func scoreUserTraction(s SignalSet) float64 {
	score := 0.0

	stars := s.Count(SignalStars)
	switch {
	case stars > 1000:
		score += 50
	case stars > 100:
		score += 30
	case stars > 10:
		score += 15
	}

	// Negative means the update timestamp is unknown; no recency credit.
	days := s.Count(SignalDaysSinceUpdate)
	switch {
	case days < 0:
	case days < 7:
		score += 30
	case days < 30:
		score += 20
	case days < 90:
		score += 10
	}

	return score
}

func scoreCodeQuality(s SignalSet) float64 {
	score := 50.0
	if s.Flag(SignalTests) {
		score += 20
	}
	if s.Flag(SignalLintConfig) {
		score += 10
	}
	if s.Flag(SignalTypeScriptConfig) {
		score += 15
	}
	return score
}

func scoreStrategicValue(s SignalSet) float64 {
	return 50 + 10*s.Count(SignalStrategicKeywords)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
