package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repoyield/repoyield/internal/adapters"
	"github.com/repoyield/repoyield/internal/analysis"
	"github.com/repoyield/repoyield/internal/database"
	"github.com/repoyield/repoyield/internal/monitoring"
	"github.com/repoyield/repoyield/internal/report"
	"github.com/repoyield/repoyield/internal/trends"
)

// RepoSource provides repository discovery and metadata fetching
type RepoSource interface {
	ListOwnerRepos(ctx context.Context, owner string) ([]adapters.RepoRef, error)
	FetchSnapshot(ctx context.Context, owner, repo string) (analysis.RepositorySnapshot, error)
}

// DigestSender delivers the rendered digest email
type DigestSender interface {
	IsConfigured() bool
	Send(ctx context.Context, msg adapters.Message) error
}

// Config holds fleet scan settings
type Config struct {
	Owner    string
	MaxRepos int
	Workers  int
	StateDir string
}

// DefaultConfig returns scan defaults for an owner
func DefaultConfig(owner string) Config {
	return Config{
		Owner:    owner,
		MaxRepos: 10,
		Workers:  4,
		StateDir: ".cache",
	}
}

// Summary describes one completed fleet scan
type Summary struct {
	Owner        string                    `json:"owner"`
	ReposScanned int                       `json:"repos_scanned"`
	ReposFailed  int                       `json:"repos_failed"`
	TotalValue   int                       `json:"total_value"`
	TopRepo      string                    `json:"top_repo"`
	TopScore     float64                   `json:"top_score"`
	DigestSent   bool                      `json:"digest_sent"`
	Duration     time.Duration             `json:"duration"`
	Results      []analysis.AnalysisResult `json:"results"`
	Issues       []string                  `json:"issues,omitempty"`
}

// Workflow orchestrates the daily fleet scan
type Workflow struct {
	config   Config
	source   RepoSource
	analyzer *analysis.Analyzer
	trends   *trends.Tracker
	mail     DigestSender
	repo     *database.Repository
	logger   *monitoring.Logger
}

// New creates a fleet scan workflow. The database repository may be nil
// when persistence is not wanted.
func New(config Config, source RepoSource, analyzer *analysis.Analyzer, tracker *trends.Tracker, mail DigestSender, repo *database.Repository, logger *monitoring.Logger) *Workflow {
	if config.MaxRepos <= 0 {
		config.MaxRepos = 10
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}

	return &Workflow{
		config:   config,
		source:   source,
		analyzer: analyzer,
		trends:   tracker,
		mail:     mail,
		repo:     repo,
		logger:   logger,
	}
}

type scanned struct {
	ref    adapters.RepoRef
	result analysis.AnalysisResult
}

// Run executes one fleet scan: discover, analyze, rank, persist,
// recommend, and deliver the digest.
func (w *Workflow) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	refs, err := w.source.ListOwnerRepos(ctx, w.config.Owner)
	if err != nil {
		w.recordRun(&Summary{Owner: w.config.Owner}, started, "failed", err.Error())
		return nil, fmt.Errorf("repository discovery failed: %w", err)
	}

	candidates := make([]adapters.RepoRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Fork || ref.Archived {
			continue
		}
		candidates = append(candidates, ref)
		if len(candidates) == w.config.MaxRepos {
			break
		}
	}

	results, issues := w.analyzeAll(ctx, candidates)

	sort.Slice(results, func(i, j int) bool {
		return results[i].result.TotalScore > results[j].result.TotalScore
	})

	summary := &Summary{
		Owner:        w.config.Owner,
		ReposScanned: len(results),
		ReposFailed:  len(issues),
		Issues:       issues,
		Duration:     time.Since(started),
	}

	for _, s := range results {
		summary.TotalValue += s.result.EstimatedValue
		summary.Results = append(summary.Results, s.result)
	}
	if len(results) > 0 {
		summary.TopRepo = results[0].result.Repository
		summary.TopScore = results[0].result.TotalScore
	}

	w.persistAnalyses(results)

	summary.DigestSent = w.sendDigest(ctx, summary, results)
	summary.Duration = time.Since(started)

	w.recordRun(summary, started, "completed", "")
	w.saveState(summary)

	if w.logger != nil {
		w.logger.WorkflowLogger(summary.Owner, summary.ReposScanned, summary.ReposFailed,
			summary.TotalValue, summary.Duration, summary.DigestSent)
	}

	return summary, nil
}

// analyzeAll fans candidates out to a bounded worker pool. Analysis of
// each repository is independent, so completion order does not matter.
func (w *Workflow) analyzeAll(ctx context.Context, candidates []adapters.RepoRef) ([]scanned, []string) {
	jobs := make(chan adapters.RepoRef)

	var mu sync.Mutex
	var results []scanned
	var issues []string

	var wg sync.WaitGroup
	for i := 0; i < w.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				snap, err := w.source.FetchSnapshot(ctx, ref.Owner, ref.Name)
				if err != nil {
					mu.Lock()
					issues = append(issues, fmt.Sprintf("%s/%s: %v", ref.Owner, ref.Name, err))
					mu.Unlock()
					continue
				}

				result := w.analyzer.Analyze(snap)

				mu.Lock()
				results = append(results, scanned{ref: ref, result: result})
				mu.Unlock()
			}
		}()
	}

	for _, ref := range candidates {
		jobs <- ref
	}
	close(jobs)
	wg.Wait()

	return results, issues
}

func (w *Workflow) persistAnalyses(results []scanned) {
	if w.repo == nil {
		return
	}

	for _, s := range results {
		stored, err := database.NewStoredAnalysis("", s.ref.Owner, s.ref.Name, s.result)
		if err != nil {
			continue
		}
		if err := w.repo.SaveAnalysis(stored); err != nil && w.logger != nil {
			w.logger.Warn("Failed to persist analysis", "repository", s.result.Repository, "error", err.Error())
		}
	}
}

// sendDigest renders and delivers the digest. Reports true only when
// the message went out through a configured mail provider.
func (w *Workflow) sendDigest(ctx context.Context, summary *Summary, results []scanned) bool {
	if w.mail == nil {
		return false
	}

	digest := w.buildDigest(summary, results)

	msg, err := report.Render(digest)
	if err != nil {
		if w.logger != nil {
			w.logger.Error("Failed to render digest", "error", err.Error())
		}
		return false
	}

	if err := w.mail.Send(ctx, msg); err != nil {
		if w.logger != nil {
			w.logger.Error("Failed to send digest", "error", err.Error())
		}
		return false
	}

	return w.mail.IsConfigured()
}

func (w *Workflow) buildDigest(summary *Summary, results []scanned) report.Digest {
	digest := report.Digest{
		Owner:               summary.Owner,
		Date:                time.Now(),
		ReposScanned:        summary.ReposScanned,
		ReposFailed:         summary.ReposFailed,
		TotalEstimatedValue: summary.TotalValue,
		Issues:              summary.Issues,
	}

	topN := len(results)
	if topN > 5 {
		topN = 5
	}
	for _, s := range results[:topN] {
		digest.Repositories = append(digest.Repositories, report.RepoLine{
			Name:             s.result.Repository,
			TotalScore:       s.result.TotalScore,
			RevenuePotential: s.result.RevenuePotential,
			EstimatedValue:   s.result.EstimatedValue,
		})
	}

	if len(results) > 0 {
		top := results[0].result

		strategies := top.MonetizationStrategies
		if len(strategies) > 3 {
			strategies = strategies[:3]
		}
		for _, strategy := range strategies {
			digest.Opportunities = append(digest.Opportunities, fmt.Sprintf("%s: %s", top.Repository, strategy))
		}

		digest.NextSteps = append(digest.NextSteps,
			fmt.Sprintf("Implement top priority improvements for %s", top.Repository))

		if w.trends != nil {
			recommendations := w.trends.Recommendations(top)
			if len(recommendations) > 2 {
				recommendations = recommendations[:2]
			}
			for _, rec := range recommendations {
				digest.NextSteps = append(digest.NextSteps, fmt.Sprintf("[%s] %s", rec.Priority, rec.Action))
			}
		}
	} else {
		digest.NextSteps = append(digest.NextSteps, "Complete repository analysis")
	}

	digest.NextSteps = append(digest.NextSteps,
		"Continue with next highest-priority repository",
		"Monitor AI trends for new opportunities")

	return digest
}

func (w *Workflow) recordRun(summary *Summary, started time.Time, status, errorMessage string) {
	if w.repo == nil {
		return
	}

	run := &database.WorkflowRun{
		ID:           uuid.New().String(),
		Owner:        summary.Owner,
		ReposScanned: summary.ReposScanned,
		ReposFailed:  summary.ReposFailed,
		TotalValue:   summary.TotalValue,
		TopRepo:      summary.TopRepo,
		TopScore:     summary.TopScore,
		DigestSent:   summary.DigestSent,
		Status:       status,
		StartedAt:    started,
		CompletedAt:  time.Now(),
		ErrorMessage: errorMessage,
	}

	if err := w.repo.SaveWorkflowRun(run); err != nil && w.logger != nil {
		w.logger.Warn("Failed to persist workflow run", "error", err.Error())
	}
}

func (w *Workflow) saveState(summary *Summary) {
	state := LoadState(w.config.StateDir)

	now := time.Now()
	state.LastRun = &now
	state.TotalRuns++
	state.TotalValueIdentified += summary.TotalValue

	state.RepositoriesAnalyzed = state.RepositoriesAnalyzed[:0]
	state.PriorityQueue = state.PriorityQueue[:0]
	for i, result := range summary.Results {
		state.RepositoriesAnalyzed = append(state.RepositoriesAnalyzed, result.Repository)
		if i < 5 {
			state.PriorityQueue = append(state.PriorityQueue, result.Repository)
		}
	}

	if err := SaveState(w.config.StateDir, state); err != nil && w.logger != nil {
		w.logger.Warn("Failed to save scan state", "error", err.Error())
	}
}
