package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoyield/repoyield/internal/adapters"
	"github.com/repoyield/repoyield/internal/analysis"
	"github.com/repoyield/repoyield/internal/database"
	"github.com/repoyield/repoyield/internal/trends"
)

type fakeSource struct {
	refs      []adapters.RepoRef
	listErr   error
	failRepos map[string]bool
	snapshots map[string]analysis.RepositorySnapshot
}

func (f *fakeSource) ListOwnerRepos(ctx context.Context, owner string) ([]adapters.RepoRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.refs, nil
}

func (f *fakeSource) FetchSnapshot(ctx context.Context, owner, repo string) (analysis.RepositorySnapshot, error) {
	if f.failRepos[repo] {
		return analysis.RepositorySnapshot{}, fmt.Errorf("API rate limit exceeded")
	}
	if snap, ok := f.snapshots[repo]; ok {
		return snap, nil
	}
	return analysis.RepositorySnapshot{
		Owner: owner,
		Name:  repo,
	}, nil
}

type fakeSender struct {
	configured bool
	sendErr    error
	messages   []adapters.Message
}

func (f *fakeSender) IsConfigured() bool { return f.configured }

func (f *fakeSender) Send(ctx context.Context, msg adapters.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func newTestWorkflow(t *testing.T, source RepoSource, sender DigestSender, repo *database.Repository) *Workflow {
	t.Helper()

	analyzer, err := analysis.NewAnalyzer()
	require.NoError(t, err)

	tracker, err := trends.NewTracker(t.TempDir())
	require.NoError(t, err)

	config := DefaultConfig("acme")
	config.StateDir = t.TempDir()
	config.Workers = 2

	return New(config, source, analyzer, tracker, sender, repo, nil)
}

func starredSnapshot(owner, name string, stars int) analysis.RepositorySnapshot {
	return analysis.RepositorySnapshot{
		Owner:       owner,
		Name:        name,
		Description: "API service with premium tier",
		Language:    "Go",
		Stars:       stars,
		UpdatedAt:   time.Now().Add(-24 * time.Hour),
		Files:       []string{"README.md", "Dockerfile", "go.mod"},
	}
}

func TestRunScansAndRanks(t *testing.T) {
	source := &fakeSource{
		refs: []adapters.RepoRef{
			{Owner: "acme", Name: "small"},
			{Owner: "acme", Name: "popular"},
			{Owner: "acme", Name: "medium"},
		},
		snapshots: map[string]analysis.RepositorySnapshot{
			"small":   starredSnapshot("acme", "small", 2),
			"popular": starredSnapshot("acme", "popular", 900),
			"medium":  starredSnapshot("acme", "medium", 80),
		},
	}
	sender := &fakeSender{configured: true}

	w := newTestWorkflow(t, source, sender, nil)

	summary, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "acme", summary.Owner)
	assert.Equal(t, 3, summary.ReposScanned)
	assert.Equal(t, 0, summary.ReposFailed)
	assert.Equal(t, "acme/popular", summary.TopRepo)
	assert.True(t, summary.DigestSent)

	require.Len(t, summary.Results, 3)
	assert.True(t, sort.SliceIsSorted(summary.Results, func(i, j int) bool {
		return summary.Results[i].TotalScore > summary.Results[j].TotalScore
	}))
	assert.Equal(t, summary.Results[0].TotalScore, summary.TopScore)

	total := 0
	for _, result := range summary.Results {
		total += result.EstimatedValue
	}
	assert.Equal(t, total, summary.TotalValue)

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].Subject, "acme")
	assert.Contains(t, sender.messages[0].TextBody, "acme/popular")
}

func TestRunSkipsForksAndArchived(t *testing.T) {
	source := &fakeSource{
		refs: []adapters.RepoRef{
			{Owner: "acme", Name: "active"},
			{Owner: "acme", Name: "forked", Fork: true},
			{Owner: "acme", Name: "retired", Archived: true},
		},
	}

	w := newTestWorkflow(t, source, &fakeSender{}, nil)

	summary, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ReposScanned)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "acme/active", summary.Results[0].Repository)
}

func TestRunCapsAtMaxRepos(t *testing.T) {
	var refs []adapters.RepoRef
	for i := 0; i < 15; i++ {
		refs = append(refs, adapters.RepoRef{Owner: "acme", Name: fmt.Sprintf("repo-%d", i)})
	}
	source := &fakeSource{refs: refs}

	w := newTestWorkflow(t, source, &fakeSender{}, nil)

	summary, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, summary.ReposScanned)
}

func TestRunCollectsFailures(t *testing.T) {
	source := &fakeSource{
		refs: []adapters.RepoRef{
			{Owner: "acme", Name: "good"},
			{Owner: "acme", Name: "broken"},
		},
		failRepos: map[string]bool{"broken": true},
	}

	w := newTestWorkflow(t, source, &fakeSender{}, nil)

	summary, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ReposScanned)
	assert.Equal(t, 1, summary.ReposFailed)
	require.Len(t, summary.Issues, 1)
	assert.Contains(t, summary.Issues[0], "acme/broken")
}

func TestRunDiscoveryFailure(t *testing.T) {
	source := &fakeSource{listErr: fmt.Errorf("connection refused")}

	w := newTestWorkflow(t, source, &fakeSender{}, nil)

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository discovery failed")
}

func TestRunDigestNotSentWithoutProvider(t *testing.T) {
	source := &fakeSource{
		refs: []adapters.RepoRef{{Owner: "acme", Name: "active"}},
	}
	sender := &fakeSender{configured: false}

	w := newTestWorkflow(t, source, sender, nil)

	summary, err := w.Run(context.Background())
	require.NoError(t, err)

	// Unconfigured providers fall back to a file, which does not count
	// as a delivered digest
	assert.False(t, summary.DigestSent)
}

func TestRunPersistsRunAndAnalyses(t *testing.T) {
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.NewRepository(db)

	source := &fakeSource{
		refs: []adapters.RepoRef{
			{Owner: "acme", Name: "active"},
			{Owner: "acme", Name: "other"},
		},
		snapshots: map[string]analysis.RepositorySnapshot{
			"active": starredSnapshot("acme", "active", 500),
		},
	}

	w := newTestWorkflow(t, source, &fakeSender{configured: true}, repo)

	summary, err := w.Run(context.Background())
	require.NoError(t, err)

	run, err := repo.LatestWorkflowRun("acme")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, summary.ReposScanned, run.ReposScanned)
	assert.Equal(t, summary.TopRepo, run.TopRepo)
	assert.True(t, run.DigestSent)

	analyses, err := repo.ListOwnerAnalyses("acme")
	require.NoError(t, err)
	assert.Len(t, analyses, 2)
}

func TestRunUpdatesState(t *testing.T) {
	source := &fakeSource{
		refs: []adapters.RepoRef{
			{Owner: "acme", Name: "active"},
		},
	}

	w := newTestWorkflow(t, source, &fakeSender{}, nil)

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	state := LoadState(w.config.StateDir)
	require.NotNil(t, state.LastRun)
	assert.Equal(t, 1, state.TotalRuns)
	assert.Equal(t, []string{"acme/active"}, state.RepositoriesAnalyzed)
	assert.Equal(t, []string{"acme/active"}, state.PriorityQueue)
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	// Missing file yields zero state
	state := LoadState(dir)
	assert.Nil(t, state.LastRun)
	assert.Equal(t, 0, state.TotalRuns)

	now := time.Now().Truncate(time.Second)
	state = State{
		LastRun:              &now,
		RepositoriesAnalyzed: []string{"acme/a", "acme/b"},
		PriorityQueue:        []string{"acme/a"},
		TotalRuns:            3,
		TotalValueIdentified: 60000,
	}
	require.NoError(t, SaveState(dir, state))

	loaded := LoadState(dir)
	require.NotNil(t, loaded.LastRun)
	assert.True(t, loaded.LastRun.Equal(now))
	assert.Equal(t, state.RepositoriesAnalyzed, loaded.RepositoriesAnalyzed)
	assert.Equal(t, 3, loaded.TotalRuns)
	assert.Equal(t, 60000, loaded.TotalValueIdentified)
}

func TestLoadStateIgnoresCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveState(dir, State{TotalRuns: 1}))

	// Overwrite with junk
	path := filepath.Join(dir, stateFileName)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	state := LoadState(dir)
	assert.Equal(t, 0, state.TotalRuns)
}
