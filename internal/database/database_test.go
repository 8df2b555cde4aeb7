package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoyield/repoyield/internal/analysis"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func sampleResult(repo string, score float64, value int) analysis.AnalysisResult {
	return analysis.AnalysisResult{
		Repository:       "acme/" + repo,
		URL:              "https://github.com/acme/" + repo,
		TotalScore:       score,
		RevenuePotential: analysis.PotentialMedium,
		EstimatedValue:   value,
		MonetizationStrategies: []string{
			"Offer freemium model with premium features",
		},
		NextSteps: []string{
			"Create monetization strategy document",
		},
	}
}

func TestSaveAndListAnalyses(t *testing.T) {
	repo := newTestRepo(t)

	for name, score := range map[string]float64{
		"storefront": 69.75,
		"dotfiles":   7.5,
		"api-kit":    42.3,
	} {
		stored, err := NewStoredAnalysis("", "acme", name, sampleResult(name, score, 10000))
		require.NoError(t, err)
		require.NoError(t, repo.SaveAnalysis(stored))
	}

	analyses, err := repo.ListOwnerAnalyses("acme")
	require.NoError(t, err)
	require.Len(t, analyses, 3)

	// Ranked by score descending
	assert.Equal(t, "storefront", analyses[0].Repo)
	assert.Equal(t, "api-kit", analyses[1].Repo)
	assert.Equal(t, "dotfiles", analyses[2].Repo)

	result, err := analyses[0].Result()
	require.NoError(t, err)
	assert.Equal(t, "acme/storefront", result.Repository)
	assert.Equal(t, 69.75, result.TotalScore)

	empty, err := repo.ListOwnerAnalyses("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListAnalysesKeepsLatestPerRepo(t *testing.T) {
	repo := newTestRepo(t)

	first, err := NewStoredAnalysis("", "acme", "storefront", sampleResult("storefront", 40, 10000))
	require.NoError(t, err)
	first.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.SaveAnalysis(first))

	second, err := NewStoredAnalysis("", "acme", "storefront", sampleResult("storefront", 70, 25000))
	require.NoError(t, err)
	require.NoError(t, repo.SaveAnalysis(second))

	analyses, err := repo.ListOwnerAnalyses("acme")
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, 70.0, analyses[0].TotalScore)
}

func TestWorkflowRunRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	none, err := repo.LatestWorkflowRun("acme")
	require.NoError(t, err)
	assert.Nil(t, none)

	started := time.Now().Add(-time.Minute)
	run := &WorkflowRun{
		ID:           "run-1",
		Owner:        "acme",
		ReposScanned: 12,
		ReposFailed:  1,
		TotalValue:   85000,
		TopRepo:      "acme/storefront",
		TopScore:     69.75,
		DigestSent:   true,
		Status:       "completed",
		StartedAt:    started,
		CompletedAt:  time.Now(),
	}
	require.NoError(t, repo.SaveWorkflowRun(run))

	latest, err := repo.LatestWorkflowRun("acme")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-1", latest.ID)
	assert.Equal(t, 12, latest.ReposScanned)
	assert.Equal(t, "acme/storefront", latest.TopRepo)
	assert.True(t, latest.DigestSent)
}

func TestCleanupOldData(t *testing.T) {
	repo := newTestRepo(t)

	old, err := NewStoredAnalysis("", "acme", "legacy", sampleResult("legacy", 10, 2000))
	require.NoError(t, err)
	old.CreatedAt = time.Now().Add(-400 * 24 * time.Hour)
	require.NoError(t, repo.SaveAnalysis(old))

	fresh, err := NewStoredAnalysis("", "acme", "storefront", sampleResult("storefront", 70, 25000))
	require.NoError(t, err)
	require.NoError(t, repo.SaveAnalysis(fresh))

	purged, err := repo.CleanupOldData(365 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	remaining, err := repo.ListOwnerAnalyses("acme")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "storefront", remaining[0].Repo)
}
