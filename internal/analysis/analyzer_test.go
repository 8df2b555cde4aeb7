package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalyzer(t *testing.T) {
	analyzer, err := NewAnalyzer()
	require.NoError(t, err)
	require.NotNil(t, analyzer)
}

func TestAnalyzeEmptyRepository(t *testing.T) {
	analyzer, err := NewAnalyzer()
	require.NoError(t, err)

	result := analyzer.Analyze(RepositorySnapshot{Owner: "ghost", Name: "empty"})

	assert.Equal(t, "ghost/empty", result.Repository)
	assert.Equal(t, 7.5, result.TotalScore)
	assert.Equal(t, PotentialLow, result.RevenuePotential)
	assert.Equal(t, 2000, result.EstimatedValue)
	assert.NotEmpty(t, result.MonetizationStrategies)
	assert.NotEmpty(t, result.NextSteps)
}

func TestAnalyzeDeterminism(t *testing.T) {
	analyzer, err := NewAnalyzer()
	require.NoError(t, err)

	snap := RepositorySnapshot{
		Owner:       "acme",
		Name:        "storefront",
		URL:         "https://github.com/acme/storefront",
		Description: "AI-powered SaaS platform for automation",
		Stars:       150,
		Forks:       12,
		UpdatedAt:   time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC),
		FetchedAt:   time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		Files:       []string{"Dockerfile", "package.json", "tests/app_test.ts"},
		Manifests: map[string]string{
			"package.json": `{"scripts":{"build":"next build"},"dependencies":{"react":"^18","stripe":"^12"}}`,
		},
		ReadmeBytes: 1500,
	}

	first, err := json.Marshal(analyzer.Analyze(snap))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		next, err := json.Marshal(analyzer.Analyze(snap))
		require.NoError(t, err)
		assert.Equal(t, first, next, "identical snapshots should produce byte-identical results")
	}
}

func TestAnalyzePaymentReadyRepository(t *testing.T) {
	analyzer, err := NewAnalyzer()
	require.NoError(t, err)

	snap := RepositorySnapshot{
		Owner:      "acme",
		Name:       "checkout",
		Stars:      500,
		Forks:      20,
		OpenIssues: 5,
		Files:      []string{"package.json", ".github/workflows/ci.yml", "README.md"},
		Manifests: map[string]string{
			"package.json": `{"dependencies":{"stripe":"^12.0.0"}}`,
		},
	}

	result := analyzer.Analyze(snap)

	// Payment library and CI lift both dimensions above their zero baseline.
	assert.Greater(t, result.Scores.MonetizationReady, 0.0)
	assert.Greater(t, result.Scores.DeploymentReady, 0.0)
	assert.NotContains(t, result.MonetizationStrategies,
		"Add Stripe payment integration for premium features")
}

func TestAnalyzeFullFeaturedRepository(t *testing.T) {
	analyzer, err := NewAnalyzer()
	require.NoError(t, err)

	snap := RepositorySnapshot{
		Owner:       "acme",
		Name:        "storefront",
		URL:         "https://github.com/acme/storefront",
		Description: "AI-powered SaaS platform for automation",
		Stars:       150,
		UpdatedAt:   time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC),
		FetchedAt:   time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		Files: []string{
			"Dockerfile",
			".github/workflows/ci.yml",
			".env.example",
			"tsconfig.json",
			"tests/app_test.ts",
			"docs/index.md",
			"package.json",
			"src/billing/checkout.ts",
		},
		Manifests: map[string]string{
			"package.json": `{"scripts":{"build":"next build"},"dependencies":{"react":"^18","stripe":"^12","next.js":"^14"}}`,
		},
		ReadmeBytes: 1500,
	}

	result := analyzer.Analyze(snap)

	assert.Equal(t, 90.0, result.Scores.MarketDemand)
	assert.Equal(t, 55.0, result.Scores.MonetizationReady)
	assert.Equal(t, 35.0, result.Scores.TechStackModern)
	assert.Equal(t, 90.0, result.Scores.DeploymentReady)
	assert.Equal(t, 60.0, result.Scores.UserTraction)
	assert.Equal(t, 85.0, result.Scores.CodeQuality)
	assert.Equal(t, 60.0, result.Scores.StrategicValue)

	assert.Equal(t, 69.75, result.TotalScore)
	assert.Equal(t, PotentialHigh, result.RevenuePotential)
	assert.Equal(t, 25000, result.EstimatedValue)
}

func TestAnalyzeTotalAlwaysInRange(t *testing.T) {
	analyzer, err := NewAnalyzer()
	require.NoError(t, err)

	snapshots := []RepositorySnapshot{
		{},
		{Stars: 1 << 30, Forks: 1 << 30, ReadmeBytes: 1 << 30},
		{
			Description: "ai ml saas marketplace automation analytics crypto platform framework library tool system",
			Stars:       100000,
			Files:       []string{"Dockerfile", "package.json", "tests/t.go", "tsconfig.json", "docs/a.md"},
		},
	}

	for i, snap := range snapshots {
		result := analyzer.Analyze(snap)
		assert.GreaterOrEqual(t, result.TotalScore, 0.0, "case %d", i)
		assert.LessOrEqual(t, result.TotalScore, 100.0, "case %d", i)
	}
}
