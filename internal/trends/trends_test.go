package trends

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoyield/repoyield/internal/analysis"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	return tracker
}

func TestLatestTrendsPopulatesCache(t *testing.T) {
	tracker := newTestTracker(t)

	catalog, err := tracker.LatestTrends(false)
	require.NoError(t, err)

	assert.Len(t, catalog.Models, 5)
	assert.Len(t, catalog.Frameworks, 5)
	assert.Len(t, catalog.Techniques, 5)
	assert.Len(t, catalog.Tools, 5)
	assert.Len(t, catalog.UseCases, 5)

	_, err = os.Stat(tracker.cacheFile)
	assert.NoError(t, err)
}

func TestLatestTrendsUsesFreshCache(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.LatestTrends(false)
	require.NoError(t, err)

	// A modified cache is served back as long as it is fresh
	custom := cacheEnvelope{
		Timestamp: time.Now(),
		Trends: Catalog{
			Models: []Model{{Name: "cached-model"}},
		},
	}
	writeEnvelope(t, tracker.cacheFile, custom)

	catalog, err := tracker.LatestTrends(false)
	require.NoError(t, err)
	require.Len(t, catalog.Models, 1)
	assert.Equal(t, "cached-model", catalog.Models[0].Name)
}

func TestLatestTrendsRefreshesStaleCache(t *testing.T) {
	tracker := newTestTracker(t)

	stale := cacheEnvelope{
		Timestamp: time.Now().Add(-7 * time.Hour),
		Trends: Catalog{
			Models: []Model{{Name: "stale-model"}},
		},
	}
	writeEnvelope(t, tracker.cacheFile, stale)

	catalog, err := tracker.LatestTrends(false)
	require.NoError(t, err)
	assert.Len(t, catalog.Models, 5)
}

func TestLatestTrendsForceRefresh(t *testing.T) {
	tracker := newTestTracker(t)

	custom := cacheEnvelope{
		Timestamp: time.Now(),
		Trends: Catalog{
			Models: []Model{{Name: "cached-model"}},
		},
	}
	writeEnvelope(t, tracker.cacheFile, custom)

	catalog, err := tracker.LatestTrends(true)
	require.NoError(t, err)
	assert.Len(t, catalog.Models, 5)
}

func TestLatestTrendsIgnoresCorruptCache(t *testing.T) {
	tracker := newTestTracker(t)

	require.NoError(t, os.WriteFile(tracker.cacheFile, []byte("{not json"), 0o644))

	catalog, err := tracker.LatestTrends(false)
	require.NoError(t, err)
	assert.Len(t, catalog.Models, 5)
}

func TestRecommendations(t *testing.T) {
	tracker := newTestTracker(t)

	tests := []struct {
		name           string
		result         analysis.AnalysisResult
		wantCategories []string
	}{
		{
			name: "dated stack gets AI integration",
			result: analysis.AnalysisResult{
				Repository: "acme/legacy-api",
				Scores:     analysis.Dimensions{TechStackModern: 40, CodeQuality: 30},
			},
			wantCategories: []string{"AI Integration", "Reliability"},
		},
		{
			name: "quality repo gets RAG docs",
			result: analysis.AnalysisResult{
				Repository: "acme/toolkit",
				Scores:     analysis.Dimensions{TechStackModern: 85, CodeQuality: 75},
			},
			wantCategories: []string{"Developer Experience", "Reliability"},
		},
		{
			name: "saas repo gets automation",
			result: analysis.AnalysisResult{
				Repository: "acme/billing-saas",
				Scores:     analysis.Dimensions{TechStackModern: 85, CodeQuality: 30},
			},
			wantCategories: []string{"Automation", "Reliability"},
		},
		{
			name: "marketplace repo gets revenue optimization",
			result: analysis.AnalysisResult{
				Repository: "acme/craft-marketplace",
				Scores:     analysis.Dimensions{TechStackModern: 85, CodeQuality: 30},
			},
			wantCategories: []string{"Revenue Optimization", "Reliability"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recommendations := tracker.Recommendations(tt.result)

			got := make([]string, 0, len(recommendations))
			for _, rec := range recommendations {
				got = append(got, rec.Category)
			}
			assert.Equal(t, tt.wantCategories, got)
		})
	}
}

func TestRecommendationsAlwaysIncludeReliability(t *testing.T) {
	tracker := newTestTracker(t)

	recommendations := tracker.Recommendations(analysis.AnalysisResult{
		Repository: "acme/anything",
		Scores:     analysis.Dimensions{TechStackModern: 100, CodeQuality: 0},
	})

	require.Len(t, recommendations, 1)
	assert.Equal(t, "Reliability", recommendations[0].Category)
	assert.Equal(t, "Medium", recommendations[0].Priority)
}

func TestSaveReport(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.now = func() time.Time {
		return time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	}

	path, err := tracker.SaveReport()
	require.NoError(t, err)
	assert.Equal(t, "trends_report_20260214.md", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# AI Trends Report - February 14, 2026")
	assert.Contains(t, content, "## Trending Models")
	assert.Contains(t, content, "Llama 3.3 70B")
	assert.Contains(t, content, "## Trending Frameworks")
	assert.Contains(t, content, "## Trending Techniques")
}

func writeEnvelope(t *testing.T, path string, envelope cacheEnvelope) {
	t.Helper()

	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
