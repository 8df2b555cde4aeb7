package trends

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const cacheTTL = 6 * time.Hour

// Tracker serves the trend catalog behind a file-backed cache
type Tracker struct {
	cacheDir  string
	cacheFile string
	mu        sync.Mutex
	now       func() time.Time
}

type cacheEnvelope struct {
	Timestamp time.Time `json:"timestamp"`
	Trends    Catalog   `json:"trends"`
}

// NewTracker creates a tracker caching under the given directory
func NewTracker(cacheDir string) (*Tracker, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trends cache dir: %w", err)
	}

	return &Tracker{
		cacheDir:  cacheDir,
		cacheFile: filepath.Join(cacheDir, "trends.json"),
		now:       time.Now,
	}, nil
}

// LatestTrends returns the current trend catalog. Cached results are
// served for up to 6 hours unless forceRefresh is set.
func (t *Tracker) LatestTrends(forceRefresh bool) (Catalog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !forceRefresh {
		if catalog, ok := t.readCache(); ok {
			return catalog, nil
		}
	}

	catalog := curatedCatalog()

	if err := t.writeCache(catalog); err != nil {
		return Catalog{}, err
	}

	return catalog, nil
}

// readCache returns the cached catalog when present and fresh.
// A corrupt or stale cache is treated as a miss.
func (t *Tracker) readCache() (Catalog, bool) {
	data, err := os.ReadFile(t.cacheFile)
	if err != nil {
		return Catalog{}, false
	}

	var envelope cacheEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Catalog{}, false
	}

	if t.now().Sub(envelope.Timestamp) >= cacheTTL {
		return Catalog{}, false
	}

	return envelope.Trends, true
}

func (t *Tracker) writeCache(catalog Catalog) error {
	envelope := cacheEnvelope{
		Timestamp: t.now(),
		Trends:    catalog,
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trends cache: %w", err)
	}

	if err := os.WriteFile(t.cacheFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trends cache: %w", err)
	}

	return nil
}

// SaveReport writes a markdown trends report into the cache directory
// and returns its path
func (t *Tracker) SaveReport() (string, error) {
	catalog, err := t.LatestTrends(false)
	if err != nil {
		return "", err
	}

	now := t.now()
	reportPath := filepath.Join(t.cacheDir, fmt.Sprintf("trends_report_%s.md", now.Format("20060102")))

	var b []byte
	b = fmt.Appendf(b, "# AI Trends Report - %s\n\n", now.Format("January 2, 2006"))

	b = append(b, "## Trending Models\n\n"...)
	for _, model := range catalog.Models {
		b = fmt.Appendf(b, "### %s (%s)\n", model.Name, model.Provider)
		b = fmt.Appendf(b, "- **Use Case**: %s\n", model.UseCase)
		b = fmt.Appendf(b, "- **Priority**: %s\n", model.Priority)
		b = fmt.Appendf(b, "- **Implementation**: %s\n\n", model.Implementation)
	}

	b = append(b, "## Trending Frameworks\n\n"...)
	for _, framework := range catalog.Frameworks {
		b = fmt.Appendf(b, "### %s\n", framework.Name)
		b = fmt.Appendf(b, "- **Category**: %s\n", framework.Category)
		b = fmt.Appendf(b, "- **Priority**: %s\n", framework.Priority)
		b = fmt.Appendf(b, "- **Implementation**: %s\n\n", framework.Implementation)
	}

	b = append(b, "## Trending Techniques\n\n"...)
	for _, technique := range catalog.Techniques {
		b = fmt.Appendf(b, "### %s\n", technique.Name)
		b = fmt.Appendf(b, "- **Description**: %s\n", technique.Description)
		b = fmt.Appendf(b, "- **Priority**: %s\n", technique.Priority)
		b = fmt.Appendf(b, "- **Implementation**: %s\n\n", technique.Implementation)
	}

	if err := os.WriteFile(reportPath, b, 0o644); err != nil {
		return "", fmt.Errorf("failed to write trends report: %w", err)
	}

	return reportPath, nil
}
