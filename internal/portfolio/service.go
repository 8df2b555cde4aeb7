package portfolio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/repoyield/repoyield/internal/cache"
	"github.com/repoyield/repoyield/internal/database"
)

// Entry is one ranked repository in an owner's portfolio
type Entry struct {
	Rank             int       `json:"rank"`
	Repository       string    `json:"repository"`
	TotalScore       float64   `json:"total_score"`
	RevenuePotential string    `json:"revenue_potential"`
	EstimatedValue   int       `json:"estimated_value"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
}

// Portfolio is the ranked view over an owner's latest analyses
type Portfolio struct {
	Owner               string    `json:"owner"`
	Entries             []Entry   `json:"entries"`
	Total               int       `json:"total"`
	TotalEstimatedValue int       `json:"total_estimated_value"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Service serves ranked portfolios with a TTL cache in front of the
// database
type Service struct {
	repo  *database.Repository
	cache *cache.Cache
}

// NewService creates a portfolio service with a 15 minute cache TTL
func NewService(repo *database.Repository) *Service {
	return NewServiceWithCache(repo, cache.NewCache(15*time.Minute))
}

// NewServiceWithCache creates a portfolio service with a custom cache
func NewServiceWithCache(repo *database.Repository, c *cache.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: c,
	}
}

func cacheKey(owner string) string {
	return fmt.Sprintf("portfolio:%s", owner)
}

// GetPortfolio returns the owner's repositories ranked by total score,
// using the latest analysis per repository
func (s *Service) GetPortfolio(owner string) (*Portfolio, error) {
	key := cacheKey(owner)

	if data, found := s.cache.Get(key); found {
		var portfolio Portfolio
		if err := json.Unmarshal(data, &portfolio); err == nil {
			slog.Debug("Portfolio cache hit", "owner", owner)
			return &portfolio, nil
		}
		slog.Error("Failed to unmarshal cached portfolio", "owner", owner)
	}

	analyses, err := s.repo.ListOwnerAnalyses(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	portfolio := &Portfolio{
		Owner:       owner,
		Entries:     make([]Entry, 0, len(analyses)),
		GeneratedAt: time.Now(),
	}

	for i, stored := range analyses {
		portfolio.Entries = append(portfolio.Entries, Entry{
			Rank:             i + 1,
			Repository:       fmt.Sprintf("%s/%s", stored.Owner, stored.Repo),
			TotalScore:       stored.TotalScore,
			RevenuePotential: stored.RevenuePotential,
			EstimatedValue:   stored.EstimatedValue,
			AnalyzedAt:       stored.CreatedAt,
		})
		portfolio.TotalEstimatedValue += stored.EstimatedValue
	}
	portfolio.Total = len(portfolio.Entries)

	if data, err := json.Marshal(portfolio); err == nil {
		s.cache.Set(key, data)
	}

	return portfolio, nil
}

// Invalidate drops the cached portfolio for an owner, forcing the next
// read to hit the database
func (s *Service) Invalidate(owner string) {
	s.cache.Delete(cacheKey(owner))
}

// GetCacheStats returns portfolio cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}
