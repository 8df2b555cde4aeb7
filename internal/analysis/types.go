package analysis

import "time"

// RepositorySnapshot is the read-only metadata for one repository at
// analysis time. It is created by the fetch step and never mutated;
// all recency math is anchored on FetchedAt so identical snapshots
// always score identically.
type RepositorySnapshot struct {
	Owner       string            `json:"owner"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Language    string            `json:"language"`
	Stars       int               `json:"stars"`
	Forks       int               `json:"forks"`
	OpenIssues  int               `json:"open_issues"`
	UpdatedAt   time.Time         `json:"updated_at"` // zero value means unknown
	FetchedAt   time.Time         `json:"fetched_at"`
	Files       []string          `json:"files"`
	Manifests   map[string]string `json:"manifests,omitempty"`
	ReadmeBytes int               `json:"readme_bytes"`
}

// FullName returns the owner/name identifier for the repository.
func (s RepositorySnapshot) FullName() string {
	if s.Owner == "" {
		return s.Name
	}
	return s.Owner + "/" + s.Name
}

// SignalSet holds every detected signal. Both maps are fully populated
// for every name in the signal registry; undetectable signals carry
// their zero value, never a missing key.
type SignalSet struct {
	Flags  map[string]bool    `json:"flags"`
	Counts map[string]float64 `json:"counts"`
}

// Flag returns a boolean signal, false when absent.
func (s SignalSet) Flag(name string) bool {
	return s.Flags[name]
}

// Count returns a numeric signal, zero when absent.
func (s SignalSet) Count(name string) float64 {
	return s.Counts[name]
}

// Dimensions holds the seven fixed dimension scores, each in [0,100].
type Dimensions struct {
	MarketDemand      float64 `json:"market_demand"`
	MonetizationReady float64 `json:"monetization_ready"`
	TechStackModern   float64 `json:"tech_stack_modern"`
	DeploymentReady   float64 `json:"deployment_ready"`
	UserTraction      float64 `json:"user_traction"`
	CodeQuality       float64 `json:"code_quality"`
	StrategicValue    float64 `json:"strategic_value"`
}

// AnalysisResult is the complete scored output for one repository.
// Created once per analysis and never mutated afterwards.
type AnalysisResult struct {
	Repository             string     `json:"repository"`
	URL                    string     `json:"url"`
	TotalScore             float64    `json:"total_score"`
	RevenuePotential       string     `json:"revenue_potential"`
	EstimatedValue         int        `json:"estimated_value"`
	Scores                 Dimensions `json:"scores"`
	MonetizationStrategies []string   `json:"monetization_strategies"`
	NextSteps              []string   `json:"next_steps"`
}
