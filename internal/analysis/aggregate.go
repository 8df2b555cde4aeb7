package analysis

import (
	"fmt"
	"math"
)

// Revenue potential labels, ordered low to high.
const (
	PotentialLow      = "Low"
	PotentialMedium   = "Medium"
	PotentialHigh     = "High"
	PotentialVeryHigh = "Very High"
)

var dimensionWeights = map[string]float64{
	DimensionMarketDemand:      0.25,
	DimensionMonetizationReady: 0.20,
	DimensionTechStackModern:   0.15,
	DimensionDeploymentReady:   0.15,
	DimensionUserTraction:      0.10,
	DimensionCodeQuality:       0.10,
	DimensionStrategicValue:    0.05,
}

// Label thresholds over total_score and the dollar band per label.
// Fixed so identical snapshots reproduce identical results.
var potentialBands = []struct {
	threshold float64
	label     string
	value     int
}{
	{75, PotentialVeryHigh, 50000},
	{50, PotentialHigh, 25000},
	{25, PotentialMedium, 10000},
	{0, PotentialLow, 2000},
}

// ValidateWeights checks the weight table at startup. Weights must
// cover exactly the dimension table and sum to 1.0.
func ValidateWeights() error {
	if len(dimensionWeights) != len(dimensionTable) {
		return fmt.Errorf("weight table has %d entries, want %d", len(dimensionWeights), len(dimensionTable))
	}
	sum := 0.0
	for _, rule := range dimensionTable {
		w, ok := dimensionWeights[rule.name]
		if !ok {
			return fmt.Errorf("dimension %q has no weight", rule.name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("dimension weights sum to %v, want 1.0", sum)
	}
	return nil
}

// TotalScore computes the weighted sum of the dimension scores,
// rounded to two decimals.
func TotalScore(d Dimensions) float64 {
	total := d.MarketDemand*dimensionWeights[DimensionMarketDemand] +
		d.MonetizationReady*dimensionWeights[DimensionMonetizationReady] +
		d.TechStackModern*dimensionWeights[DimensionTechStackModern] +
		d.DeploymentReady*dimensionWeights[DimensionDeploymentReady] +
		d.UserTraction*dimensionWeights[DimensionUserTraction] +
		d.CodeQuality*dimensionWeights[DimensionCodeQuality] +
		d.StrategicValue*dimensionWeights[DimensionStrategicValue]
	return math.Round(total*100) / 100
}

// PotentialForScore maps a total score to its label and dollar band.
func PotentialForScore(total float64) (string, int) {
	for _, band := range potentialBands {
		if total >= band.threshold {
			return band.label, band.value
		}
	}
	return PotentialLow, 2000
}

// strategyRule emits gap-filling recommendations. Rules run in table
// order so output ordering is stable across runs.
type strategyRule struct {
	applies func(SignalSet, Dimensions) bool
	lines   []string
}

var monetizationStrategyRules = []strategyRule{
	{
		applies: func(_ SignalSet, d Dimensions) bool { return d.MonetizationReady < 30 },
		lines: []string{
			"Add Stripe payment integration for premium features",
			"Implement subscription tiers (Basic/Pro/Enterprise)",
		},
	},
	{
		applies: func(s SignalSet, d Dimensions) bool {
			return s.Flag(SignalFrontendManifest) && d.DeploymentReady > 50
		},
		lines: []string{
			"Deploy to Vercel with usage-based pricing",
			"Add analytics to track user behavior and conversion",
		},
	},
	{
		applies: func(s SignalSet, _ Dimensions) bool { return s.Flag(SignalBackendManifest) },
		lines: []string{
			"Create API tier with rate limiting for paid plans",
			"Offer managed hosting service",
		},
	},
	{
		applies: func(_ SignalSet, d Dimensions) bool { return d.UserTraction > 60 },
		lines: []string{
			"Launch on Product Hunt for visibility",
			"Create affiliate program for user referrals",
		},
	},
	{
		applies: func(SignalSet, Dimensions) bool { return true },
		lines: []string{
			"Add freemium model with generous free tier",
			"Create marketplace listing (Shopify/WordPress)",
		},
	},
}

var nextStepRules = []strategyRule{
	{
		applies: func(_ SignalSet, d Dimensions) bool { return d.DeploymentReady < 50 },
		lines: []string{
			"Set up CI/CD pipeline with GitHub Actions",
			"Create Dockerfile for containerization",
		},
	},
	{
		applies: func(_ SignalSet, d Dimensions) bool { return d.CodeQuality < 60 },
		lines: []string{
			"Add unit tests to improve reliability",
			"Set up linting and code formatting",
		},
	},
	{
		applies: func(_ SignalSet, d Dimensions) bool { return d.TechStackModern < 50 },
		lines: []string{
			"Modernize dependencies to latest versions",
			"Consider migrating to TypeScript for better DX",
		},
	},
	{
		applies: func(_ SignalSet, d Dimensions) bool { return d.MonetizationReady < 40 },
		lines: []string{
			"Integrate payment processing (Stripe recommended)",
			"Design pricing tiers and feature gates",
		},
	},
	{
		applies: func(SignalSet, Dimensions) bool { return true },
		lines: []string{
			"Create comprehensive documentation",
			"Set up error tracking (Sentry/LogRocket)",
		},
	},
}

const maxRecommendations = 5

func applyRules(rules []strategyRule, signals SignalSet, dims Dimensions) []string {
	out := make([]string, 0, maxRecommendations)
	for _, rule := range rules {
		if !rule.applies(signals, dims) {
			continue
		}
		for _, line := range rule.lines {
			if len(out) == maxRecommendations {
				return out
			}
			out = append(out, line)
		}
	}
	return out
}

// Aggregate assembles the final AnalysisResult from the snapshot
// identity, its signals, and its dimension scores.
func Aggregate(snap RepositorySnapshot, signals SignalSet, dims Dimensions) AnalysisResult {
	total := TotalScore(dims)
	label, value := PotentialForScore(total)

	return AnalysisResult{
		Repository:             snap.FullName(),
		URL:                    snap.URL,
		TotalScore:             total,
		RevenuePotential:       label,
		EstimatedValue:         value,
		Scores:                 dims,
		MonetizationStrategies: applyRules(monetizationStrategyRules, signals, dims),
		NextSteps:              applyRules(nextStepRules, signals, dims),
	}
}
