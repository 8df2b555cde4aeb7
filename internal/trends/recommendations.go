package trends

import (
	"strings"

	"github.com/repoyield/repoyield/internal/analysis"
)

// Recommendation is an actionable trend-based suggestion for a repository
type Recommendation struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Impact   string `json:"impact"`
	Effort   string `json:"effort"`
}

// Recommendations derives implementation recommendations from a
// repository's analysis result
func (t *Tracker) Recommendations(result analysis.AnalysisResult) []Recommendation {
	recommendations := []Recommendation{}

	// Repos behind on their stack benefit most from AI features
	if result.Scores.TechStackModern < 70 {
		recommendations = append(recommendations, Recommendation{
			Category: "AI Integration",
			Priority: "High",
			Action:   "Add AI-powered features using Llama 3.3 or Gemini Flash",
			Impact:   "Increase user engagement and revenue potential",
			Effort:   "Medium",
		})
	}

	// Well-maintained repos are good RAG candidates
	if result.Scores.CodeQuality > 60 {
		recommendations = append(recommendations, Recommendation{
			Category: "Developer Experience",
			Priority: "Medium",
			Action:   "Implement RAG-based documentation search",
			Impact:   "Improve developer onboarding and reduce support",
			Effort:   "Low",
		})
	}

	name := strings.ToLower(result.Repository)

	if strings.Contains(name, "saas") || strings.Contains(name, "platform") {
		recommendations = append(recommendations, Recommendation{
			Category: "Automation",
			Priority: "High",
			Action:   "Add AI agent for customer support automation",
			Impact:   "Reduce support costs, improve response time",
			Effort:   "Medium",
		})
	}

	for _, keyword := range []string{"shop", "commerce", "marketplace"} {
		if strings.Contains(name, keyword) {
			recommendations = append(recommendations, Recommendation{
				Category: "Revenue Optimization",
				Priority: "Critical",
				Action:   "Implement AI-powered product recommendations",
				Impact:   "Increase conversion rate by 15-30%",
				Effort:   "Medium",
			})
			break
		}
	}

	recommendations = append(recommendations, Recommendation{
		Category: "Reliability",
		Priority: "Medium",
		Action:   "Use structured outputs for all AI integrations",
		Impact:   "Reduce errors and improve user experience",
		Effort:   "Low",
	})

	return recommendations
}
