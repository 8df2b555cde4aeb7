package billing

// Plan identifiers
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanAgency       = "agency"
)

// UnlimitedQuota marks plans without a monthly analysis cap
const UnlimitedQuota = -1

// Plan describes one subscription tier
type Plan struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	PriceCents    int64    `json:"price_cents"`
	MonthlyQuota  int      `json:"monthly_quota"` // -1 for unlimited
	StripePriceID string   `json:"-"`
	Features      []string `json:"features"`
}

// planCatalog is the static tier table. Stripe price IDs are
// placeholders overridden through SetStripePriceID at startup.
var planCatalog = []Plan{
	{
		ID:            PlanStarter,
		Name:          "Starter",
		PriceCents:    4900,
		MonthlyQuota:  10,
		StripePriceID: "price_starter_monthly",
		Features: []string{
			"10 repository analyses per month",
			"Full 7-dimension scoring",
			"Monetization strategies and next steps",
		},
	},
	{
		ID:            PlanProfessional,
		Name:          "Professional",
		PriceCents:    9900,
		MonthlyQuota:  50,
		StripePriceID: "price_professional_monthly",
		Features: []string{
			"50 repository analyses per month",
			"Portfolio ranking across repositories",
			"Scheduled fleet scans with email digests",
		},
	},
	{
		ID:            PlanAgency,
		Name:          "Agency",
		PriceCents:    29900,
		MonthlyQuota:  UnlimitedQuota,
		StripePriceID: "price_agency_monthly",
		Features: []string{
			"Unlimited repository analyses",
			"Portfolio ranking across repositories",
			"Scheduled fleet scans with email digests",
			"Priority support",
		},
	},
}

// Plans returns the full plan catalog
func Plans() []Plan {
	out := make([]Plan, len(planCatalog))
	copy(out, planCatalog)
	return out
}

// PlanByID looks up a plan by its identifier
func PlanByID(id string) (Plan, bool) {
	for _, p := range planCatalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// QuotaForPlan returns the monthly analysis quota for a plan ID.
// Unknown plans fall back to the starter quota.
func QuotaForPlan(id string) int {
	if p, ok := PlanByID(id); ok {
		return p.MonthlyQuota
	}
	return planCatalog[0].MonthlyQuota
}

// SetStripePriceID overrides the Stripe price ID for a plan, used at
// startup to inject the real IDs from configuration.
func SetStripePriceID(planID, priceID string) {
	if priceID == "" {
		return
	}
	for i := range planCatalog {
		if planCatalog[i].ID == planID {
			planCatalog[i].StripePriceID = priceID
			return
		}
	}
}
