package types

// AnalyzeRequest represents the request structure for the analyze endpoint.
// Repository is an "owner/name" reference or a full github.com URL.
type AnalyzeRequest struct {
	Repository string `json:"repository" binding:"required"`
}

// CheckoutRequest represents the request structure for creating a
// Stripe checkout session.
type CheckoutRequest struct {
	Plan string `json:"plan" binding:"required"`
}
