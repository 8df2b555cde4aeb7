package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repoyield/repoyield/internal/analysis"
)

// Account represents an API customer identified by an API key
type Account struct {
	ID        string    `json:"id" db:"id"`
	APIKey    string    `json:"-" db:"api_key"`
	Email     string    `json:"email,omitempty" db:"email"`
	Plan      string    `json:"plan" db:"plan"`
	StripeID  string    `json:"-" db:"stripe_customer_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RequestLog tracks analyze requests for monthly quota accounting
type RequestLog struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	IPAddress string    `json:"-" db:"ip_address"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	Method    string    `json:"method" db:"method"`
	UserAgent string    `json:"-" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payment represents a subscription payment
type Payment struct {
	ID              string    `json:"id" db:"id"`
	AccountID       string    `json:"account_id" db:"account_id"`
	StripePaymentID string    `json:"stripe_payment_id" db:"stripe_payment_id"`
	Amount          int64     `json:"amount" db:"amount"` // Amount in cents
	Currency        string    `json:"currency" db:"currency"`
	Status          string    `json:"status" db:"status"`
	Plan            string    `json:"plan" db:"plan"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// StoredAnalysis is a persisted analysis result for one repository.
// The full AnalysisResult is kept as JSON; the score columns exist so
// portfolio queries can rank without decoding every row.
type StoredAnalysis struct {
	ID               string    `json:"id" db:"id"`
	AccountID        string    `json:"account_id,omitempty" db:"account_id"`
	Owner            string    `json:"owner" db:"owner"`
	Repo             string    `json:"repo" db:"repo"`
	TotalScore       float64   `json:"total_score" db:"total_score"`
	RevenuePotential string    `json:"revenue_potential" db:"revenue_potential"`
	EstimatedValue   int       `json:"estimated_value" db:"estimated_value"`
	ResultJSON       string    `json:"-" db:"result_json"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// WorkflowRun records one fleet scan execution
type WorkflowRun struct {
	ID            string    `json:"id" db:"id"`
	Owner         string    `json:"owner" db:"owner"`
	ReposScanned  int       `json:"repos_scanned" db:"repos_scanned"`
	ReposFailed   int       `json:"repos_failed" db:"repos_failed"`
	TotalValue    int       `json:"total_value" db:"total_value"`
	TopRepo       string    `json:"top_repo" db:"top_repo"`
	TopScore      float64   `json:"top_score" db:"top_score"`
	DigestSent    bool      `json:"digest_sent" db:"digest_sent"`
	Status        string    `json:"status" db:"status"`
	StartedAt     time.Time `json:"started_at" db:"started_at"`
	CompletedAt   time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage  string    `json:"error_message,omitempty" db:"error_message"`
}

// UsageStats represents monthly usage statistics for an account
type UsageStats struct {
	AccountID         string    `json:"account_id"`
	Plan              string    `json:"plan"`
	RequestsThisMonth int       `json:"requests_this_month"`
	MonthStart        time.Time `json:"month_start"`
	MonthEnd          time.Time `json:"month_end"`
}

// NewAccount creates a new account with a generated ID and API key
func NewAccount(email, plan string) *Account {
	now := time.Now()
	return &Account{
		ID:        uuid.New().String(),
		APIKey:    "ry_" + uuid.New().String(),
		Email:     email,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewStoredAnalysis builds a persistence row from an analysis result.
// The parsed owner/repo come from the caller; the result only carries
// the combined repository name.
func NewStoredAnalysis(accountID, owner, repo string, result analysis.AnalysisResult) (*StoredAnalysis, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis result: %w", err)
	}

	return &StoredAnalysis{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		Owner:            owner,
		Repo:             repo,
		TotalScore:       result.TotalScore,
		RevenuePotential: result.RevenuePotential,
		EstimatedValue:   result.EstimatedValue,
		ResultJSON:       string(encoded),
		CreatedAt:        time.Now(),
	}, nil
}

// Result decodes the stored analysis JSON back into an AnalysisResult
func (s *StoredAnalysis) Result() (analysis.AnalysisResult, error) {
	var result analysis.AnalysisResult
	if err := json.Unmarshal([]byte(s.ResultJSON), &result); err != nil {
		return analysis.AnalysisResult{}, fmt.Errorf("failed to decode stored analysis: %w", err)
	}
	return result, nil
}

// NewRequestLog creates a new request log entry
func NewRequestLog(accountID, ipAddress, endpoint, method, userAgent string) *RequestLog {
	return &RequestLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		IPAddress: ipAddress,
		Endpoint:  endpoint,
		Method:    method,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
}
