package billing

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/repoyield/repoyield/internal/database"
)

// Service provides account lookup, quota enforcement, and session tokens
type Service struct {
	repo      *database.Repository
	jwtSecret []byte
}

// NewService creates a new billing service
func NewService(repo *database.Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Authenticate resolves an API key to its account. A nil account with a
// nil error means the key is unknown.
func (s *Service) Authenticate(apiKey string) (*database.Account, error) {
	if apiKey == "" {
		return nil, nil
	}
	return s.repo.GetAccountByAPIKey(apiKey)
}

// AuthenticateSession resolves a session token to its account. A nil
// account with a nil error means the token names an account that no
// longer exists; an invalid or expired token is an error.
func (s *Service) AuthenticateSession(tokenString string) (*database.Account, error) {
	accountID, err := s.ValidateSessionToken(tokenString)
	if err != nil {
		return nil, err
	}
	return s.repo.GetAccountByID(accountID)
}

// CreateAccount registers a new account on the given plan
func (s *Service) CreateAccount(email, planID string) (*database.Account, error) {
	if _, ok := PlanByID(planID); !ok {
		return nil, fmt.Errorf("unknown plan: %s", planID)
	}

	account := database.NewAccount(email, planID)
	if err := s.repo.CreateAccount(account); err != nil {
		return nil, err
	}

	return account, nil
}

// RequestResult represents the outcome of a quota check
type RequestResult struct {
	Account        *database.Account    `json:"account"`
	Usage          *database.UsageStats `json:"usage"`
	CanMakeRequest bool                 `json:"can_make_request"`
	RequestLogged  bool                 `json:"request_logged"`
}

// ProcessRequest enforces the account's monthly quota and logs analyze
// requests that are allowed through.
func (s *Service) ProcessRequest(account *database.Account, ipAddress, userAgent, endpoint, method string) (*RequestResult, error) {
	canMakeRequest, usage, err := s.CanMakeRequest(account)
	if err != nil {
		return nil, fmt.Errorf("failed to check request limits: %w", err)
	}

	result := &RequestResult{
		Account:        account,
		Usage:          usage,
		CanMakeRequest: canMakeRequest,
	}

	// Only analyze requests count against the quota
	if endpoint == "/analyze" && canMakeRequest {
		if err := s.repo.LogRequest(account.ID, ipAddress, endpoint, method, userAgent); err != nil {
			return nil, fmt.Errorf("failed to log request: %w", err)
		}
		result.RequestLogged = true
	}

	return result, nil
}

// CanMakeRequest checks whether the account is within its monthly quota
func (s *Service) CanMakeRequest(account *database.Account) (bool, *database.UsageStats, error) {
	usage, err := s.repo.GetMonthlyUsage(account.ID, "/analyze")
	if err != nil {
		return false, nil, err
	}

	quota := QuotaForPlan(account.Plan)
	if quota == UnlimitedQuota {
		return true, usage, nil
	}

	return usage.RequestsThisMonth < quota, usage, nil
}

// GetRemainingRequests returns remaining analyses this month, -1 for unlimited
func (s *Service) GetRemainingRequests(account *database.Account) (int, error) {
	quota := QuotaForPlan(account.Plan)
	if quota == UnlimitedQuota {
		return UnlimitedQuota, nil
	}

	usage, err := s.repo.GetMonthlyUsage(account.ID, "/analyze")
	if err != nil {
		return 0, err
	}

	remaining := quota - usage.RequestsThisMonth
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// GenerateSessionToken generates a JWT token for the account session
func (s *Service) GenerateSessionToken(accountID string) (string, error) {
	claims := jwt.MapClaims{
		"account_id": accountID,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
		"iat":        time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the account ID
func (s *Service) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		accountID, ok := claims["account_id"].(string)
		if !ok {
			return "", fmt.Errorf("account_id not found in token")
		}
		return accountID, nil
	}

	return "", fmt.Errorf("invalid token")
}

// UpgradeAccount moves an account to a new plan after a completed checkout
func (s *Service) UpgradeAccount(accountID, planID, stripeCustomerID string) error {
	if _, ok := PlanByID(planID); !ok {
		return fmt.Errorf("unknown plan: %s", planID)
	}
	return s.repo.UpdateAccountPlan(accountID, planID, stripeCustomerID)
}

// CreatePaymentRecord creates a payment record in the database
func (s *Service) CreatePaymentRecord(accountID, stripePaymentID, currency, status, planID string, amount int64) (*database.Payment, error) {
	return s.repo.CreatePayment(accountID, stripePaymentID, currency, status, planID, amount)
}

// AccountStats represents quota statistics for one account
type AccountStats struct {
	AccountID         string    `json:"account_id"`
	Plan              string    `json:"plan"`
	RequestsThisMonth int       `json:"requests_this_month"`
	RemainingRequests int       `json:"remaining_requests"` // -1 for unlimited
	MonthStart        time.Time `json:"month_start"`
	MonthEnd          time.Time `json:"month_end"`
}

// GetAccountStats returns the full quota picture for one account
func (s *Service) GetAccountStats(account *database.Account) (*AccountStats, error) {
	usage, err := s.repo.GetMonthlyUsage(account.ID, "/analyze")
	if err != nil {
		return nil, err
	}

	remaining, err := s.GetRemainingRequests(account)
	if err != nil {
		return nil, err
	}

	return &AccountStats{
		AccountID:         account.ID,
		Plan:              account.Plan,
		RequestsThisMonth: usage.RequestsThisMonth,
		RemainingRequests: remaining,
		MonthStart:        usage.MonthStart,
		MonthEnd:          usage.MonthEnd,
	}, nil
}
