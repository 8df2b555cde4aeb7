package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateAccount inserts a new account
func (r *Repository) CreateAccount(account *Account) error {
	stmt, err := r.db.GetPreparedStatement("insert_account")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(account.ID, account.APIKey, account.Email, account.Plan,
		account.StripeID, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccountByAPIKey looks up an account by its API key, nil when absent
func (r *Repository) GetAccountByAPIKey(apiKey string) (*Account, error) {
	stmt, err := r.db.GetPreparedStatement("get_account_by_key")
	if err != nil {
		return nil, err
	}

	var account Account
	var email, stripeID sql.NullString
	err = stmt.QueryRow(apiKey).Scan(
		&account.ID, &account.APIKey, &email, &account.Plan,
		&stripeID, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	account.Email = email.String
	account.StripeID = stripeID.String
	return &account, nil
}

// GetAccountByID looks up an account by its ID, nil when absent
func (r *Repository) GetAccountByID(accountID string) (*Account, error) {
	var account Account
	var email, stripeID sql.NullString
	err := r.db.QueryRow(`
		SELECT id, api_key, email, plan, stripe_customer_id, created_at, updated_at
		FROM accounts
		WHERE id = ?
	`, accountID).Scan(
		&account.ID, &account.APIKey, &email, &account.Plan,
		&stripeID, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}

	account.Email = email.String
	account.StripeID = stripeID.String
	return &account, nil
}

// GetAccountByStripeCustomerID looks up an account by its Stripe customer ID
func (r *Repository) GetAccountByStripeCustomerID(stripeCustomerID string) (*Account, error) {
	var account Account
	var email, stripeID sql.NullString
	err := r.db.QueryRow(`
		SELECT id, api_key, email, plan, stripe_customer_id, created_at, updated_at
		FROM accounts
		WHERE stripe_customer_id = ?
	`, stripeCustomerID).Scan(
		&account.ID, &account.APIKey, &email, &account.Plan,
		&stripeID, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by stripe customer ID: %w", err)
	}

	account.Email = email.String
	account.StripeID = stripeID.String
	return &account, nil
}

// UpdateAccountPlan updates an account's plan and Stripe customer ID
func (r *Repository) UpdateAccountPlan(accountID, plan, stripeCustomerID string) error {
	_, err := r.db.Exec(`
		UPDATE accounts SET plan = ?, stripe_customer_id = ?, updated_at = ?
		WHERE id = ?
	`, plan, stripeCustomerID, time.Now(), accountID)

	if err != nil {
		return fmt.Errorf("failed to update account plan: %w", err)
	}

	return nil
}

// LogRequest logs an API request
func (r *Repository) LogRequest(accountID, ipAddress, endpoint, method, userAgent string) error {
	stmt, err := r.db.GetPreparedStatement("insert_request_log")
	if err != nil {
		return err
	}

	reqLog := NewRequestLog(accountID, ipAddress, endpoint, method, userAgent)
	_, err = stmt.Exec(reqLog.ID, reqLog.AccountID, reqLog.IPAddress,
		reqLog.Endpoint, reqLog.Method, reqLog.UserAgent, reqLog.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log request: %w", err)
	}

	return nil
}

// GetMonthlyUsage counts requests to one endpoint for the current calendar month
func (r *Repository) GetMonthlyUsage(accountID, endpoint string) (*UsageStats, error) {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var plan string
	err := r.db.QueryRow(`SELECT plan FROM accounts WHERE id = ?`, accountID).Scan(&plan)
	if err != nil {
		return nil, fmt.Errorf("failed to get account plan: %w", err)
	}

	stmt, err := r.db.GetPreparedStatement("count_monthly_requests")
	if err != nil {
		return nil, err
	}

	var requestCount int
	err = stmt.QueryRow(accountID, endpoint, monthStart, monthEnd).Scan(&requestCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	return &UsageStats{
		AccountID:         accountID,
		Plan:              plan,
		RequestsThisMonth: requestCount,
		MonthStart:        monthStart,
		MonthEnd:          monthEnd,
	}, nil
}

// CreatePayment creates a payment record
func (r *Repository) CreatePayment(accountID, stripePaymentID, currency, status, plan string, amount int64) (*Payment, error) {
	payment := &Payment{
		ID:              uuid.New().String(),
		AccountID:       accountID,
		StripePaymentID: stripePaymentID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		Plan:            plan,
		CreatedAt:       time.Now(),
	}

	stmt, err := r.db.GetPreparedStatement("insert_payment")
	if err != nil {
		return nil, err
	}

	_, err = stmt.Exec(payment.ID, payment.AccountID, payment.StripePaymentID,
		payment.Amount, payment.Currency, payment.Status, payment.Plan, payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

// SaveAnalysis persists a stored analysis row
func (r *Repository) SaveAnalysis(stored *StoredAnalysis) error {
	stmt, err := r.db.GetPreparedStatement("insert_analysis")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(stored.ID, stored.AccountID, stored.Owner, stored.Repo,
		stored.TotalScore, stored.RevenuePotential, stored.EstimatedValue,
		stored.ResultJSON, stored.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// ListOwnerAnalyses returns the most recent stored analysis per repository
// for an owner, ranked by total score descending.
func (r *Repository) ListOwnerAnalyses(owner string) ([]*StoredAnalysis, error) {
	stmt, err := r.db.GetPreparedStatement("get_owner_analyses")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*StoredAnalysis
	for rows.Next() {
		var stored StoredAnalysis
		var accountID sql.NullString
		err := rows.Scan(&stored.ID, &accountID, &stored.Owner, &stored.Repo,
			&stored.TotalScore, &stored.RevenuePotential, &stored.EstimatedValue,
			&stored.ResultJSON, &stored.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		stored.AccountID = accountID.String
		analyses = append(analyses, &stored)
	}

	return analyses, rows.Err()
}

// SaveWorkflowRun persists a fleet scan run record
func (r *Repository) SaveWorkflowRun(run *WorkflowRun) error {
	stmt, err := r.db.GetPreparedStatement("insert_workflow_run")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(run.ID, run.Owner, run.ReposScanned, run.ReposFailed,
		run.TotalValue, run.TopRepo, run.TopScore, run.DigestSent,
		run.Status, run.StartedAt, run.CompletedAt, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save workflow run: %w", err)
	}

	return nil
}

// LatestWorkflowRun returns the most recent run for an owner, nil when none exist
func (r *Repository) LatestWorkflowRun(owner string) (*WorkflowRun, error) {
	stmt, err := r.db.GetPreparedStatement("get_latest_workflow_run")
	if err != nil {
		return nil, err
	}

	var run WorkflowRun
	var topRepo, errMsg sql.NullString
	var topScore sql.NullFloat64
	var completedAt sql.NullTime
	err = stmt.QueryRow(owner).Scan(&run.ID, &run.Owner, &run.ReposScanned,
		&run.ReposFailed, &run.TotalValue, &topRepo, &topScore,
		&run.DigestSent, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow run: %w", err)
	}

	run.TopRepo = topRepo.String
	run.TopScore = topScore.Float64
	run.ErrorMessage = errMsg.String
	run.CompletedAt = completedAt.Time
	return &run, nil
}

// CleanupOldData purges stored analyses and request logs older than the
// retention window. Workflow runs are small and kept for history.
func (r *Repository) CleanupOldData(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	var total int64
	res, err := r.db.Exec(`DELETE FROM analyses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge analyses: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.Exec(`DELETE FROM request_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("failed to purge request logs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}
