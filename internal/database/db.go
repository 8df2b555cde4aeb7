package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Pool limits for the shared SQLite handle. SQLite serializes writes
// anyway, so a modest open-connection cap keeps readers flowing without
// piling up lock contention.
const (
	maxOpenConns = 25
	maxIdleConns = 5
	connLifetime = 5 * time.Minute
)

// DB is the application database handle. It embeds the raw sql.DB and
// keeps a registry of prepared statements for the hot queries.
type DB struct {
	*sql.DB
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// NewDB opens (or creates) the SQLite database under dataDir, applies
// migrations, and prepares the statement registry.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "repoyield.db")

	// WAL lets digest workflow writes proceed alongside API reads.
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &DB{
		DB:       db,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"max_open_conns", maxOpenConns,
		"max_idle_conns", maxIdleConns)

	return database, nil
}

// migrate applies the schema. Every statement is idempotent, so it
// runs unconditionally on startup.
func (db *DB) migrate() error {
	queries := []string{
		// Accounts table
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			api_key TEXT NOT NULL UNIQUE,
			email TEXT,
			plan TEXT NOT NULL DEFAULT 'starter',
			stripe_customer_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Request logs table
		`CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			user_agent TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		)`,

		// Payments table
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			stripe_payment_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			plan TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		)`,

		// Stored analyses
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			account_id TEXT,
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			total_score REAL NOT NULL,
			revenue_potential TEXT NOT NULL,
			estimated_value INTEGER NOT NULL,
			result_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Workflow runs
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			repos_scanned INTEGER NOT NULL,
			repos_failed INTEGER NOT NULL,
			total_value INTEGER NOT NULL,
			top_repo TEXT,
			top_score REAL,
			digest_sent BOOLEAN DEFAULT FALSE,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			error_message TEXT
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_accounts_api_key ON accounts(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_stripe ON accounts(stripe_customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_account_id ON request_logs(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_account_id ON payments(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_owner ON analyses(owner, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_score ON analyses(total_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_owner ON workflow_runs(owner, started_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements prepares the queries on the request path and
// the digest workflow path.
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_account": `INSERT INTO accounts (id, api_key, email, plan, stripe_customer_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"get_account_by_key": `SELECT id, api_key, email, plan, stripe_customer_id, created_at, updated_at
			FROM accounts WHERE api_key = ?`,

		"insert_request_log": `INSERT INTO request_logs (id, account_id, ip_address, endpoint, method, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"count_monthly_requests": `SELECT COUNT(*) FROM request_logs
			WHERE account_id = ? AND endpoint = ? AND created_at >= ? AND created_at < ?`,

		"insert_payment": `INSERT INTO payments (id, account_id, stripe_payment_id, amount, currency, status, plan, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_analysis": `INSERT INTO analyses (
			id, account_id, owner, repo, total_score, revenue_potential,
			estimated_value, result_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"get_owner_analyses": `SELECT a.id, a.account_id, a.owner, a.repo, a.total_score,
			a.revenue_potential, a.estimated_value, a.result_json, a.created_at
			FROM analyses a
			INNER JOIN (
				SELECT owner, repo, MAX(created_at) AS latest
				FROM analyses WHERE owner = ? GROUP BY owner, repo
			) recent ON a.owner = recent.owner AND a.repo = recent.repo AND a.created_at = recent.latest
			ORDER BY a.total_score DESC`,

		"insert_workflow_run": `INSERT INTO workflow_runs (
			id, owner, repos_scanned, repos_failed, total_value, top_repo,
			top_score, digest_sent, status, started_at, completed_at, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"get_latest_workflow_run": `SELECT id, owner, repos_scanned, repos_failed, total_value,
			top_repo, top_score, digest_sent, status, started_at, completed_at, error_message
			FROM workflow_runs WHERE owner = ? ORDER BY started_at DESC LIMIT 1`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement looks up a statement by the name it was
// registered under in initPreparedStatements.
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats reports connection pool counters for the admin pools endpoint.
func (db *DB) GetPoolStats() map[string]interface{} {
	stats := db.DB.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": maxOpenConns,
		"max_idle_connections": maxIdleConns,
		"max_lifetime_seconds": connLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// Close releases the prepared statements and the underlying connection.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
