package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/repoyield/repoyield/internal/adapters"
	"github.com/repoyield/repoyield/internal/analysis"
	"github.com/repoyield/repoyield/internal/billing"
	"github.com/repoyield/repoyield/internal/cache"
	"github.com/repoyield/repoyield/internal/database"
	apperrors "github.com/repoyield/repoyield/internal/errors"
	"github.com/repoyield/repoyield/internal/monitoring"
	"github.com/repoyield/repoyield/internal/portfolio"
	"github.com/repoyield/repoyield/internal/ratelimit"
	"github.com/repoyield/repoyield/internal/resilience"
	"github.com/repoyield/repoyield/internal/security"
	"github.com/repoyield/repoyield/internal/types"
)

var startTime = time.Now()

func main() {
	logger := monitoring.NewLogger()
	slog.SetDefault(logger.Logger)

	gin.SetMode(getEnvOrDefault("GIN_MODE", gin.ReleaseMode))

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	githubToken := os.Getenv("GITHUB_TOKEN")
	jwtSecret := getEnvOrDefault("JWT_SECRET", "your-super-secret-jwt-key-change-in-production")
	stripeSecretKey := os.Getenv("STRIPE_SECRET_KEY")
	stripeWebhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	adminToken := os.Getenv("ADMIN_TOKEN")
	redisAddr := os.Getenv("REDIS_ADDR")
	port := getEnvOrDefault("PORT", "8080")

	// Plan price IDs are configured per environment
	billing.SetStripePriceID(billing.PlanStarter, os.Getenv("STRIPE_PRICE_STARTER"))
	billing.SetStripePriceID(billing.PlanProfessional, os.Getenv("STRIPE_PRICE_PROFESSIONAL"))
	billing.SetStripePriceID(billing.PlanAgency, os.Getenv("STRIPE_PRICE_AGENCY"))

	metrics := monitoring.NewMetrics()

	// Database and billing
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	billingService := billing.NewService(repo, jwtSecret)

	// Scoring pipeline
	analyzer, err := analysis.NewAnalyzer()
	if err != nil {
		slog.Error("Invalid scoring configuration", "error", err)
		os.Exit(1)
	}

	// GitHub adapter
	githubAdapter := adapters.NewGitHubAdapter(githubToken)
	githubAdapter.SetMetrics(metrics)
	defer githubAdapter.Close()

	// Portfolio service with its 15 minute cache
	portfolioService := portfolio.NewService(repo)

	// Response cache for repeated analyze requests
	responseCache := cache.NewCache(5 * time.Minute)

	// Stripe client
	var stripeClient *client.API
	if stripeSecretKey != "" {
		stripe.Key = stripeSecretKey
		stripeClient = &client.API{}
		stripeClient.Init(stripeSecretKey, nil)
		slog.Info("Stripe client initialized")
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, payment endpoints disabled")
	}

	// Distributed rate limiting with in-memory fallback
	redisClient, err := ratelimit.NewRedisClient(redisAddr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		slog.Warn("Redis unavailable, using in-memory rate limiting", "error", err)
	}
	rateLimiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), metrics)

	// Security middleware with API key authentication
	securityMiddleware := security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	securityMiddleware.SetBillingService(billingService)

	// Background service health checks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resilience.RegisterService("database", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	resilience.StartHealthChecks(ctx)

	// Alerting on sustained error rates
	monitoring.InitGlobalAlertManager(logger, metrics, 30*time.Second)
	if webhookURL := os.Getenv("SLACK_WEBHOOK_URL"); webhookURL != "" {
		monitoring.GetGlobalAlertManager().AddNotifier(monitoring.NewSlackNotifier(webhookURL))
	}
	monitoring.StartGlobalAlerting(ctx)

	// Periodic memory stats for the metrics endpoint
	memoryMonitor := monitoring.NewMemoryMonitor(time.Minute, 512*1024*1024, logger, metrics)
	memoryMonitor.Start()
	defer memoryMonitor.Stop()

	// Daily retention cleanup
	go runRetentionLoop(ctx, repo)

	router := setupRouter(routerDeps{
		logger:              logger,
		metrics:             metrics,
		db:                  db,
		repo:                repo,
		billing:             billingService,
		analyzer:            analyzer,
		github:              githubAdapter,
		portfolio:           portfolioService,
		responseCache:       responseCache,
		rateLimiter:         rateLimiter,
		security:            securityMiddleware,
		memoryMonitor:       memoryMonitor,
		stripeClient:        stripeClient,
		stripeWebhookSecret: stripeWebhookSecret,
		adminToken:          adminToken,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", "error", err)
	}

	slog.Info("Server stopped")
}

type routerDeps struct {
	logger              *monitoring.Logger
	metrics             *monitoring.Metrics
	db                  *database.DB
	repo                *database.Repository
	billing             *billing.Service
	analyzer            *analysis.Analyzer
	github              *adapters.GitHubAdapter
	portfolio           *portfolio.Service
	responseCache       *cache.Cache
	rateLimiter         *ratelimit.RateLimiter
	security            *security.SecurityMiddleware
	memoryMonitor       *monitoring.MemoryMonitor
	stripeClient        *client.API
	stripeWebhookSecret string
	adminToken          string
}

func setupRouter(deps routerDeps) *gin.Engine {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(deps.security.SecurityHeaders)
	r.Use(deps.security.CORSConfig())
	r.Use(monitoring.MonitoringMiddleware(deps.metrics, deps.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(deps.logger))
	r.Use(deps.security.ValidateContentType)
	r.Use(deps.security.RequestTimeout)
	r.Use(deps.rateLimiter.IPRateLimitMiddleware())

	// Public endpoints
	r.GET("/health", handleHealth(deps))
	r.GET("/metrics", handleMetrics(deps))
	r.GET("/cache/stats", handleCacheStats(deps))
	r.GET("/pools", handlePoolStats(deps))
	r.GET("/plans", handlePlans())
	r.GET("/rate-limit-status", deps.rateLimiter.HandleRateLimitStatus())
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Stripe webhook carries its own signature, not an API key
	r.POST("/payment/webhook", handleStripeWebhook(deps))

	// Authenticated endpoints
	authed := r.Group("/")
	authed.Use(deps.security.APIKeyAuth)
	{
		authed.POST("/analyze",
			deps.rateLimiter.AccountRateLimitMiddleware(),
			deps.security.AccountQuota,
			deps.responseCache.Middleware(deps.metrics),
			deps.security.ValidateAnalyzeRequest,
			handleAnalyze(deps),
		)
		authed.GET("/portfolio/:owner", handlePortfolio(deps))
		authed.GET("/user/stats", handleUserStats(deps))
		authed.POST("/auth/session",
			deps.rateLimiter.EndpointRateLimitMiddleware("auth-session", 10),
			handleCreateSession(deps),
		)
		authed.POST("/payment/create-session", handleCreateCheckoutSession(deps))
	}

	// Admin endpoints
	admin := r.Group("/admin")
	admin.Use(adminAuth(deps.adminToken))
	{
		admin.GET("/rate-limits", deps.rateLimiter.HandleAdminRateLimits())
		admin.GET("/rate-limits/metrics", deps.rateLimiter.HandleAdminRateLimitMetrics())
		admin.POST("/rate-limits/reset/:accountID", deps.rateLimiter.HandleAdminResetRateLimit())
		admin.POST("/rate-limits/invalidate-ip/:ip", deps.rateLimiter.HandleAdminInvalidateIP())
		admin.POST("/accounts", handleCreateAccount(deps))
	}

	return r
}

// adminAuth gates admin routes behind a shared token. With no token
// configured the routes are disabled entirely.
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access denied"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// handleAnalyze godoc
// @Summary Analyze a repository's monetization potential
// @Accept json
// @Produce json
// @Param request body types.AnalyzeRequest true "Repository reference"
// @Success 200 {object} analysis.AnalysisResult
// @Router /analyze [post]
func handleAnalyze(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		owner := c.GetString("owner")
		repoName := c.GetString("repo")

		snapshot, err := deps.github.FetchSnapshot(c.Request.Context(), owner, repoName)
		if err != nil {
			appErr := apperrors.ToAppError(err)
			apperrors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		result := deps.analyzer.Analyze(snapshot)

		accountID := ""
		if accountValue, exists := c.Get("account"); exists {
			if account, ok := accountValue.(*database.Account); ok {
				accountID = account.ID
			}
		}

		if stored, err := database.NewStoredAnalysis(accountID, owner, repoName, result); err == nil {
			if err := deps.repo.SaveAnalysis(stored); err != nil {
				deps.logger.Warn("Failed to persist analysis", "repository", result.Repository, "error", err.Error())
			} else {
				deps.portfolio.Invalidate(owner)
			}
		}

		deps.logger.AnalysisLogger(result.Repository, result.TotalScore, result.RevenuePotential, time.Since(start), false)

		c.JSON(http.StatusOK, result)
	}
}

// handlePortfolio godoc
// @Summary Ranked portfolio for an owner
// @Produce json
// @Param owner path string true "GitHub owner"
// @Success 200 {object} portfolio.Portfolio
// @Router /portfolio/{owner} [get]
func handlePortfolio(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.Param("owner")

		if _, _, err := security.ParseRepoReference(owner + "/placeholder"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner name"})
			return
		}

		result, err := deps.portfolio.GetPortfolio(owner)
		if err != nil {
			appErr := apperrors.NewInternalError("failed to load portfolio", err)
			apperrors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func handlePlans() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"plans": billing.Plans(),
		})
	}
}

func handleUserStats(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountValue, exists := c.Get("account")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		account := accountValue.(*database.Account)

		stats, err := deps.billing.GetAccountStats(account)
		if err != nil {
			appErr := apperrors.NewInternalError("failed to load account stats", err)
			apperrors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

// handleCreateSession exchanges an API key for a short-lived session
// token, so browser clients never hold the long-lived key
func handleCreateSession(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountValue, exists := c.Get("account")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		account := accountValue.(*database.Account)

		token, err := deps.billing.GenerateSessionToken(account.ID)
		if err != nil {
			appErr := apperrors.NewInternalError("failed to create session", err)
			apperrors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int((24 * time.Hour).Seconds()),
		})
	}
}

func handleCreateAccount(deps routerDeps) gin.HandlerFunc {
	type createAccountRequest struct {
		Email string `json:"email" binding:"required"`
		Plan  string `json:"plan"`
	}

	return func(c *gin.Context) {
		var req createAccountRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		if req.Plan == "" {
			req.Plan = billing.PlanStarter
		}

		account, err := deps.billing.CreateAccount(req.Email, req.Plan)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The API key is returned exactly once, at creation
		c.JSON(http.StatusCreated, gin.H{
			"account_id": account.ID,
			"api_key":    account.APIKey,
			"plan":       account.Plan,
		})
	}
}

func handleCreateCheckoutSession(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.stripeClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments not configured"})
			return
		}

		accountValue, exists := c.Get("account")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		account := accountValue.(*database.Account)

		var req types.CheckoutRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		plan, ok := billing.PlanByID(req.Plan)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
			return
		}

		sessionParams := &stripe.CheckoutSessionParams{
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(plan.StripePriceID),
					Quantity: stripe.Int64(1),
				},
			},
			Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			SuccessURL:        stripe.String(getEnvOrDefault("CHECKOUT_SUCCESS_URL", "https://repoyield.dev/payment/success?session_id={CHECKOUT_SESSION_ID}")),
			CancelURL:         stripe.String(getEnvOrDefault("CHECKOUT_CANCEL_URL", "https://repoyield.dev/payment/cancelled")),
			ClientReferenceID: stripe.String(account.ID),
		}
		sessionParams.AddMetadata("plan", plan.ID)

		session, err := deps.stripeClient.CheckoutSessions.New(sessionParams)
		if err != nil {
			appErr := apperrors.NewExternalAPIError("stripe", err)
			apperrors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id":   session.ID,
			"checkout_url": session.URL,
		})
	}
}

func handleStripeWebhook(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.stripeClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments not configured"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), deps.stripeWebhookSecret)
		if err != nil {
			slog.Error("Webhook signature verification failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to verify webhook"})
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				slog.Error("Failed to parse checkout session", "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse event"})
				return
			}

			accountID := session.ClientReferenceID
			if accountID == "" {
				slog.Error("Account ID is empty in webhook")
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing account reference"})
				return
			}

			planID := session.Metadata["plan"]
			if _, ok := billing.PlanByID(planID); !ok {
				slog.Error("Unknown plan in webhook", "plan", planID)
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
				return
			}

			customerID := ""
			if session.Customer != nil {
				customerID = session.Customer.ID
			}

			if err := deps.billing.UpgradeAccount(accountID, planID, customerID); err != nil {
				slog.Error("Failed to upgrade account", "account_id", accountID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade account"})
				return
			}

			if _, err := deps.billing.CreatePaymentRecord(accountID, session.ID, string(session.Currency), "completed", planID, session.AmountTotal); err != nil {
				slog.Error("Failed to record payment", "account_id", accountID, "error", err)
			}

			// Fresh quota window on the new plan
			if err := deps.rateLimiter.ResetOnUpgrade(c.Request.Context(), accountID); err != nil {
				slog.Warn("Failed to reset rate limits after upgrade", "account_id", accountID, "error", err)
			}

			slog.Info("Account upgraded", "account_id", accountID, "plan", planID)

		default:
			slog.Debug("Unhandled webhook event", "type", event.Type)
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func handleHealth(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		httpStatus := http.StatusOK

		if err := deps.db.Ping(); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":    status,
			"uptime":    time.Since(startTime).String(),
			"services":  resilience.GetAllServiceHealth(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func handleMetrics(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{
			"metrics":          deps.metrics.GetStats(),
			"rate_limits":      deps.metrics.GetRateLimitStats(),
			"circuit_breakers": resilience.GetCircuitBreakerStats(),
			"timestamp":        time.Now().Format(time.RFC3339),
		}
		if deps.memoryMonitor != nil {
			response["memory"] = deps.memoryMonitor.GetStats()
		}
		if am := monitoring.GetGlobalAlertManager(); am != nil {
			response["active_alerts"] = am.GetActiveAlerts()
		}

		c.JSON(http.StatusOK, response)
	}
}

func handleCacheStats(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"response_cache":  deps.responseCache.Stats(),
			"portfolio_cache": deps.portfolio.GetCacheStats(),
			"timestamp":       time.Now().Format(time.RFC3339),
		})
	}
}

func handlePoolStats(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"github_pool":   deps.github.GetPoolStats(),
			"database_pool": deps.db.GetPoolStats(),
			"timestamp":     time.Now().Format(time.RFC3339),
		})
	}
}

// runRetentionLoop purges analyses and request logs past the retention
// window once a day
func runRetentionLoop(ctx context.Context, repo *database.Repository) {
	retentionDays := 365
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			retentionDays = parsed
		}
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := repo.CleanupOldData(time.Duration(retentionDays) * 24 * time.Hour)
			if err != nil {
				slog.Error("Retention cleanup failed", "error", err)
				continue
			}
			slog.Info("Retention cleanup completed", "rows_purged", purged, "retention_days", retentionDays)
		}
	}
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
