package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/repoyield/repoyield/internal/billing"
	"github.com/repoyield/repoyield/internal/database"
	"github.com/repoyield/repoyield/internal/types"
)

// SecurityConfig tunes the request hardening middleware.
type SecurityConfig struct {
	MaxInputLength    int           `json:"max_input_length"`
	MaxRequestsPerMin int           `json:"max_requests_per_min"`
	EnableCORS        bool          `json:"enable_cors"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	RequestTimeout    time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns defaults suitable for the public API.
// Origins cover local frontends plus Stripe's checkout domains.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxInputLength:    200,
		MaxRequestsPerMin: 60,
		EnableCORS:        true,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173", "https://js.stripe.com", "https://checkout.stripe.com"},
		TrustedProxies:    []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:    30 * time.Second,
	}
}

// SecurityMiddleware bundles the gin middleware guarding every route.
type SecurityMiddleware struct {
	config      SecurityConfig
	rateLimiter *rate.Limiter
	ipMu        sync.Mutex
	ipLimiters  map[string]*rate.Limiter
	billing     *billing.Service
}

// NewSecurityMiddleware builds the middleware set from config.
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Limit(config.MaxRequestsPerMin/60.0), config.MaxRequestsPerMin/10),
		ipLimiters:  make(map[string]*rate.Limiter),
	}
}

// SetBillingService sets the billing service for API key authentication
// and account quota enforcement
func (sm *SecurityMiddleware) SetBillingService(svc *billing.Service) {
	sm.billing = svc
}

// githubNamePattern matches valid GitHub owner and repository names:
// alphanumeric at both ends, dots, dashes, and underscores in between.
var githubNamePattern = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// suspiciousFragments are substrings that never appear in a legitimate
// repository reference but show up constantly in injection probes.
var suspiciousFragments = []string{
	`<script`, `</script>`, `javascript:`, `on\w+=`,
	`union select`, `drop table`, `alter table`,
	`/*`, `*/`, `xp_`, `sp_`,
}

// ValidateInput rejects oversized, malformed, or probe-like input
// before it reaches parsing.
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	if len(input) > sm.config.MaxInputLength {
		return fmt.Errorf("input exceeds maximum length of %d characters", sm.config.MaxInputLength)
	}

	if strings.Contains(input, "\x00") {
		return fmt.Errorf("input contains invalid characters")
	}

	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}

	inputLower := strings.ToLower(input)
	for _, fragment := range suspiciousFragments {
		if strings.Contains(inputLower, fragment) {
			return fmt.Errorf("input contains suspicious patterns")
		}
	}

	return nil
}

// ParseRepoReference parses a repository reference into owner and name.
// Accepts "owner/repo" and full github.com URLs.
func ParseRepoReference(input string) (string, string, error) {
	ref := strings.TrimSpace(input)
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "http://")
	ref = strings.TrimPrefix(ref, "github.com/")
	ref = strings.TrimSuffix(ref, "/")
	ref = strings.TrimSuffix(ref, ".git")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository reference must be in owner/repo format")
	}

	owner, repo := parts[0], parts[1]

	// Consecutive dots or dashes are never valid in GitHub names
	for _, part := range parts {
		if strings.Contains(part, "..") || strings.Contains(part, "--") {
			return "", "", fmt.Errorf("invalid repository reference format")
		}
		if !githubNamePattern.MatchString(part) {
			return "", "", fmt.Errorf("invalid repository reference format")
		}
	}

	return owner, repo, nil
}

var (
	scriptPattern  = regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	whitespaceRuns = regexp.MustCompile(`\s+`)

	htmlEntityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#x27;", "'",
		"&#39;", "'",
	)
)

// SanitizeInput strips markup and normalizes whitespace in user input.
// Script tags lose their content; other tags keep theirs.
func (sm *SecurityMiddleware) SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = scriptPattern.ReplaceAllString(input, "")
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = whitespaceRuns.ReplaceAllString(input, " ")

	return htmlEntityReplacer.Replace(input)
}

// RateLimitByIP throttles each client IP with a token bucket. The
// burst lets a browser's initial page load through before the
// steady-state rate kicks in.
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()

	sm.ipMu.Lock()
	limiter, exists := sm.ipLimiters[clientIP]
	if !exists {
		burst := sm.config.MaxRequestsPerMin / 2
		if burst < 5 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(sm.config.MaxRequestsPerMin/60.0), burst)
		sm.ipLimiters[clientIP] = limiter
	}
	sm.ipMu.Unlock()

	if !limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded for IP",
			"retry_after": "60",
		})
		c.Abort()
		return
	}

	c.Next()
}

// APIKeyAuth authenticates requests via API key and stores the account
// in the request context. Keys are read from X-API-Key or a bearer token.
func (sm *SecurityMiddleware) APIKeyAuth(c *gin.Context) {
	// Skip if billing service is not configured
	if sm.billing == nil {
		c.Next()
		return
	}

	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		auth := c.GetHeader("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			apiKey = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "API key required",
			"message": "Provide your key via the X-API-Key header",
		})
		c.Abort()
		return
	}

	var account *database.Account
	var err error

	// Bearer credentials may be a session token instead of an API key
	if strings.Count(apiKey, ".") == 2 {
		account, err = sm.billing.AuthenticateSession(apiKey)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session token",
			})
			c.Abort()
			return
		}
	} else {
		account, err = sm.billing.Authenticate(apiKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "authentication failed",
			})
			c.Abort()
			return
		}
	}

	if account == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid API key",
		})
		c.Abort()
		return
	}

	c.Set("account", account)
	c.Next()
}

// AccountQuota enforces the authenticated account's monthly analysis quota
func (sm *SecurityMiddleware) AccountQuota(c *gin.Context) {
	// Only apply quota accounting to analyze endpoints
	if c.Request.URL.Path != "/analyze" && c.Request.URL.Path != "/api/analyze" {
		c.Next()
		return
	}

	// Skip if billing service is not configured
	if sm.billing == nil {
		c.Next()
		return
	}

	accountValue, exists := c.Get("account")
	if !exists {
		c.Next()
		return
	}
	account, ok := accountValue.(*database.Account)
	if !ok {
		c.Next()
		return
	}

	clientIP := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	result, err := sm.billing.ProcessRequest(account, clientIP, userAgent, "/analyze", c.Request.Method)
	if err != nil {
		// Log error but don't block, the distributed limiter still applies
		slog.Error("account quota check failed", "error", err)
		c.Next()
		return
	}

	// Store usage info in context for handlers
	c.Set("account_usage", result.Usage)
	c.Set("request_logged", result.RequestLogged)

	if !result.CanMakeRequest {
		remaining, _ := sm.billing.GetRemainingRequests(account)

		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":              "monthly analysis quota exceeded",
			"message":            fmt.Sprintf("Your %s plan quota is used up for this month", account.Plan),
			"plan":               account.Plan,
			"remaining_requests": remaining,
			"month_start":        result.Usage.MonthStart.Format("2006-01-02"),
			"month_end":          result.Usage.MonthEnd.Format("2006-01-02"),
			"upgrade_url":        "/plans",
		})
		c.Abort()
		return
	}

	c.Next()
}

// SecurityHeaders sets the standard hardening headers. Frame and CSP
// directives stay loose enough for embedded Stripe checkout.
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "SAMEORIGIN")
	c.Header("X-XSS-Protection", "1; mode=block")

	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' https://js.stripe.com https://checkout.stripe.com; style-src 'self' 'unsafe-inline'; connect-src 'self' https://api.stripe.com; frame-src https://checkout.stripe.com https://js.stripe.com")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	c.Next()
}

var allowedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// ValidateContentType rejects request bodies in formats no handler
// accepts. Requests without a Content-Type header pass through.
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType == "" {
		c.Next()
		return
	}

	for _, allowed := range allowedContentTypes {
		if strings.Contains(contentType, allowed) {
			c.Next()
			return
		}
	}

	c.JSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
	c.Abort()
}

// RequestTimeout caps how long a handler may run by swapping in a
// deadline context. Downstream HTTP calls inherit the deadline.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// ValidateAnalyzeRequest validates the analyze endpoint request
func (sm *SecurityMiddleware) ValidateAnalyzeRequest(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid JSON format",
		})
		c.Abort()
		return
	}

	if req.Repository == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "repository field is required",
		})
		c.Abort()
		return
	}

	// Sanitize and validate the reference
	req.Repository = sm.SanitizeInput(req.Repository)
	if err := sm.ValidateInput(req.Repository); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("input validation failed: %v", err),
		})
		c.Abort()
		return
	}

	owner, repo, err := ParseRepoReference(req.Repository)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		c.Abort()
		return
	}

	// Store the parsed reference in context for the handler
	c.Set("owner", owner)
	c.Set("repo", repo)
	c.Next()
}

// CORSConfig builds the CORS policy from the configured origins.
func (sm *SecurityMiddleware) CORSConfig() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Cache-Control", "X-Requested-With", "X-API-Key", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
