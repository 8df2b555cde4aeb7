package security

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoyield/repoyield/internal/billing"
	"github.com/repoyield/repoyield/internal/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestMiddleware() *SecurityMiddleware {
	return NewSecurityMiddleware(DefaultSecurityConfig())
}

func TestParseRepoReference(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{
			name:      "plain owner/repo",
			input:     "acme/storefront",
			wantOwner: "acme",
			wantRepo:  "storefront",
		},
		{
			name:      "github.com prefix",
			input:     "github.com/acme/storefront",
			wantOwner: "acme",
			wantRepo:  "storefront",
		},
		{
			name:      "full https url",
			input:     "https://github.com/acme/storefront",
			wantOwner: "acme",
			wantRepo:  "storefront",
		},
		{
			name:      "clone url with .git suffix",
			input:     "https://github.com/acme/storefront.git",
			wantOwner: "acme",
			wantRepo:  "storefront",
		},
		{
			name:      "trailing slash",
			input:     "github.com/acme/storefront/",
			wantOwner: "acme",
			wantRepo:  "storefront",
		},
		{
			name:      "dots dashes underscores",
			input:     "my-org/repo_name.js",
			wantOwner: "my-org",
			wantRepo:  "repo_name.js",
		},
		{
			name:    "missing repo",
			input:   "acme",
			wantErr: true,
		},
		{
			name:    "too many segments",
			input:   "acme/storefront/extra",
			wantErr: true,
		},
		{
			name:    "empty owner",
			input:   "/storefront",
			wantErr: true,
		},
		{
			name:    "consecutive dots",
			input:   "acme/store..front",
			wantErr: true,
		},
		{
			name:    "consecutive dashes",
			input:   "ac--me/storefront",
			wantErr: true,
		},
		{
			name:    "leading dash",
			input:   "-acme/storefront",
			wantErr: true,
		},
		{
			name:    "trailing dot",
			input:   "acme/storefront.",
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoReference(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestValidateInput(t *testing.T) {
	sm := newTestMiddleware()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid reference", "acme/storefront", false},
		{"too long", strings.Repeat("a", 201), true},
		{"null byte", "acme\x00storefront", true},
		{"script tag", "<script>alert(1)</script>", true},
		{"sql injection", "acme union select secrets", true},
		{"sql comment", "acme/*comment*/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sm.ValidateInput(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	sm := newTestMiddleware()

	assert.Equal(t, "acme/storefront", sm.SanitizeInput("  acme/storefront  "))
	assert.Equal(t, "acme", sm.SanitizeInput("<b>acme</b>"))
	assert.Equal(t, "alert(1)", sm.SanitizeInput("<script>evil</script>alert(1)"))
	assert.Equal(t, "a b", sm.SanitizeInput("a    b"))
}

func TestValidateAnalyzeRequest(t *testing.T) {
	sm := newTestMiddleware()

	router := gin.New()
	router.POST("/analyze", func(c *gin.Context) { sm.ValidateAnalyzeRequest(c) }, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"owner": c.GetString("owner"),
			"repo":  c.GetString("repo"),
		})
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid reference", `{"repository":"acme/storefront"}`, http.StatusOK},
		{"full url", `{"repository":"https://github.com/acme/storefront"}`, http.StatusOK},
		{"missing field", `{}`, http.StatusBadRequest},
		{"invalid json", `{"repository":`, http.StatusBadRequest},
		{"bad format", `{"repository":"not-a-repo"}`, http.StatusBadRequest},
		{"injection attempt", `{"repository":"acme/repo; drop table accounts"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestValidateAnalyzeRequestParsesReference(t *testing.T) {
	sm := newTestMiddleware()

	router := gin.New()
	router.POST("/analyze", func(c *gin.Context) { sm.ValidateAnalyzeRequest(c) }, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"owner": c.GetString("owner"),
			"repo":  c.GetString("repo"),
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(`{"repository":"github.com/acme/storefront"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"owner":"acme"`)
	assert.Contains(t, w.Body.String(), `"repo":"storefront"`)
}

func newTestBilling(t *testing.T) (*billing.Service, *database.Account) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := billing.NewService(database.NewRepository(db), "test-secret")
	account, err := svc.CreateAccount("dev@example.com", billing.PlanStarter)
	require.NoError(t, err)

	return svc, account
}

func TestAPIKeyAuth(t *testing.T) {
	sm := newTestMiddleware()
	svc, account := newTestBilling(t)
	sm.SetBillingService(svc)

	router := gin.New()
	router.GET("/user/stats", func(c *gin.Context) { sm.APIKeyAuth(c) }, func(c *gin.Context) {
		got, _ := c.Get("account")
		c.JSON(http.StatusOK, gin.H{"account_id": got.(*database.Account).ID})
	})

	t.Run("valid key via header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/stats", nil)
		req.Header.Set("X-API-Key", account.APIKey)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), account.ID)
	})

	t.Run("valid key via bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/stats", nil)
		req.Header.Set("Authorization", "Bearer "+account.APIKey)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/stats", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/user/stats", nil)
		req.Header.Set("X-API-Key", "ry_nonexistent")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccountQuota(t *testing.T) {
	sm := newTestMiddleware()
	svc, account := newTestBilling(t)
	sm.SetBillingService(svc)

	router := gin.New()
	router.POST("/analyze",
		func(c *gin.Context) { sm.APIKeyAuth(c) },
		func(c *gin.Context) { sm.AccountQuota(c) },
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(`{"repository":"acme/storefront"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", account.APIKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// Starter quota is 10 analyses per month
	for i := 0; i < 10; i++ {
		w := do()
		require.Equal(t, http.StatusOK, w.Code, "analysis %d should pass", i+1)
	}

	w := do()
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "quota exceeded")
	assert.Contains(t, w.Body.String(), "/plans")
}

func TestAccountQuotaSkipsOtherEndpoints(t *testing.T) {
	sm := newTestMiddleware()
	svc, account := newTestBilling(t)
	sm.SetBillingService(svc)

	router := gin.New()
	router.GET("/plans",
		func(c *gin.Context) { sm.APIKeyAuth(c) },
		func(c *gin.Context) { sm.AccountQuota(c) },
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) },
	)

	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodGet, "/plans", nil)
		req.Header.Set("X-API-Key", account.APIKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	sm := newTestMiddleware()

	router := gin.New()
	router.GET("/", func(c *gin.Context) { sm.SecurityHeaders(c) }, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestValidateContentType(t *testing.T) {
	sm := newTestMiddleware()

	router := gin.New()
	router.POST("/", func(c *gin.Context) { sm.ValidateContentType(c) }, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		contentType string
		wantStatus  int
	}{
		{"application/json", http.StatusOK},
		{"application/json; charset=utf-8", http.StatusOK},
		{"", http.StatusOK},
		{"text/xml", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tt.wantStatus, w.Code, "content type %q", tt.contentType)
	}
}

func TestRateLimitByIP(t *testing.T) {
	config := DefaultSecurityConfig()
	config.MaxRequestsPerMin = 10
	sm := NewSecurityMiddleware(config)

	router := gin.New()
	router.GET("/", func(c *gin.Context) { sm.RateLimitByIP(c) }, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Burst of MaxRequestsPerMin/2 (min 5) passes, then blocked
	blocked := false
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			blocked = true
			break
		}
	}
	assert.True(t, blocked)
}

func TestRequestTimeoutHeader(t *testing.T) {
	config := DefaultSecurityConfig()
	config.RequestTimeout = 15 * time.Second
	sm := NewSecurityMiddleware(config)

	router := gin.New()
	router.GET("/", func(c *gin.Context) { sm.RequestTimeout(c) }, func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		assert.True(t, hasDeadline)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "15", w.Header().Get("X-Timeout"))
}

func TestCORSConfig(t *testing.T) {
	sm := newTestMiddleware()

	router := gin.New()
	router.Use(sm.CORSConfig())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
