package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repoyield/repoyield/internal/billing"
	"github.com/repoyield/repoyield/internal/database"
)

// IPRateLimitMiddleware throttles anonymous traffic per client IP.
// A broken limiter fails open so an outage never takes the API down.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := rl.AllowIP(ctx, ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		// Standard draft rate limit headers
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded for IP",
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
				"reset_at":    result.ResetAt.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AccountRateLimitMiddleware creates middleware for plan-quota rate limiting.
// It reads the authenticated account from the context and tracks the
// monthly allowance in Redis so quota state survives restarts and is
// shared across instances.
func (rl *RateLimiter) AccountRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only analyze requests count against the quota
		if c.Request.URL.Path != "/analyze" {
			c.Next()
			return
		}

		accountValue, exists := c.Get("account")
		if !exists {
			// No account, skip quota limiting
			c.Next()
			return
		}

		account, ok := accountValue.(*database.Account)
		if !ok {
			slog.Warn("Invalid account type in context")
			c.Next()
			return
		}

		quota := billing.QuotaForPlan(account.Plan)
		if quota == billing.UnlimitedQuota {
			c.Header("X-RateLimit-Account-Limit", "unlimited")
			c.Header("X-RateLimit-Account-Remaining", "unlimited")
			c.Next()
			return
		}

		ctx := c.Request.Context()

		result, err := rl.AllowAccount(ctx, account.ID, quota)
		if err != nil {
			slog.Error("Account rate limit check failed", "account_id", account.ID[:8]+"...", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Account-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Account-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Account-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitAccountBlock()
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))

			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":              "monthly analysis quota exceeded",
				"message":            fmt.Sprintf("You have used all %d analyses included in the %s plan this month", result.Limit, account.Plan),
				"remaining_requests": result.Remaining,
				"reset_at":           result.ResetAt.Unix(),
				"retry_after":        int(result.RetryAfter.Seconds()),
				"upgrade_url":        "/plans",
				"upgrade_message":    "Upgrade your plan for more analyses",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware applies a tighter per-IP limit to one
// named endpoint, on top of the global IP limit.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		key := fmt.Sprintf("ratelimit:endpoint:%s:%s", endpoint, ip)

		result, err := rl.allow(ctx, key, limit, 60*time.Second)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("rate limit exceeded for endpoint: %s", endpoint),
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for this endpoint", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
