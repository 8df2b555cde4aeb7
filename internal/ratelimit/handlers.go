package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repoyield/repoyield/internal/billing"
	"github.com/repoyield/repoyield/internal/database"
)

// HandleRateLimitStatus reports the limits that apply to the caller.
// Authenticated requests also see their plan's monthly allowance.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		status := gin.H{
			"ip": ip,
			"limits": gin.H{
				"ip_per_minute": gin.H{
					"limit":  rl.config.IPLimitPerMin,
					"period": "1 minute",
				},
			},
			"timestamp": time.Now().Format(time.RFC3339),
		}

		if accountValue, exists := c.Get("account"); exists {
			if account, ok := accountValue.(*database.Account); ok {
				status["account_id"] = account.ID
				status["plan"] = account.Plan

				quota := billing.QuotaForPlan(account.Plan)
				if quota == billing.UnlimitedQuota {
					status["limits"].(gin.H)["analyses_per_month"] = "unlimited"
				} else {
					status["limits"].(gin.H)["analyses_per_month"] = gin.H{
						"limit":  quota,
						"period": "1 month",
					}
				}
			}
		}

		c.JSON(http.StatusOK, status)
	}
}

// HandleAdminRateLimits dumps limiter state and counters. Admin only.
func (rl *RateLimiter) HandleAdminRateLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		keyCount, err := rl.GetKeyCount(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to get key count",
			})
			return
		}

		stats := rl.GetStats()

		var rateLimitMetrics map[string]interface{}
		if rl.metrics != nil {
			rateLimitMetrics = rl.metrics.GetRateLimitStats()
		}

		response := gin.H{
			"total_keys":    keyCount,
			"limiter_stats": stats,
			"metrics":       rateLimitMetrics,
			"timestamp":     time.Now().Format(time.RFC3339),
		}

		c.JSON(http.StatusOK, response)
	}
}

// HandleAdminResetRateLimit clears one account's quota window, for
// support interventions after a plan change. Admin only.
func (rl *RateLimiter) HandleAdminResetRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		accountID := c.Param("accountID")

		if accountID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "account ID is required",
			})
			return
		}

		err := rl.ResetOnUpgrade(ctx, accountID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to reset rate limit",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":    "rate limit reset successfully",
			"account_id": accountID,
			"timestamp":  time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminInvalidateIP clears the buckets for one IP. Admin only.
func (rl *RateLimiter) HandleAdminInvalidateIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.Param("ip")

		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "IP address is required",
			})
			return
		}

		err := rl.InvalidateIP(ctx, ip)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to invalidate IP rate limits",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "IP rate limits invalidated successfully",
			"ip":        ip,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminRateLimitMetrics exposes the block counters. Admin only.
func (rl *RateLimiter) HandleAdminRateLimitMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.metrics == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "metrics not configured",
			})
			return
		}

		metrics := rl.metrics.GetRateLimitStats()

		c.JSON(http.StatusOK, gin.H{
			"rate_limit_metrics": metrics,
			"timestamp":          time.Now().Format(time.RFC3339),
		})
	}
}
