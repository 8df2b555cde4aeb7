package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoyield/repoyield/internal/monitoring"
)

func newFallbackLimiter(config Config) *RateLimiter {
	redisClient := &RedisClient{enabled: false}
	return NewRateLimiter(redisClient, config, monitoring.NewMetrics())
}

func TestFallbackIPLimit(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   5,
		BurstMultiplier: 1,
	})

	ctx := context.Background()

	// Burst capacity equals the limit with multiplier 1
	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestFallbackIndependentKeys(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   5,
		BurstMultiplier: 1,
	})

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
	}

	// A different IP is unaffected
	result, err := limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestFallbackAccountQuota(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   60,
		BurstMultiplier: 1,
	})

	ctx := context.Background()

	// Quota 10: the monthly refill rate is negligible within a test run
	for i := 0; i < 10; i++ {
		result, err := limiter.AllowAccount(ctx, "acct-1", 10)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "analysis %d should be allowed", i+1)
	}

	result, err := limiter.AllowAccount(ctx, "acct-1", 10)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestInvalidateAccount(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   60,
		BurstMultiplier: 1,
	})

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := limiter.AllowAccount(ctx, "acct-upgrade", 10)
		require.NoError(t, err)
	}

	result, err := limiter.AllowAccount(ctx, "acct-upgrade", 10)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// Plan upgrade resets the window
	require.NoError(t, limiter.ResetOnUpgrade(ctx, "acct-upgrade"))

	result, err = limiter.AllowAccount(ctx, "acct-upgrade", 50)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInvalidateIP(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   3,
		BurstMultiplier: 1,
	})

	ctx := context.Background()
	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		_, err := limiter.AllowIP(ctx, ip)
		require.NoError(t, err)
	}

	result, err := limiter.AllowIP(ctx, ip)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.InvalidateIP(ctx, ip))

	result, err = limiter.AllowIP(ctx, ip)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInvalidateAll(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())

	ctx := context.Background()

	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for _, ip := range ips {
		_, err := limiter.AllowIP(ctx, ip)
		require.NoError(t, err)
	}

	count, err := limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, limiter.InvalidateAll(ctx))

	count, err = limiter.GetKeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetStats(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())

	ctx := context.Background()
	_, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)

	stats := limiter.GetStats()
	assert.False(t, stats["redis_enabled"].(bool))
	assert.Equal(t, 1, stats["fallback_limiters"].(int))
}

func TestConcurrentChecks(t *testing.T) {
	limiter := newFallbackLimiter(Config{
		IPLimitPerMin:   100,
		BurstMultiplier: 2,
	})

	ctx := context.Background()

	done := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				_, err := limiter.AllowIP(ctx, "10.0.0.1")
				assert.NoError(t, err)
			}
			done <- true
		}()
	}

	for i := 0; i < 50; i++ {
		<-done
	}
}

func TestVersionRequiresRedis(t *testing.T) {
	limiter := newFallbackLimiter(DefaultConfig())

	ctx := context.Background()

	assert.Error(t, limiter.BumpVersion(ctx, "global"))

	_, err := limiter.GetVersion(ctx, "global")
	assert.Error(t, err)
}
