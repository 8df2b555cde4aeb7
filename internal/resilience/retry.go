package resilience

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/repoyield/repoyield/internal/errors"
)

// RetryConfig controls backoff behavior for one call site.
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts"`
	InitialDelay    time.Duration    `json:"initial_delay"`
	MaxDelay        time.Duration    `json:"max_delay"`
	BackoffFactor   float64          `json:"backoff_factor"`
	JitterEnabled   bool             `json:"jitter_enabled"`
	RetryableErrors func(error) bool `json:"-"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		RetryableErrors: func(err error) bool {
			return errors.IsRetryableError(err)
		},
	}
}

type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, exhausts attempts, or
// hits a non-retryable error. Context cancellation wins over delays.
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !config.RetryableErrors(err) {
			break
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(config, attempt)):
		}
	}

	return lastErr
}

func backoffDelay(config RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterEnabled && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay/10) + 1))
	}
	return delay
}

type RetryableHTTPFunc func() (*http.Response, error)

// RetryHTTP retries an HTTP call on transport errors and retryable
// status codes. Non-retryable statuses return the response untouched
// so the caller can map the error itself.
func RetryHTTP(ctx context.Context, config RetryConfig, fn RetryableHTTPFunc) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := fn()
		if err == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			if !isRetryableHTTPStatus(resp.StatusCode) {
				return resp, nil
			}
			lastResp = resp
			lastErr = NewHTTPError(resp.StatusCode, resp.Status)
		} else {
			lastErr = err
			if !config.RetryableErrors(err) {
				return nil, err
			}
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(config, attempt)):
		}
	}

	return lastResp, lastErr
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// HTTPError carries the status of a failed upstream call through the
// retry loop.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return e.Status
}

func NewHTTPError(statusCode int, status string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Status: status}
}

var (
	policyMu sync.RWMutex

	// Per-service retry tuning. GitHub calls back off quickly inside
	// an interactive request; mail delivery can afford longer waits.
	servicePolicies = map[string]RetryConfig{
		"github-api": {
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"mail-api": {
			MaxAttempts:   4,
			InitialDelay:  1 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 1.5,
			JitterEnabled: true,
		},
	}
)

// RegisterServicePolicy overrides the retry tuning for a service.
func RegisterServicePolicy(serviceName string, config RetryConfig) {
	policyMu.Lock()
	defer policyMu.Unlock()
	servicePolicies[serviceName] = config
}

func policyFor(serviceName string) RetryConfig {
	policyMu.RLock()
	config, exists := servicePolicies[serviceName]
	policyMu.RUnlock()

	if !exists {
		return DefaultRetryConfig()
	}
	config.RetryableErrors = DefaultRetryConfig().RetryableErrors
	return config
}

// HTTPExecuteWithRetry runs an HTTP call under the retry tuning
// registered for the named service.
func HTTPExecuteWithRetry(ctx context.Context, serviceName string, fn RetryableHTTPFunc) (*http.Response, error) {
	return RetryHTTP(ctx, policyFor(serviceName), fn)
}
