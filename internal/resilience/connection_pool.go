package resilience

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// ConnectionPool wraps a shared HTTP client with an in-flight request
// cap and a circuit breaker. The transport owns connection reuse; the
// pool's job is bounding concurrency toward one upstream and refusing
// fast when the breaker is open.
type ConnectionPool struct {
	maxIdle     int
	maxInFlight int
	idleTimeout time.Duration

	circuitBreaker *CircuitBreaker
	client         *http.Client

	// Counting semaphore for in-flight requests.
	slots chan struct{}

	inFlight atomic.Int64
	rejected atomic.Int64
}

// NewConnectionPool builds a pool for a single upstream. maxIdle bounds
// kept-alive sockets, maxInFlight bounds concurrent requests.
func NewConnectionPool(maxIdle, maxInFlight int, idleTimeout time.Duration, cb *CircuitBreaker) *ConnectionPool {
	transport := &http.Transport{
		MaxIdleConns:          maxIdle,
		MaxConnsPerHost:       maxInFlight,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		maxIdle:        maxIdle,
		maxInFlight:    maxInFlight,
		idleTimeout:    idleTimeout,
		circuitBreaker: cb,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		slots: make(chan struct{}, maxInFlight),
	}
}

// acquire claims a request slot, waiting until one frees up or the
// context expires.
func (cp *ConnectionPool) acquire(ctx context.Context) error {
	select {
	case cp.slots <- struct{}{}:
		cp.inFlight.Add(1)
		return nil
	case <-ctx.Done():
		cp.rejected.Add(1)
		return fmt.Errorf("connection pool saturated: %d in-flight requests: %w", cp.maxInFlight, ctx.Err())
	}
}

func (cp *ConnectionPool) release() {
	cp.inFlight.Add(-1)
	<-cp.slots
}

// DoRequest executes a bodyless HTTP request through the pool.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	return cp.DoRequestWithBody(ctx, method, url, headers, nil)
}

// DoRequestWithBody executes an HTTP request carrying a body. The body
// function is invoked per attempt so the circuit breaker can replay it.
func (cp *ConnectionPool) DoRequestWithBody(ctx context.Context, method, url string, headers map[string]string, body func() io.Reader) (*http.Response, error) {
	if err := cp.acquire(ctx); err != nil {
		return nil, err
	}
	defer cp.release()

	var resp *http.Response

	err := cp.circuitBreaker.Call(func() error {
		var reader io.Reader
		if body != nil {
			reader = body()
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}

		for key, value := range headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		resp, err = cp.client.Do(req)
		duration := time.Since(start)

		if err != nil {
			slog.Warn("Request failed", "url", url, "error", err, "duration_ms", duration.Milliseconds())
			return err
		}

		slog.Debug("Request completed", "url", url, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
		return nil
	})

	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetStats reports pool counters for the admin pools endpoint.
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight":             cp.inFlight.Load(),
		"rejected":              cp.rejected.Load(),
		"max_in_flight":         cp.maxInFlight,
		"max_idle":              cp.maxIdle,
		"idle_timeout_ms":       cp.idleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// Close drops any kept-alive sockets. In-flight requests finish on
// their own.
func (cp *ConnectionPool) Close() error {
	if transport, ok := cp.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	slog.Info("Connection pool closed")
	return nil
}
