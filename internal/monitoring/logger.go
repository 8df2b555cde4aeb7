package monitoring

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Logger wraps slog with helpers for the recurring log shapes.
type Logger struct {
	*slog.Logger
}

// NewLogger builds a JSON logger on stdout. LOG_LEVEL selects the
// minimum level (debug, info, warn, error); the default is info.
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     levelFromEnv(),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler)}
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequestLogger writes the access log line for one request.
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AnalysisLogger records one completed repository analysis.
func (l *Logger) AnalysisLogger(repository string, totalScore float64, potential string, duration time.Duration, cacheHit bool) {
	l.Info("Analysis Completed",
		"repository", repository,
		"total_score", totalScore,
		"revenue_potential", potential,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// WorkflowLogger records one completed fleet scan.
func (l *Logger) WorkflowLogger(owner string, scanned, failed, totalValue int, duration time.Duration, digestSent bool) {
	l.Info("Fleet Scan Completed",
		"owner", owner,
		"repos_scanned", scanned,
		"repos_failed", failed,
		"total_estimated_value", totalValue,
		"duration_ms", duration.Milliseconds(),
		"digest_sent", digestSent,
	)
}

// APIErrorLogger records a handler error with its call site.
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// SystemLogger records process-level events.
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(processStart).String(),
	)
}

// SecurityLogger records suspicious activity with free-form details.
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger records a one-off timing measurement.
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var processStart = time.Now()
