package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory classifies failures for logging and retry decisions.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryQuota         ErrorCategory = "quota"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryInternal      ErrorCategory = "internal"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryConfiguration ErrorCategory = "configuration"
)

// AppError pairs an errbuilder error with the category and HTTP status
// the transport layer needs.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error renders the stable client-facing identifier for the code plus
// the message.
func (e *AppError) Error() string {
	name := "UNKNOWN_ERROR"
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		name = "VALIDATION_ERROR"
	case errbuilder.CodeNotFound:
		name = "NOT_FOUND"
	case errbuilder.CodeUnavailable:
		name = "NETWORK_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		name = "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		name = "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodePermissionDenied:
		name = "QUOTA_EXCEEDED"
	case errbuilder.CodeInternal:
		name = "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		name = "CONFIGURATION_ERROR"
	}
	return fmt.Sprintf("[%s] %s", name, e.ErrBuilder.Msg)
}

// Unwrap exposes the cause chain to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError wraps a prepared errbuilder with transport context.
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// finish attaches optional details and cause to a builder, then wraps
// it. details values become named entries in the error detail map.
func finish(builder *errbuilder.ErrBuilder, category ErrorCategory, status int, cause error, details map[string]string) *AppError {
	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		for key, value := range details {
			errorMap.Set(key, errors.New(value))
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, category, status)
}

// NewValidationError rejects bad client input. An optional first detail
// argument is surfaced to the caller.
func NewValidationError(message string, details ...interface{}) *AppError {
	var detailMap map[string]string
	if len(details) > 0 {
		detailMap = map[string]string{"validation_details": fmt.Sprintf("%v", details[0])}
	}

	builder := errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(message)
	return finish(builder, CategoryValidation, http.StatusBadRequest, nil, detailMap)
}

// NewNotFoundError reports a missing or inaccessible resource, such as
// a repository the metadata source cannot see.
func NewNotFoundError(resource string, cause error) *AppError {
	builder := errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg(fmt.Sprintf("%s not found", resource))
	return finish(builder, CategoryNotFound, http.StatusNotFound, cause, map[string]string{"resource": resource})
}

// NewNetworkError reports a connectivity failure toward an upstream.
func NewNetworkError(message string, cause error) *AppError {
	builder := errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(message)
	return finish(builder, CategoryNetwork, http.StatusBadGateway, cause, nil)
}

// NewTimeoutError reports an operation that ran out of time.
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().WithCode(errbuilder.CodeDeadlineExceeded).WithMsg(message)
	return finish(builder, CategoryTimeout, http.StatusGatewayTimeout, cause, nil)
}

// NewRateLimitError tells the client when to try again.
func NewRateLimitError(retryAfter string) *AppError {
	builder := errbuilder.New().WithCode(errbuilder.CodeResourceExhausted).WithMsg("Rate limit exceeded")
	return finish(builder, CategoryRateLimit, http.StatusTooManyRequests, nil, map[string]string{"retry_after": retryAfter})
}

// NewExternalAPIError reports a failure inside a third-party API call.
func NewExternalAPIError(apiName string, cause error) *AppError {
	builder := errbuilder.New().WithCode(errbuilder.CodeUnavailable).WithMsg(fmt.Sprintf("%s API error", apiName))
	return finish(builder, CategoryExternalAPI, http.StatusBadGateway, cause, map[string]string{"api_name": apiName})
}

// NewInternalError reports an unexpected server-side failure. The real
// message goes into the detail map so clients only see a generic line;
// a stack trace is attached outside release mode.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("Internal server error")
	appErr := finish(builder, CategoryInternal, http.StatusInternalServerError, cause, map[string]string{"internal_details": message})

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler converts errors attached to the gin context into JSON
// responses. Handlers call c.Error and return; this middleware owns the
// response shape.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns panics into structured 500 responses instead of
// gin's default plain-text output.
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError normalizes any error into an AppError, classifying plain
// errors by their message when nothing better is available.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	msg := err.Error()

	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return NewNetworkError("Network connection failed", err)
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError writes one log line per failed request. Client mistakes log
// at warn, upstream trouble at info, everything else at error.
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	msg := err.ErrBuilder.Msg
	details := err.ErrBuilder.Details
	cause := err.ErrBuilder.Unwrap()

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryQuota, CategoryNotFound:
		if len(details.Errors) > 0 {
			logEntry.Warn(msg, "details", details.Errors)
		} else {
			logEntry.Warn(msg)
		}
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		if cause != nil {
			logEntry.Info(msg, "cause", cause)
		} else {
			logEntry.Info(msg)
		}
	default:
		if cause != nil {
			logEntry.Error(msg, "cause", cause)
		} else {
			logEntry.Error(msg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether a retry could plausibly succeed.
// Quota, validation, and not-found failures are terminal for the
// request; transient upstream trouble is not.
func IsRetryableError(err error) bool {
	switch ToAppError(err).Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// WrapError adds formatted context while preserving the cause chain.
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}
