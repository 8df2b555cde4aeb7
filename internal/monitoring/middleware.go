package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware records request counts, latency, and status
// metrics for every request and emits the access log line.
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)

		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if duration > 5*time.Second {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}

		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("status %d for %s %s", statusCode, method, path))
		}
	}
}

// SecurityMonitoringMiddleware flags request patterns worth a second
// look in the security log. It never blocks, only records.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")

		suspicious := false
		details := make(map[string]interface{})

		if containsSQLInjectionPatterns(c.Request.URL.RawQuery) {
			suspicious = true
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		}

		if c.Request.Method == "POST" && c.Request.URL.Path == "/analyze" {
			if c.Request.ContentLength > 10000 {
				suspicious = true
				details["type"] = "large_request_body"
				details["size_bytes"] = c.Request.ContentLength
			}
		}

		if containsScannerUserAgent(userAgent) {
			suspicious = true
			details["type"] = "scanner_user_agent"
			details["user_agent"] = userAgent
		}

		if suspicious {
			logger.SecurityLogger("suspicious_activity_detected", ip, userAgent, details)
		}

		c.Next()
	}
}

var sqlInjectionPatterns = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"';--",
	"/*",
	" xp_",
	" sp_",
}

func containsSQLInjectionPatterns(query string) bool {
	lowered := strings.ToLower(query)
	for _, pattern := range sqlInjectionPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

var scannerUserAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"openvas",
	"nessus",
}

func containsScannerUserAgent(userAgent string) bool {
	lowered := strings.ToLower(userAgent)
	for _, agent := range scannerUserAgents {
		if strings.Contains(lowered, agent) {
			return true
		}
	}
	return false
}
