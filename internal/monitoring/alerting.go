package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert represents a monitoring alert
type Alert struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
	Status      AlertStatus   `json:"status"`
	Service     string        `json:"service"`
	Value       float64       `json:"value,omitempty"`
	Threshold   float64       `json:"threshold,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	FiredAt     time.Time     `json:"fired_at"`
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Query       string  // Metric to evaluate
	Threshold   float64 // Threshold value
	Operator    string  // "gt", "lt", "eq", "ne", "gte", "lte"
	Severity    AlertSeverity
	Service     string
	Description string
	For         time.Duration // How long the condition must clear before resolving
}

// AlertNotifier defines the interface for sending alert notifications
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	WebhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SendAlert posts an alert to Slack
func (s *SlackNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	return s.post(ctx, fmt.Sprintf(":rotating_light: [%s] %s on %s: %s (value %.1f, threshold %.1f)",
		alert.Severity, alert.Name, alert.Service, alert.Description, alert.Value, alert.Threshold))
}

// ResolveAlert posts a resolution notice to Slack
func (s *SlackNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	return s.post(ctx, fmt.Sprintf(":white_check_mark: Resolved: %s on %s", alert.Name, alert.Service))
}

// AlertManager evaluates rules against live metrics and notifies
type AlertManager struct {
	rules         []AlertRule
	alerts        map[string]*Alert
	alertsMutex   sync.RWMutex
	notifiers     []AlertNotifier
	logger        *Logger
	metrics       *Metrics
	checkInterval time.Duration
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *Logger, metrics *Metrics, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		rules:         []AlertRule{},
		alerts:        make(map[string]*Alert),
		notifiers:     []AlertNotifier{},
		logger:        logger,
		metrics:       metrics,
		checkInterval: checkInterval,
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.rules = append(am.rules, rule)
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.notifiers = append(am.notifiers, notifier)
}

// Start begins the alert evaluation loop
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.evaluateRules(ctx)
		}
	}
}

func (am *AlertManager) evaluateRules(ctx context.Context) {
	for _, rule := range am.rules {
		am.evaluateRule(ctx, rule)
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	currentValue, ok := am.queryMetric(rule)
	if !ok {
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return
	}

	alertKey := fmt.Sprintf("%s:%s", rule.Service, rule.Name)

	am.alertsMutex.Lock()
	defer am.alertsMutex.Unlock()

	alert, exists := am.alerts[alertKey]
	conditionMet := am.checkCondition(currentValue, rule.Operator, rule.Threshold)

	if conditionMet {
		if !exists {
			alert = &Alert{
				ID:          alertKey,
				Name:        rule.Name,
				Description: rule.Description,
				Severity:    rule.Severity,
				Status:      StatusActive,
				Service:     rule.Service,
				Value:       currentValue,
				Threshold:   rule.Threshold,
				CreatedAt:   time.Now(),
				FiredAt:     time.Now(),
			}
			am.alerts[alertKey] = alert
			am.fireAlert(ctx, alert)
		} else if alert.Status != StatusActive {
			alert.Status = StatusActive
			alert.FiredAt = time.Now()
			alert.Value = currentValue
			am.fireAlert(ctx, alert)
		}
	} else if exists && alert.Status == StatusActive {
		if time.Since(alert.FiredAt) > rule.For {
			now := time.Now()
			alert.Status = StatusResolved
			alert.ResolvedAt = &now
			am.resolveAlert(ctx, alert)
		}
	}
}

// queryMetric resolves a rule's query against the live metrics
func (am *AlertManager) queryMetric(rule AlertRule) (float64, bool) {
	if am.metrics == nil {
		return 0, false
	}

	switch rule.Query {
	case "error_rate":
		requests := atomic.LoadInt64(&am.metrics.RequestCount)
		if requests == 0 {
			return 0, true
		}
		errors := atomic.LoadInt64(&am.metrics.ErrorCount)
		return float64(errors) / float64(requests) * 100, true

	case "response_time_p95":
		return float64(am.metrics.GetPercentileResponseTime(95).Milliseconds()), true

	case "external_api_error_rate":
		// Service names match the adapters' registered services
		am.metrics.ExternalAPIMutex.RLock()
		defer am.metrics.ExternalAPIMutex.RUnlock()
		requests := am.metrics.ExternalAPIRequests[rule.Service]
		if requests == 0 {
			return 0, true
		}
		errors := am.metrics.ExternalAPIErrorCount[rule.Service]
		return float64(errors) / float64(requests) * 100, true

	case "quota_blocks":
		return float64(atomic.LoadInt64(&am.metrics.RateLimitAccountBlocks)), true

	case "heap_alloc_mb":
		return float64(atomic.LoadInt64(&am.metrics.HeapAlloc)) / (1024 * 1024), true

	default:
		return 0, false
	}
}

func (am *AlertManager) checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	case "ne":
		return value != threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

func (am *AlertManager) fireAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.SendAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to send alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

func (am *AlertManager) resolveAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", alert.Name))

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.ResolveAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_resolution_failed", fmt.Sprintf("Failed to resolve alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// GetAlerts returns all current alerts
func (am *AlertManager) GetAlerts() map[string]*Alert {
	am.alertsMutex.RLock()
	defer am.alertsMutex.RUnlock()

	alerts := make(map[string]*Alert, len(am.alerts))
	for k, v := range am.alerts {
		alerts[k] = v
	}
	return alerts
}

// GetActiveAlerts returns only active alerts
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.alertsMutex.RLock()
	defer am.alertsMutex.RUnlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			activeAlerts[k] = v
		}
	}
	return activeAlerts
}

// SilenceAlert suppresses an alert until its condition re-fires
func (am *AlertManager) SilenceAlert(alertID string) {
	am.alertsMutex.Lock()
	defer am.alertsMutex.Unlock()

	if alert, exists := am.alerts[alertID]; exists {
		alert.Status = StatusSuppressed
		am.logger.SystemLogger("alert_silenced", fmt.Sprintf("Alert %s silenced", alert.Name))
	}
}

// DefaultAlertRules covers the API surface and both external services
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       "error_rate",
		Threshold:   10.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "Error rate is above 10%",
		For:         5 * time.Minute,
	},
	{
		Name:        "SlowAnalysisLatency",
		Query:       "response_time_p95",
		Threshold:   2000.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "95th percentile response time is above 2000ms",
		For:         2 * time.Minute,
	},
	{
		Name:        "GitHubAPIFailures",
		Query:       "external_api_error_rate",
		Threshold:   25.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "github-api",
		Description: "GitHub API error rate is above 25%",
		For:         5 * time.Minute,
	},
	{
		Name:        "MailDeliveryFailures",
		Query:       "external_api_error_rate",
		Threshold:   50.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "mail-api",
		Description: "Mail delivery error rate is above 50%",
		For:         10 * time.Minute,
	},
	{
		Name:        "HighHeapUsage",
		Query:       "heap_alloc_mb",
		Threshold:   1024.0,
		Operator:    "gt",
		Severity:    SeverityCritical,
		Service:     "system",
		Description: "Heap allocation is above 1GB",
		For:         1 * time.Minute,
	},
}

// Global alert manager instance
var globalAlertManager *AlertManager

// InitGlobalAlertManager initializes the global alert manager with the
// default rule set
func InitGlobalAlertManager(logger *Logger, metrics *Metrics, checkInterval time.Duration) {
	globalAlertManager = NewAlertManager(logger, metrics, checkInterval)

	for _, rule := range DefaultAlertRules {
		globalAlertManager.AddRule(rule)
	}
}

// GetGlobalAlertManager returns the global alert manager
func GetGlobalAlertManager() *AlertManager {
	return globalAlertManager
}

// StartGlobalAlerting starts the global alert manager
func StartGlobalAlerting(ctx context.Context) {
	if globalAlertManager != nil {
		go globalAlertManager.Start(ctx)
	}
}
