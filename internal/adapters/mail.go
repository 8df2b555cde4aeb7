package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/repoyield/repoyield/internal/errors"
	"github.com/repoyield/repoyield/internal/monitoring"
	"github.com/repoyield/repoyield/internal/resilience"
)

// Mail provider identifiers.
const (
	MailProviderSendGrid = "sendgrid"
	MailProviderMailgun  = "mailgun"
)

const (
	defaultSendGridURL    = "https://api.sendgrid.com/v3/mail/send"
	defaultMailgunBaseURL = "https://api.mailgun.net/v3"
)

// MailConfig holds delivery configuration. With no provider configured
// the adapter falls back to writing reports into ReportsDir.
type MailConfig struct {
	Provider       string
	Sender         string
	Recipient      string
	SendGridAPIKey string
	MailgunAPIKey  string
	MailgunDomain  string
	ReportsDir     string
}

// Message is one outbound email with both HTML and plain-text bodies.
type Message struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// MailAdapter delivers digest emails through SendGrid or Mailgun.
type MailAdapter struct {
	config         MailConfig
	pool           *resilience.ConnectionPool
	metrics        *monitoring.Metrics
	sendGridURL    string
	mailgunBaseURL string
}

// SetMetrics attaches the process metrics so deliveries show up in
// the external API counters.
func (m *MailAdapter) SetMetrics(metrics *monitoring.Metrics) {
	m.metrics = metrics
}

// NewMailAdapter creates a mail adapter with connection pooling.
func NewMailAdapter(config MailConfig) *MailAdapter {
	cb := resilience.GetCircuitBreaker(ServiceMail, resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	})

	pool := resilience.NewConnectionPool(5, 10, 30*time.Second, cb)

	return &MailAdapter{
		config:         config,
		pool:           pool,
		sendGridURL:    defaultSendGridURL,
		mailgunBaseURL: defaultMailgunBaseURL,
	}
}

// IsConfigured reports whether a usable provider is set up.
func (m *MailAdapter) IsConfigured() bool {
	switch m.config.Provider {
	case MailProviderSendGrid:
		return m.config.SendGridAPIKey != ""
	case MailProviderMailgun:
		return m.config.MailgunAPIKey != "" && m.config.MailgunDomain != ""
	default:
		return false
	}
}

// Send delivers a message through the configured provider. Without a
// configured provider the message is written to the reports directory
// so a scan run never loses its digest.
func (m *MailAdapter) Send(ctx context.Context, msg Message) error {
	var err error

	switch {
	case m.config.Provider == MailProviderSendGrid && m.config.SendGridAPIKey != "":
		err = m.sendViaSendGrid(ctx, msg)
	case m.config.Provider == MailProviderMailgun && m.config.MailgunAPIKey != "" && m.config.MailgunDomain != "":
		err = m.sendViaMailgun(ctx, msg)
	default:
		return m.saveToFile(msg)
	}

	if err != nil {
		resilience.RecordError(ServiceMail, err)
		if m.metrics != nil {
			m.metrics.RecordExternalAPIRequest(ServiceMail, false)
		}
		return err
	}

	resilience.RecordRequest(ServiceMail, true)
	if m.metrics != nil {
		m.metrics.RecordExternalAPIRequest(ServiceMail, true)
	}
	return nil
}

// sendGridPayload mirrors the v3 mail send request shape.
type sendGridPayload struct {
	Personalizations []struct {
		To []map[string]string `json:"to"`
	} `json:"personalizations"`
	From    map[string]string `json:"from"`
	Subject string            `json:"subject"`
	Content []map[string]string `json:"content"`
}

func (m *MailAdapter) sendViaSendGrid(ctx context.Context, msg Message) error {
	payload := sendGridPayload{
		From:    map[string]string{"email": m.config.Sender},
		Subject: msg.Subject,
		Content: []map[string]string{
			{"type": "text/plain", "value": msg.TextBody},
			{"type": "text/html", "value": msg.HTMLBody},
		},
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []map[string]string `json:"to"`
	}{
		To: []map[string]string{{"email": m.config.Recipient}},
	})

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewInternalError("failed to encode mail payload", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + m.config.SendGridAPIKey,
		"Content-Type":  "application/json",
	}

	resp, err := m.doSend(ctx, m.sendGridURL, headers, body)
	if err != nil {
		return apperrors.NewNetworkError("SendGrid unreachable", err)
	}
	defer resp.Body.Close()

	// SendGrid acknowledges accepted mail with 202.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewExternalAPIError("SendGrid",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(detail)))
	}

	return nil
}

func (m *MailAdapter) sendViaMailgun(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", m.config.Sender)
	form.Set("to", m.config.Recipient)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.TextBody)
	form.Set("html", msg.HTMLBody)

	auth := base64.StdEncoding.EncodeToString([]byte("api:" + m.config.MailgunAPIKey))
	headers := map[string]string{
		"Authorization": "Basic " + auth,
		"Content-Type":  "application/x-www-form-urlencoded",
	}

	endpoint := fmt.Sprintf("%s/%s/messages", m.mailgunBaseURL, m.config.MailgunDomain)

	resp, err := m.doSend(ctx, endpoint, headers, []byte(form.Encode()))
	if err != nil {
		return apperrors.NewNetworkError("Mailgun unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewExternalAPIError("Mailgun",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(detail)))
	}

	return nil
}

func (m *MailAdapter) doSend(ctx context.Context, endpoint string, headers map[string]string, body []byte) (*http.Response, error) {
	return resilience.HTTPExecuteWithRetry(ctx, ServiceMail, func() (*http.Response, error) {
		return m.pool.DoRequestWithBody(ctx, http.MethodPost, endpoint, headers, func() io.Reader {
			return strings.NewReader(string(body))
		})
	})
}

// saveToFile writes the digest to the reports directory as a fallback.
func (m *MailAdapter) saveToFile(msg Message) error {
	dir := m.config.ReportsDir
	if dir == "" {
		dir = "./reports"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewInternalError("failed to create reports directory", err)
	}

	filename := fmt.Sprintf("report_%s.txt", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	content := msg.Subject + "\n\n" + msg.TextBody
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return apperrors.NewInternalError("failed to write report file", err)
	}

	return nil
}

// GetPoolStats returns connection pool statistics
func (m *MailAdapter) GetPoolStats() map[string]interface{} {
	return m.pool.GetStats()
}

// Close closes the connection pool
func (m *MailAdapter) Close() error {
	return m.pool.Close()
}
