package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailAdapterIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   MailConfig
		expected bool
	}{
		{
			name:     "unconfigured",
			config:   MailConfig{},
			expected: false,
		},
		{
			name:     "sendgrid with key",
			config:   MailConfig{Provider: MailProviderSendGrid, SendGridAPIKey: "SG.key"},
			expected: true,
		},
		{
			name:     "sendgrid without key",
			config:   MailConfig{Provider: MailProviderSendGrid},
			expected: false,
		},
		{
			name:     "mailgun with key and domain",
			config:   MailConfig{Provider: MailProviderMailgun, MailgunAPIKey: "key", MailgunDomain: "mg.example.com"},
			expected: true,
		},
		{
			name:     "mailgun missing domain",
			config:   MailConfig{Provider: MailProviderMailgun, MailgunAPIKey: "key"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewMailAdapter(tt.config).IsConfigured())
		})
	}
}

func TestSendViaSendGrid(t *testing.T) {
	var received sendGridPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	adapter := NewMailAdapter(MailConfig{
		Provider:       MailProviderSendGrid,
		Sender:         "digest@repoyield.dev",
		Recipient:      "owner@example.com",
		SendGridAPIKey: "SG.test",
	})
	adapter.sendGridURL = server.URL

	err := adapter.Send(context.Background(), Message{
		Subject:  "Daily Revenue Scan",
		HTMLBody: "<h1>report</h1>",
		TextBody: "report",
	})
	require.NoError(t, err)

	assert.Equal(t, "Daily Revenue Scan", received.Subject)
	assert.Equal(t, "digest@repoyield.dev", received.From["email"])
	require.Len(t, received.Personalizations, 1)
	assert.Equal(t, "owner@example.com", received.Personalizations[0].To[0]["email"])
	require.Len(t, received.Content, 2)
	assert.Equal(t, "text/plain", received.Content[0]["type"])
	assert.Equal(t, "text/html", received.Content[1]["type"])
}

func TestSendViaSendGridFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewMailAdapter(MailConfig{
		Provider:       MailProviderSendGrid,
		SendGridAPIKey: "SG.bad",
	})
	adapter.sendGridURL = server.URL

	err := adapter.Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)
}

func TestSendViaMailgun(t *testing.T) {
	var form url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mg.example.com/messages", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err = url.ParseQuery(string(body))
		require.NoError(t, err)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewMailAdapter(MailConfig{
		Provider:      MailProviderMailgun,
		Sender:        "digest@repoyield.dev",
		Recipient:     "owner@example.com",
		MailgunAPIKey: "key-test",
		MailgunDomain: "mg.example.com",
	})
	adapter.mailgunBaseURL = server.URL

	err := adapter.Send(context.Background(), Message{
		Subject:  "Daily Revenue Scan",
		HTMLBody: "<h1>report</h1>",
		TextBody: "report",
	})
	require.NoError(t, err)

	assert.Equal(t, "Daily Revenue Scan", form.Get("subject"))
	assert.Equal(t, "owner@example.com", form.Get("to"))
	assert.Equal(t, "report", form.Get("text"))
	assert.Equal(t, "<h1>report</h1>", form.Get("html"))
}

func TestSendFallsBackToFile(t *testing.T) {
	dir := t.TempDir()

	adapter := NewMailAdapter(MailConfig{ReportsDir: dir})

	err := adapter.Send(context.Background(), Message{
		Subject:  "Daily Revenue Scan",
		TextBody: "no provider configured",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Daily Revenue Scan")
	assert.Contains(t, string(content), "no provider configured")
}
