package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDigest() Digest {
	return Digest{
		Owner:               "acme",
		Date:                time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC),
		ReposScanned:        3,
		ReposFailed:         1,
		TotalEstimatedValue: 85000,
		Repositories: []RepoLine{
			{Name: "acme/storefront", TotalScore: 69.75, RevenuePotential: "High", EstimatedValue: 25000},
			{Name: "acme/api-kit", TotalScore: 42.3, RevenuePotential: "Medium", EstimatedValue: 10000},
		},
		Opportunities: []string{
			"acme/storefront: Launch as SaaS with subscription tiers",
		},
		NextSteps: []string{
			"Add Stripe/Paddle payment integration",
		},
	}
}

func TestRenderDigest(t *testing.T) {
	msg, err := Render(sampleDigest())
	require.NoError(t, err)

	assert.Equal(t, "Repository Revenue Digest - acme - February 14, 2026", msg.Subject)

	assert.Contains(t, msg.HTMLBody, "acme/storefront")
	assert.Contains(t, msg.HTMLBody, "69.8/100")
	assert.Contains(t, msg.HTMLBody, "$25,000")
	assert.Contains(t, msg.HTMLBody, "$85,000")
	assert.Contains(t, msg.HTMLBody, "Launch as SaaS with subscription tiers")
	assert.NotContains(t, msg.HTMLBody, "Issues")

	assert.Contains(t, msg.TextBody, "Repositories scanned: 3")
	assert.Contains(t, msg.TextBody, "Failed: 1")
	assert.Contains(t, msg.TextBody, "acme/api-kit: 42.3/100 (Medium, $10,000)")
	assert.Contains(t, msg.TextBody, "NEXT STEPS")
}

func TestRenderDigestEscapesHTML(t *testing.T) {
	digest := sampleDigest()
	digest.Opportunities = []string{`<script>alert("x")</script>`}

	msg, err := Render(digest)
	require.NoError(t, err)

	assert.NotContains(t, msg.HTMLBody, "<script>alert")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
}

func TestRenderDigestEmptySections(t *testing.T) {
	digest := Digest{
		Owner: "acme",
		Date:  time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC),
	}

	msg, err := Render(digest)
	require.NoError(t, err)

	assert.Contains(t, msg.HTMLBody, "No repositories analyzed")
	assert.Contains(t, msg.HTMLBody, "No new opportunities identified")
	assert.Contains(t, msg.HTMLBody, "Planning in progress")
	assert.Contains(t, msg.TextBody, "No repositories analyzed")
}

func TestRenderDigestIncludesIssues(t *testing.T) {
	digest := sampleDigest()
	digest.Issues = []string{"acme/legacy: analysis failed (rate limited)"}

	msg, err := Render(digest)
	require.NoError(t, err)

	assert.Contains(t, msg.HTMLBody, "Issues")
	assert.Contains(t, msg.HTMLBody, "analysis failed (rate limited)")
	assert.Contains(t, msg.TextBody, "ISSUES")
}

func TestComma(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{25000, "25,000"},
		{1234567, "1,234,567"},
		{-50000, "-50,000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, comma(tt.in))
	}
}
