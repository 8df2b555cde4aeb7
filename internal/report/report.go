package report

import (
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/repoyield/repoyield/internal/adapters"
)

// RepoLine is one ranked repository entry in the digest
type RepoLine struct {
	Name             string
	TotalScore       float64
	RevenuePotential string
	EstimatedValue   int
}

// Digest holds everything the daily fleet scan email reports
type Digest struct {
	Owner               string
	Date                time.Time
	ReposScanned        int
	ReposFailed         int
	TotalEstimatedValue int
	Repositories        []RepoLine
	Opportunities       []string
	NextSteps           []string
	Issues              []string
}

// funcs shared by both templates
var templateFuncs = map[string]interface{}{
	"comma":  comma,
	"score1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
}

var htmlTemplate = template.Must(template.New("digest").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 800px; margin: 0 auto; padding: 20px; }
  .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; border-radius: 10px; margin-bottom: 30px; }
  .section { background: #f8f9fa; padding: 20px; border-radius: 8px; margin-bottom: 20px; }
  .section h2 { margin-top: 0; color: #667eea; }
  .metric { display: inline-block; background: white; padding: 15px 20px; border-radius: 8px; margin: 10px 10px 10px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
  .metric-value { font-size: 24px; font-weight: bold; color: #667eea; }
  .metric-label { font-size: 12px; color: #666; text-transform: uppercase; }
  ul { padding-left: 20px; }
  li { margin-bottom: 10px; }
  .footer { text-align: center; color: #666; font-size: 12px; margin-top: 30px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1 style="margin: 0;">Repository Revenue Digest</h1>
    <p style="margin: 10px 0 0 0; opacity: 0.9;">{{.Owner}} &middot; {{.Date.Format "January 2, 2006"}}</p>
  </div>

  <div class="section">
    <h2>Summary</h2>
    <div class="metric">
      <div class="metric-value">{{.ReposScanned}}</div>
      <div class="metric-label">Repositories Scanned</div>
    </div>
    <div class="metric">
      <div class="metric-value">{{.ReposFailed}}</div>
      <div class="metric-label">Failed</div>
    </div>
    <div class="metric">
      <div class="metric-value">${{comma .TotalEstimatedValue}}</div>
      <div class="metric-label">Total Est. Value</div>
    </div>
  </div>

  <div class="section">
    <h2>Top Repositories</h2>
    <ul>
    {{- range .Repositories}}
      <li>
        <strong>{{.Name}}</strong>: {{score1 .TotalScore}}/100 ({{.RevenuePotential}})
        <br><small style="color: #666;">Estimated value: ${{comma .EstimatedValue}}</small>
      </li>
    {{- else}}
      <li>No repositories analyzed</li>
    {{- end}}
    </ul>
  </div>

  <div class="section">
    <h2>Revenue Opportunities</h2>
    <ul>
    {{- range .Opportunities}}
      <li>{{.}}</li>
    {{- else}}
      <li>No new opportunities identified</li>
    {{- end}}
    </ul>
  </div>

  <div class="section">
    <h2>Next Steps</h2>
    <ul>
    {{- range .NextSteps}}
      <li>{{.}}</li>
    {{- else}}
      <li>Planning in progress</li>
    {{- end}}
    </ul>
  </div>

  {{- if .Issues}}
  <div class="section">
    <h2>Issues</h2>
    <ul>
    {{- range .Issues}}
      <li>{{.}}</li>
    {{- end}}
    </ul>
  </div>
  {{- end}}

  <div class="footer">
    <p>Generated by RepoYield</p>
  </div>
</div>
</body>
</html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("digest").Funcs(templateFuncs).Parse(`Repository Revenue Digest - {{.Owner}} - {{.Date.Format "January 2, 2006"}}

SUMMARY
- Repositories scanned: {{.ReposScanned}}
- Failed: {{.ReposFailed}}
- Total estimated value: ${{comma .TotalEstimatedValue}}

TOP REPOSITORIES
{{- range .Repositories}}
- {{.Name}}: {{score1 .TotalScore}}/100 ({{.RevenuePotential}}, ${{comma .EstimatedValue}})
{{- else}}
- No repositories analyzed
{{- end}}

REVENUE OPPORTUNITIES
{{- range .Opportunities}}
- {{.}}
{{- else}}
- No new opportunities identified
{{- end}}

NEXT STEPS
{{- range .NextSteps}}
- {{.}}
{{- else}}
- Planning in progress
{{- end}}
{{- if .Issues}}

ISSUES
{{- range .Issues}}
- {{.}}
{{- end}}
{{- end}}

---
Generated by RepoYield
`))

// Render produces the digest email with HTML and plain-text bodies
func Render(digest Digest) (adapters.Message, error) {
	subject := fmt.Sprintf("Repository Revenue Digest - %s - %s",
		digest.Owner, digest.Date.Format("January 2, 2006"))

	var htmlBody strings.Builder
	if err := htmlTemplate.Execute(&htmlBody, digest); err != nil {
		return adapters.Message{}, fmt.Errorf("failed to render HTML digest: %w", err)
	}

	var textBody strings.Builder
	if err := textTemplate.Execute(&textBody, digest); err != nil {
		return adapters.Message{}, fmt.Errorf("failed to render text digest: %w", err)
	}

	return adapters.Message{
		Subject:  subject,
		HTMLBody: htmlBody.String(),
		TextBody: textBody.String(),
	}, nil
}

// comma formats an integer with thousands separators
func comma(v int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return sign + s
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	return sign + strings.Join(parts, ",")
}
