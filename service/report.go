package service

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"sentinel-edge/models"

	"github.com/google/uuid"
)

// Report is the presentation view of a completed analysis
type Report struct {
	JobID        uuid.UUID            `json:"job_id"`
	Filename     string               `json:"filename"`
	Mode         models.AnalysisMode  `json:"selection"`
	Score        int                  `json:"score"`
	Summary      models.RiskSummary   `json:"summary"`
	Findings     []models.Finding     `json:"findings"`
	PIIInstances []models.PIIInstance `json:"pii_instances,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// SeverityScore rates a finding list when the model gives no score:
// 20 per HIGH, 8 per MED, 3 for anything else, capped at 100
func SeverityScore(findings []models.Finding) int {
	sum := models.SummarizeRisk(findings)
	score := sum.High*20 + sum.Med*8 + (len(findings)-sum.High-sum.Med)*3
	if score > 100 {
		return 100
	}
	return score
}

// BuildReport turns a completed job into a Report. Findings are sorted
// HIGH, MED, LOW, then the rest; the stored result keeps chunk order.
func BuildReport(job *models.AnalysisJob) *Report {
	r := &Report{
		JobID:       job.ID,
		Filename:    job.Filename,
		Mode:        job.Mode,
		Findings:    []models.Finding{},
		CompletedAt: job.CompletedAt,
	}
	if job.Result == nil {
		return r
	}

	res := job.Result
	r.Findings = models.SortByRisk(res.Findings)
	r.Summary = models.SummarizeRisk(res.Findings)

	switch job.Mode {
	case models.ModeLegalRiskScoring:
		r.Score = res.Score
	case models.ModePIIMasking:
		r.PIIInstances = res.PIIInstances
		if r.PIIInstances == nil {
			r.PIIInstances = []models.PIIInstance{}
		}
	default:
		r.Score = SeverityScore(res.Findings)
	}
	return r
}

// HistoryEntry is one row of the recent analyses list
type HistoryEntry struct {
	JobID        uuid.UUID                `json:"job_id"`
	Filename     string                   `json:"filename"`
	Mode         models.AnalysisMode      `json:"selection"`
	Score        int                      `json:"score"`
	Status       models.AnalysisJobStatus `json:"status"`
	CreatedAt    time.Time                `json:"created_at"`
	FindingCount int                      `json:"finding_count"`
}

// NewHistoryEntry summarizes a job for the history list
func NewHistoryEntry(job *models.AnalysisJob) HistoryEntry {
	e := HistoryEntry{
		JobID:        job.ID,
		Filename:     job.Filename,
		Mode:         job.Mode,
		Status:       job.Status,
		CreatedAt:    job.CreatedAt,
		FindingCount: job.FindingCount(),
	}
	if job.Result != nil {
		e.Score = BuildReport(job).Score
	}
	return e
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"riskColor": func(l models.RiskLevel) string {
		switch l {
		case models.RiskHigh:
			return "#ef4444"
		case models.RiskMed:
			return "#f97316"
		case models.RiskLow:
			return "#eab308"
		}
		return "#94a3b8"
	},
	"truncate": func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "..."
	},
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Sentinel-Edge Report: {{.Filename}}</title>
<style>
body{font-family:Arial,sans-serif;padding:32px;background:#0f172a;color:#e2e8f0}
h1{color:#60a5fa}
table{width:100%;border-collapse:collapse;margin-top:24px}
th{background:#1e293b;padding:10px;text-align:left;color:#94a3b8}
td{padding:10px;border-bottom:1px solid #1e293b;vertical-align:top;font-size:13px}
.score{font-size:48px;font-weight:bold;color:#ef4444}
.meta{color:#94a3b8}
</style></head><body>
<h1>Sentinel-Edge Report</h1>
<p class="meta">File: {{.Filename}} | {{.Mode}}{{with .CompletedAt}} | {{.Format "2006-01-02 15:04"}}{{end}}</p>
{{if ne .Mode "pii_masking"}}<div class="score">{{.Score}}</div>
<p class="meta">Risk Score (0=safe, 100=critical) | High {{.Summary.High}} | Med {{.Summary.Med}} | Low {{.Summary.Low}}</p>
<table>
<tr><th>RISK</th><th>TYPE</th><th>EXCERPT</th><th>RECOMMENDATION</th></tr>
{{range .Findings}}<tr><td style="color:{{riskColor .RiskLevel}}"><b>{{.RiskLevel}}</b></td><td>{{.Type}}</td><td><code>{{truncate .Excerpt 80}}</code></td><td>{{.Recommendation}}</td></tr>
{{else}}<tr><td colspan="4">No findings.</td></tr>
{{end}}</table>
{{else}}<p class="meta">{{len .PIIInstances}} personal data instances</p>
<table>
<tr><th>TYPE</th><th>EXCERPT</th></tr>
{{range .PIIInstances}}<tr><td>{{.Type}}</td><td><code>{{truncate .Excerpt 80}}</code></td></tr>
{{else}}<tr><td colspan="2">No personal data found.</td></tr>
{{end}}</table>
{{end}}</body></html>
`))

// RenderHTML renders a report as a self-contained HTML page
func RenderHTML(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}
