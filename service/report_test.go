package service

import (
	"strings"
	"testing"
	"time"

	"sentinel-edge/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedJob(mode models.AnalysisMode, res models.AggregatedResult) *models.AnalysisJob {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return &models.AnalysisJob{
		ID:          uuid.New(),
		Filename:    "lease.pdf",
		Mode:        mode,
		Status:      models.JobStatusCompleted,
		Result:      &res,
		CompletedAt: &now,
	}
}

func TestBuildReport_LegalRisk(t *testing.T) {
	job := completedJob(models.ModeLegalRiskScoring, models.AggregatedResult{
		Mode:  models.ModeLegalRiskScoring,
		Score: 72,
		Findings: []models.Finding{
			{"risk_level": "LOW", "clause_type": "Governing Law"},
			{"risk_level": "HIGH", "clause_type": "Non-Compete"},
			{"risk_level": "MED", "clause_type": "Termination"},
			{"risk_level": "HIGH", "clause_type": "IP Assignment"},
		},
	})

	r := BuildReport(job)
	assert.Equal(t, 72, r.Score)
	assert.Equal(t, models.RiskSummary{High: 2, Med: 1, Low: 1}, r.Summary)

	var types []string
	for _, f := range r.Findings {
		types = append(types, f.Type())
	}
	assert.Equal(t, []string{"Non-Compete", "IP Assignment", "Termination", "Governing Law"}, types)

	// the stored result keeps chunk order
	assert.Equal(t, "Governing Law", job.Result.Findings[0].Type())
}

func TestBuildReport_VulnerabilityUsesSeverityScore(t *testing.T) {
	job := completedJob(models.ModeVulnerabilityDetection, models.AggregatedResult{
		Mode: models.ModeVulnerabilityDetection,
		Findings: []models.Finding{
			{"severity": "HIGH"}, {"severity": "MED"}, {"severity": "LOW"},
		},
	})
	assert.Equal(t, 31, BuildReport(job).Score)
}

func TestSeverityScore_Capped(t *testing.T) {
	var findings []models.Finding
	for i := 0; i < 6; i++ {
		findings = append(findings, models.Finding{"risk_level": "HIGH"})
	}
	assert.Equal(t, 100, SeverityScore(findings))
	assert.Equal(t, 0, SeverityScore(nil))
}

func TestBuildReport_PII(t *testing.T) {
	job := completedJob(models.ModePIIMasking, models.AggregatedResult{Mode: models.ModePIIMasking})
	r := BuildReport(job)
	assert.NotNil(t, r.PIIInstances)
	assert.Empty(t, r.PIIInstances)
	assert.NotNil(t, r.Findings)
}

func TestRenderHTML(t *testing.T) {
	job := completedJob(models.ModeLegalRiskScoring, models.AggregatedResult{
		Mode:  models.ModeLegalRiskScoring,
		Score: 55,
		Findings: []models.Finding{{
			"risk_level":     "HIGH",
			"clause_type":    "Indemnification",
			"excerpt":        "<script>alert(1)</script>",
			"recommendation": "Cap liability.",
		}},
	})

	out, err := RenderHTML(BuildReport(job))
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "lease.pdf")
	assert.Contains(t, html, `<div class="score">55</div>`)
	assert.Contains(t, html, "Indemnification")
	assert.Contains(t, html, "Cap liability.")
	assert.Contains(t, html, "2026-03-01 09:30")
	assert.NotContains(t, html, "<script>")
}

func TestRenderHTML_PII(t *testing.T) {
	job := completedJob(models.ModePIIMasking, models.AggregatedResult{
		Mode:         models.ModePIIMasking,
		PIIInstances: []models.PIIInstance{{"type": "EMAIL", "excerpt": "jane@example.com"}},
	})

	out, err := RenderHTML(BuildReport(job))
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "EMAIL")
	assert.Contains(t, html, "jane@example.com")
	assert.False(t, strings.Contains(html, `class="score"`))
}
