package service

import (
	"context"
	"errors"
	"testing"

	"sentinel-edge/llm"
	"sentinel-edge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunkResult_SchemaGate(t *testing.T) {
	tests := []struct {
		name    string
		mode    models.AnalysisMode
		raw     string
		wantErr string
	}{
		{"vuln ok", models.ModeVulnerabilityDetection, `{"findings": []}`, ""},
		{"vuln extra keys", models.ModeVulnerabilityDetection, `{"findings": [], "notes": "x", "score": 3}`, ""},
		{"vuln missing", models.ModeVulnerabilityDetection, `{"issues": []}`, "missing required keys: [findings]"},
		{"legal ok", models.ModeLegalRiskScoring, `{"score": 10, "findings": [{"risk_level": "LOW"}]}`, ""},
		{"legal missing score", models.ModeLegalRiskScoring, `{"findings": []}`, "missing required keys: [score]"},
		{"legal missing both", models.ModeLegalRiskScoring, `{}`, "missing required keys: [score findings]"},
		{"pii ok", models.ModePIIMasking, `{"pii_instances": [{"type": "EMAIL", "excerpt": "a@b.c"}]}`, ""},
		{"pii missing", models.ModePIIMasking, `{"findings": []}`, "missing required keys: [pii_instances]"},
		{"not json", models.ModePIIMasking, `Sure! Here are the results`, "not valid JSON"},
		{"array top level", models.ModeVulnerabilityDetection, `[{"findings": []}]`, "not valid JSON"},
		{"null top level", models.ModeVulnerabilityDetection, `null`, "not a JSON object"},
		{"container not array", models.ModeVulnerabilityDetection, `{"findings": "none"}`, ""},
		{"container null", models.ModePIIMasking, `{"pii_instances": null}`, ""},
		{"element not object", models.ModeVulnerabilityDetection, `{"findings": ["x"]}`, ""},
		{"legal findings object", models.ModeLegalRiskScoring, `{"score": 5, "findings": {"risk_level": "LOW"}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseChunkResult(tt.raw, tt.mode)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.mode, result.Mode())
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Error(), tt.wantErr)
			assert.Equal(t, tt.raw, ve.Raw)
		})
	}
}

func TestParseChunkResult_NormalizesContainers(t *testing.T) {
	findings := func(raw string) []models.Finding {
		r, err := ParseChunkResult(raw, models.ModeVulnerabilityDetection)
		require.NoError(t, err)
		return r.(models.VulnerabilityResult).Findings
	}

	got := findings(`{"findings": ["SQL injection in login", {"risk_level": "HIGH"}, null, 7]}`)
	require.Len(t, got, 3)
	assert.Equal(t, "SQL injection in login", got[0].Excerpt())
	assert.Equal(t, models.RiskHigh, got[1].RiskLevel())
	assert.Equal(t, 7.0, got[2]["excerpt"])

	assert.Empty(t, findings(`{"findings": null}`))
	assert.Empty(t, findings(`{"findings": "none"}`))
	assert.Len(t, findings(`{"findings": {"risk_level": "LOW"}}`), 1)

	r, err := ParseChunkResult(`{"pii_instances": null}`, models.ModePIIMasking)
	require.NoError(t, err)
	assert.NotNil(t, r.(models.PIIResult).PIIInstances)
	assert.Empty(t, r.(models.PIIResult).PIIInstances)
}

func TestCallWithRetry_LooseContainerAcceptedFirstTime(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{"findings": ["SQL injection in login"]}`}}

	result, err := CallWithRetry(context.Background(), inv, "msg", models.ModeVulnerabilityDetection, DefaultRetryPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Calls())
	require.Len(t, result.(models.VulnerabilityResult).Findings, 1)
}

func TestParseChunkResult_CodeFence(t *testing.T) {
	raw := "```json\n{\"findings\": [{\"risk_level\": \"HIGH\", \"excerpt\": \"eval(input)\"}]}\n```"
	result, err := ParseChunkResult(raw, models.ModeVulnerabilityDetection)
	require.NoError(t, err)

	v := result.(models.VulnerabilityResult)
	require.Len(t, v.Findings, 1)
	assert.Equal(t, models.RiskHigh, v.Findings[0].RiskLevel())
	assert.Equal(t, "eval(input)", v.Findings[0].Excerpt())
}

func TestParseChunkResult_ScoreCoercion(t *testing.T) {
	score := func(raw string) *float64 {
		r, err := ParseChunkResult(raw, models.ModeLegalRiskScoring)
		require.NoError(t, err)
		return r.(models.LegalRiskResult).Score
	}

	require.NotNil(t, score(`{"score": 80, "findings": []}`))
	assert.Equal(t, 80.0, *score(`{"score": 80, "findings": []}`))
	assert.Equal(t, 72.5, *score(`{"score": 72.5, "findings": []}`))
	assert.Equal(t, 45.0, *score(`{"score": "45", "findings": []}`))
	assert.Nil(t, score(`{"score": "high", "findings": []}`))
	assert.Nil(t, score(`{"score": "-5", "findings": []}`))
	assert.Nil(t, score(`{"score": true, "findings": []}`))
	assert.Nil(t, score(`{"score": null, "findings": []}`))
}

func TestParseChunkResult_UnknownMode(t *testing.T) {
	_, err := ParseChunkResult(`{}`, "sentiment")
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCallWithRetry_FirstConformingResponseWins(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{"findings": []}`}}

	result, err := CallWithRetry(context.Background(), inv, "msg", models.ModeVulnerabilityDetection, DefaultRetryPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.VulnerabilityResult{Findings: []models.Finding{}}, result)
	assert.Equal(t, 1, inv.Calls())
	assert.Equal(t, []string{"msg"}, inv.messages)
}

func TestCallWithRetry_RecoversAfterMissingKey(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"findings": [{"risk_level": "HIGH"}]}`,
		`{"score": 55, "findings": [{"risk_level": "MED"}]}`,
		`{"score": 99, "findings": []}`,
	}}

	result, err := CallWithRetry(context.Background(), inv, "msg", models.ModeLegalRiskScoring, DefaultRetryPolicy())
	require.NoError(t, err)

	assert.Equal(t, 2, inv.Calls())
	legal := result.(models.LegalRiskResult)
	require.NotNil(t, legal.Score)
	assert.Equal(t, 55.0, *legal.Score)
	assert.Equal(t, models.RiskMed, legal.Findings[0].RiskLevel())
}

func TestCallWithRetry_ExhaustsAfterMaxAttempts(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{"I cannot answer that."}}

	result, err := CallWithRetry(context.Background(), inv, "msg", models.ModePIIMasking, DefaultRetryPolicy())
	require.Error(t, err)
	assert.Nil(t, result)

	assert.Equal(t, 3, inv.Calls())
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "not valid JSON")

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestCallWithRetry_CustomBound(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{}`}}

	_, err := CallWithRetry(context.Background(), inv, "msg", models.ModePIIMasking, RetryPolicy{MaxAttempts: 5})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 5, inv.Calls())
}

func TestCallWithRetry_TransportErrorPropagates(t *testing.T) {
	boom := &llm.TransportError{Provider: "test", Err: errors.New("connection refused")}
	inv := &scriptedInvoker{errs: []error{boom}, responses: []string{`{"findings": []}`}}

	_, err := CallWithRetry(context.Background(), inv, "msg", models.ModeVulnerabilityDetection, DefaultRetryPolicy())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, inv.Calls())
}

func TestCallWithRetry_TransportErrorRetriedWhenEnabled(t *testing.T) {
	boom := errors.New("timeout")
	inv := &scriptedInvoker{errs: []error{boom, nil}, responses: []string{"", `{"findings": []}`}}

	policy := RetryPolicy{MaxAttempts: 3, RetryTransportErrors: true}
	_, err := CallWithRetry(context.Background(), inv, "msg", models.ModeVulnerabilityDetection, policy)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Calls())
}

func TestCallWithRetry_UnknownModeFailsBeforeInvoking(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{}`}}

	_, err := CallWithRetry(context.Background(), inv, "msg", "summarize", DefaultRetryPolicy())
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, inv.Calls())
}

func TestCallWithRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := &scriptedInvoker{responses: []string{`{"findings": []}`}}

	_, err := CallWithRetry(ctx, inv, "msg", models.ModeVulnerabilityDetection, DefaultRetryPolicy())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inv.Calls())
}
