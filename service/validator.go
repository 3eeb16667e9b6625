package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sentinel-edge/llm"
	"sentinel-edge/logger"
	"sentinel-edge/metrics"
	"sentinel-edge/models"

	"github.com/sirupsen/logrus"
)

const DefaultMaxAttempts = 3

// RetryPolicy bounds CallWithRetry. Validation failures are always retried;
// invoker errors only when RetryTransportErrors is set.
type RetryPolicy struct {
	MaxAttempts          int
	RetryTransportErrors bool
}

// DefaultRetryPolicy allows three attempts and propagates transport errors
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// CallWithRetry invokes the model until a response passes the schema gate for
// mode, at most MaxAttempts times. Retries are immediate.
func CallWithRetry(
	ctx context.Context,
	invoker llm.Invoker,
	message string,
	mode models.AnalysisMode,
	policy RetryPolicy,
) (models.ChunkResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}

	maxAttempts := policy.attempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := logger.Log.WithFields(logrus.Fields{
			"mode":    mode,
			"attempt": fmt.Sprintf("%d/%d", attempt, maxAttempts),
		})

		raw, err := invoker.Invoke(ctx, message)
		if err != nil {
			metrics.ModelAttempts.WithLabelValues(string(mode), metrics.AttemptTransportError).Inc()
			if !policy.RetryTransportErrors || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			log.Warnf("model call failed: %v. Retrying...", err)
			continue
		}
		log.Debugf("raw output: %s", raw)

		result, err := ParseChunkResult(raw, mode)
		if err == nil {
			metrics.ModelAttempts.WithLabelValues(string(mode), metrics.AttemptOK).Inc()
			return result, nil
		}

		metrics.ModelAttempts.WithLabelValues(string(mode), metrics.AttemptValidationError).Inc()
		lastErr = err
		if attempt < maxAttempts {
			log.Warnf("response rejected: %v. Retrying...", err)
		} else {
			log.Warnf("response rejected: %v", err)
		}
	}

	return nil, &ExhaustedError{Mode: mode, Attempts: maxAttempts, Last: lastErr}
}

// ParseChunkResult parses raw model output and applies the schema gate: the
// output must be a JSON object holding every required key of mode. What the
// containers hold is normalized, never rejected.
func ParseChunkResult(raw string, mode models.AnalysisMode) (models.ChunkResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}

	invalid := func(format string, args ...any) error {
		return &ValidationError{Mode: mode, Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil {
		return nil, invalid("Response is not valid JSON: %v", err)
	}
	if fields == nil {
		return nil, invalid("Response is not a JSON object")
	}

	var missing []string
	for _, key := range mode.RequiredKeys() {
		if _, ok := fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, invalid("Response missing required keys: %v", missing)
	}

	switch mode {
	case models.ModeVulnerabilityDetection:
		return models.VulnerabilityResult{Findings: toFindings(objectList(fields[models.KeyFindings]))}, nil

	case models.ModeLegalRiskScoring:
		return models.LegalRiskResult{
			Score:    coerceScore(fields[models.KeyScore]),
			Findings: toFindings(objectList(fields[models.KeyFindings])),
		}, nil

	default: // pii_masking
		items := objectList(fields[models.KeyPIIInstances])
		instances := make([]models.PIIInstance, len(items))
		for i, item := range items {
			instances[i] = models.PIIInstance(item)
		}
		return models.PIIResult{PIIInstances: instances}, nil
	}
}

// stripCodeFence unwraps ```json ... ``` blocks some models emit
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// objectList normalizes a container value into a list of objects. Null,
// scalars and undecodable values give an empty list, a lone object becomes a
// one-element list, and non-object array elements are wrapped as excerpts.
func objectList(raw json.RawMessage) []map[string]any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []map[string]any{}
	}

	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			switch e := item.(type) {
			case nil:
			case map[string]any:
				out = append(out, e)
			default:
				out = append(out, map[string]any{"excerpt": e})
			}
		}
		return out
	default:
		return []map[string]any{}
	}
}

func toFindings(items []map[string]any) []models.Finding {
	out := make([]models.Finding, len(items))
	for i, item := range items {
		out[i] = models.Finding(item)
	}
	return out
}

// coerceScore accepts JSON numbers and strings of ASCII digits
func coerceScore(raw json.RawMessage) *float64 {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	switch s := v.(type) {
	case float64:
		return &s
	case string:
		if !isDigits(s) {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
