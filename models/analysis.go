package models

import (
	"encoding/json"
	"fmt"
)

// AnalysisMode selects the instruction template and the output schema of a run
type AnalysisMode string

const (
	ModeLegalRiskScoring       AnalysisMode = "legal_risk_scoring"
	ModePIIMasking             AnalysisMode = "pii_masking"
	ModeVulnerabilityDetection AnalysisMode = "vulnerability_detection"
)

// AnalysisModes returns every supported mode in a stable order
func AnalysisModes() []AnalysisMode {
	return []AnalysisMode{ModeLegalRiskScoring, ModePIIMasking, ModeVulnerabilityDetection}
}

// Valid reports whether m is one of the supported modes
func (m AnalysisMode) Valid() bool {
	switch m {
	case ModeLegalRiskScoring, ModePIIMasking, ModeVulnerabilityDetection:
		return true
	}
	return false
}

// ParseAnalysisMode converts a raw selection into an AnalysisMode
func ParseAnalysisMode(s string) (AnalysisMode, error) {
	m := AnalysisMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("invalid analysis mode %q, valid options: %v", s, AnalysisModes())
	}
	return m, nil
}

// Output container keys
const (
	KeyFindings     = "findings"
	KeyScore        = "score"
	KeyPIIInstances = "pii_instances"
)

var requiredKeys = map[AnalysisMode][]string{
	ModeVulnerabilityDetection: {KeyFindings},
	ModeLegalRiskScoring:       {KeyScore, KeyFindings},
	ModePIIMasking:             {KeyPIIInstances},
}

// RequiredKeys returns the top-level keys a model response must carry for m.
// Unknown modes require nothing.
func (m AnalysisMode) RequiredKeys() []string {
	keys := requiredKeys[m]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// Chunk is one ordered segment of extracted document text
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ChunkResult is the validated model output for one chunk. The concrete type
// is fixed by the mode: VulnerabilityResult, LegalRiskResult or PIIResult.
type ChunkResult interface {
	Mode() AnalysisMode
}

// VulnerabilityResult is a vulnerability_detection chunk result
type VulnerabilityResult struct {
	Findings []Finding `json:"findings"`
}

func (VulnerabilityResult) Mode() AnalysisMode { return ModeVulnerabilityDetection }

// LegalRiskResult is a legal_risk_scoring chunk result. Score is nil when the
// model's score was not numeric.
type LegalRiskResult struct {
	Score    *float64  `json:"score"`
	Findings []Finding `json:"findings"`
}

func (LegalRiskResult) Mode() AnalysisMode { return ModeLegalRiskScoring }

// PIIResult is a pii_masking chunk result
type PIIResult struct {
	PIIInstances []PIIInstance `json:"pii_instances"`
}

func (PIIResult) Mode() AnalysisMode { return ModePIIMasking }

// AggregatedResult is the document-level merge of every ChunkResult of a run.
// It serializes to the mode's output shape.
type AggregatedResult struct {
	Mode         AnalysisMode
	Score        int
	Findings     []Finding
	PIIInstances []PIIInstance

	// score bookkeeping so partial aggregates can be merged with the right weights
	ScoreSum   float64
	ScoreCount int
}

// MarshalJSON emits {findings}, {score, findings} or {pii_instances}
func (a AggregatedResult) MarshalJSON() ([]byte, error) {
	findings := a.Findings
	if findings == nil {
		findings = []Finding{}
	}
	switch a.Mode {
	case ModeVulnerabilityDetection:
		return json.Marshal(struct {
			Findings []Finding `json:"findings"`
		}{findings})
	case ModeLegalRiskScoring:
		return json.Marshal(struct {
			Score    int       `json:"score"`
			Findings []Finding `json:"findings"`
		}{a.Score, findings})
	case ModePIIMasking:
		instances := a.PIIInstances
		if instances == nil {
			instances = []PIIInstance{}
		}
		return json.Marshal(struct {
			PIIInstances []PIIInstance `json:"pii_instances"`
		}{instances})
	default:
		return []byte("{}"), nil
	}
}

type storedAggregate struct {
	Mode         AnalysisMode  `json:"mode"`
	Score        int           `json:"score"`
	Findings     []Finding     `json:"findings,omitempty"`
	PIIInstances []PIIInstance `json:"pii_instances,omitempty"`
	ScoreSum     float64       `json:"score_sum,omitempty"`
	ScoreCount   int           `json:"score_count,omitempty"`
}

// MarshalStored encodes the full result, mode included, for persistence
func (a AggregatedResult) MarshalStored() ([]byte, error) {
	return json.Marshal(storedAggregate(a))
}

// UnmarshalStored decodes data written by MarshalStored
func UnmarshalStored(data []byte) (*AggregatedResult, error) {
	var s storedAggregate
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	a := AggregatedResult(s)
	return &a, nil
}
