package models

import (
	"sort"
	"strings"
)

// RiskLevel is the severity tag a model attaches to a finding
type RiskLevel string

const (
	RiskHigh RiskLevel = "HIGH"
	RiskMed  RiskLevel = "MED"
	RiskLow  RiskLevel = "LOW"
	RiskNone RiskLevel = "NONE"
)

// Finding is one issue reported by the model. Only the container is part of
// the schema gate, so nested fields are kept as the model sent them.
type Finding map[string]any

func (f Finding) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := f[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// RiskLevel normalizes risk_level (or severity) to HIGH, MED, LOW or NONE
func (f Finding) RiskLevel() RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(f.str("risk_level", "severity"))) {
	case "HIGH", "CRITICAL":
		return RiskHigh
	case "MED", "MEDIUM":
		return RiskMed
	case "LOW":
		return RiskLow
	default:
		return RiskNone
	}
}

// Type returns the finding's type label, whichever key the model used
func (f Finding) Type() string {
	return f.str("type", "clause_type", "vulnerability_type")
}

func (f Finding) Excerpt() string {
	return f.str("excerpt")
}

func (f Finding) Recommendation() string {
	return f.str("recommendation")
}

// PIIInstance is one piece of personal data found in a chunk
type PIIInstance map[string]any

func (p PIIInstance) Type() string {
	v, _ := p["type"].(string)
	return v
}

func (p PIIInstance) Excerpt() string {
	v, _ := p["excerpt"].(string)
	return v
}

var riskOrder = map[RiskLevel]int{RiskHigh: 0, RiskMed: 1, RiskLow: 2}

func riskRank(l RiskLevel) int {
	if r, ok := riskOrder[l]; ok {
		return r
	}
	return len(riskOrder)
}

// SortByRisk returns a copy of findings ordered HIGH, MED, LOW, then anything
// else. Equal levels keep their original order.
func SortByRisk(findings []Finding) []Finding {
	out := make([]Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		return riskRank(out[i].RiskLevel()) < riskRank(out[j].RiskLevel())
	})
	return out
}

// RiskSummary counts findings per level
type RiskSummary struct {
	High int `json:"high"`
	Med  int `json:"med"`
	Low  int `json:"low"`
}

func SummarizeRisk(findings []Finding) RiskSummary {
	var s RiskSummary
	for _, f := range findings {
		switch f.RiskLevel() {
		case RiskHigh:
			s.High++
		case RiskMed:
			s.Med++
		case RiskLow:
			s.Low++
		}
	}
	return s
}
