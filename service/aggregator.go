package service

import (
	"math"

	"sentinel-edge/models"
)

// Aggregate merges chunk results into the document-level result for mode.
// Lists are concatenated in chunk order; legal scores are averaged and
// rounded half to even, 0 when no chunk carried a numeric score. Results of
// another mode are ignored. An unknown mode yields an empty result.
func Aggregate(results []models.ChunkResult, mode models.AnalysisMode) models.AggregatedResult {
	agg := models.AggregatedResult{Mode: mode}

	switch mode {
	case models.ModeVulnerabilityDetection:
		agg.Findings = []models.Finding{}
		for _, r := range results {
			if v, ok := r.(models.VulnerabilityResult); ok {
				agg.Findings = append(agg.Findings, v.Findings...)
			}
		}

	case models.ModeLegalRiskScoring:
		agg.Findings = []models.Finding{}
		for _, r := range results {
			v, ok := r.(models.LegalRiskResult)
			if !ok {
				continue
			}
			agg.Findings = append(agg.Findings, v.Findings...)
			if v.Score != nil {
				agg.ScoreSum += *v.Score
				agg.ScoreCount++
			}
		}
		agg.Score = meanScore(agg.ScoreSum, agg.ScoreCount)

	case models.ModePIIMasking:
		agg.PIIInstances = []models.PIIInstance{}
		for _, r := range results {
			if v, ok := r.(models.PIIResult); ok {
				agg.PIIInstances = append(agg.PIIInstances, v.PIIInstances...)
			}
		}
	}

	return agg
}

// Merge combines partial aggregates of the same mode, in order. Scores are
// weighted by the number of chunks that contributed to each part, so merging
// the aggregates of a partition equals aggregating the whole list.
func Merge(mode models.AnalysisMode, parts ...models.AggregatedResult) models.AggregatedResult {
	out := Aggregate(nil, mode)
	if !mode.Valid() {
		return out
	}
	for _, p := range parts {
		if p.Mode != mode {
			continue
		}
		out.Findings = append(out.Findings, p.Findings...)
		out.PIIInstances = append(out.PIIInstances, p.PIIInstances...)
		out.ScoreSum += p.ScoreSum
		out.ScoreCount += p.ScoreCount
	}
	if mode == models.ModeLegalRiskScoring {
		out.Score = meanScore(out.ScoreSum, out.ScoreCount)
	}
	return out
}

func meanScore(sum float64, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.RoundToEven(sum / float64(count)))
}
