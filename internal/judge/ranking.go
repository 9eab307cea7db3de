package judge

import (
	"fmt"
	"os"
	"strings"

	"github.com/Mapleshade20/online-judge/internal/model"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// withMetric appends a "metric:<value>" suffix to info (§4.2.3) unless a
// comparator already wrote diagnostic content that should be left
// untouched (SPJ output, dynamic-ranking diagnostics).
func withMetric(info string, p Params, c model.Case, jc model.JobCase) string {
	if strings.Contains(info, "metric:") {
		return info
	}
	metric := metricFor(p, c, jc)
	if info == "" {
		return fmt.Sprintf("metric:%g", metric)
	}
	return fmt.Sprintf("%s metric:%g", info, metric)
}

func metricFor(p Params, c model.Case, jc model.JobCase) float64 {
	switch p.Problem.Misc.MetricField {
	case "memory":
		return float64(jc.MemoryBytes)
	case "score":
		return float64(c.Score)
	default:
		return float64(jc.TimeUs)
	}
}

// dynamicRankingScore implements §4.2.2: base_score + ratio_bonus, where
// ratio_bonus needs the best metric seen so far across Finished submissions
// to this problem — supplied by the rank-list collaborator via
// Params.BestMetric.
func dynamicRankingScore(p Params, c model.Case, jc model.JobCase) float64 {
	ratio := p.Problem.Misc.DynamicRankingRatio
	base := float64(c.Score) * ratio

	myMetric := metricFor(p, c, jc)
	if myMetric <= 0 || p.BestMetric == nil {
		return base
	}

	best := p.BestMetric(p.Problem.ID)
	if best <= 0 {
		best = myMetric
	}

	bonus := float64(c.Score) * (1 - ratio) * best / myMetric
	return base + bonus
}
