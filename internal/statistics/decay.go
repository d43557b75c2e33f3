package statistics

import (
	"math"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
)

// DefaultDecayLags is the implementation-chosen L from §4.5's IC decay
// definition.
const DefaultDecayLags = 10

// Decay computes, for lags 1..maxLag, the mean IC between factor values at
// date t and the forward return measured over lag*adjustmentCycle days
// rather than the base adjustmentCycle window.
func Decay(factorPoints []domain.CustomFactorPoint, market []domain.MarketPoint, adjustmentCycle, maxLag int) []float64 {
	return decay(factorPoints, market, adjustmentCycle, maxLag, ICSeries)
}

// RankDecay is Decay's Spearman counterpart, for the rank_ic_decay_chart
// endpoint.
func RankDecay(factorPoints []domain.CustomFactorPoint, market []domain.MarketPoint, adjustmentCycle, maxLag int) []float64 {
	return decay(factorPoints, market, adjustmentCycle, maxLag, RankICSeries)
}

func decay(factorPoints []domain.CustomFactorPoint, market []domain.MarketPoint, adjustmentCycle, maxLag int, seriesFn func([]grouping.Row) DateSeries) []float64 {
	out := make([]float64, 0, maxLag)
	for lag := 1; lag <= maxLag; lag++ {
		rows := grouping.BuildTable(factorPoints, market, adjustmentCycle*lag)
		series := seriesFn(rows)
		var sum float64
		var n int
		for _, v := range series.Values {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, sum/float64(n))
	}
	return out
}
