package statistics

import (
	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
)

// Input bundles everything C5 needs: the grouped/attributed rows, the
// per-group daily return series and benchmark C4 already computed, plus
// the raw factor/market data IC decay needs to recompute forward returns
// at lags other than the base adjustment cycle.
type Input struct {
	Rows            []grouping.Row
	GroupReturns    map[int]map[string]float64
	Benchmark       map[string]float64
	GroupNumber     int
	FactorPoints    []domain.CustomFactorPoint
	Market          []domain.MarketPoint
	AdjustmentCycle int
}

// Compute runs the full C5 statistics suite and returns every
// statistics-owned field of the result bundle (TaskID is set by the
// caller at persistence time).
func Compute(in Input) domain.ResultBundle {
	ic := ICSeries(in.Rows)
	rankIC := RankICSeries(in.Rows)

	icDecay := Decay(in.FactorPoints, in.Market, in.AdjustmentCycle, DefaultDecayLags)
	rankDecay := RankDecay(in.FactorPoints, in.Market, in.AdjustmentCycle, DefaultDecayLags)

	groups := GroupPerformance(in.Rows, in.GroupReturns, in.Benchmark, in.GroupNumber)

	return domain.ResultBundle{
		GroupReturnAnalysis: groups,

		ICSeriesChart:          SeriesChart("IC", "ic", ic),
		ICDensityChart:         densityChart("IC distribution", ic),
		ICSelfCorrelationChart: LagsChart("IC autocorrelation", Autocorrelation(ic, DefaultDecayLags)),
		ICDecayChart:           LagsChart("IC decay", icDecay),
		ICSummary:              Summary(ic),

		RankICSeriesChart:          SeriesChart("Rank-IC", "rank_ic", rankIC),
		RankICDensityChart:         densityChart("Rank-IC distribution", rankIC),
		RankICSelfCorrelationChart: LagsChart("Rank-IC autocorrelation", Autocorrelation(rankIC, DefaultDecayLags)),
		RankICDecayChart:           LagsChart("Rank-IC decay", rankDecay),
		RankICSummary:              Summary(rankIC),

		ReturnChart:       CumulativeReturnChart("Group cumulative return", in.GroupReturns, in.GroupNumber),
		SimpleReturnChart: SimpleReturnChart("Best-group cumulative return", in.GroupReturns),
		ExcessChart:       ExcessReturnChart("Group excess cumulative return", in.GroupReturns, in.Benchmark, in.GroupNumber),

		FactorDataAnalysis: FactorDataAnalysis(in.Rows),
		OneGroupData:       OneGroupData(groups),
		LastDateTopFactor:  TopFactorSnapshot(in.FactorPoints, in.Market),
	}
}

// densityChart buckets a series into a 20-bin histogram, the shape the
// query surface's *_density_chart endpoints expect.
func densityChart(title string, s DateSeries) domain.ChartPayload {
	const bins = 20
	if len(s.Values) == 0 {
		return domain.ChartPayload{Title: title}
	}
	lo, hi := s.Values[0], s.Values[0]
	for _, v := range s.Values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	width := (hi - lo) / bins
	counts := make([]int, bins)
	for _, v := range s.Values {
		idx := bins - 1
		if width > 0 {
			idx = int((v - lo) / width)
			if idx >= bins {
				idx = bins - 1
			}
			if idx < 0 {
				idx = 0
			}
		}
		counts[idx]++
	}

	x := make([]any, bins)
	y := make([]any, bins)
	for i := 0; i < bins; i++ {
		x[i] = lo + width*float64(i)
		y[i] = counts[i]
	}
	return domain.ChartPayload{
		Title: title,
		X:     []domain.Series{{Name: "bucket", Data: x}},
		Y:     []domain.Series{{Name: "count", Data: y}},
	}
}
