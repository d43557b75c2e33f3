// Package statistics computes IC/Rank-IC, decay, autocorrelation,
// per-group performance and chart payloads from grouped, forward-return
// attributed factor data (C5).
package statistics

import (
	"math"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
	"gonum.org/v1/gonum/stat"
)

// DateSeries is a date-ordered (date, value) series.
type DateSeries struct {
	Dates  []string
	Values []float64
}

// ICSeries computes, for each date, the Pearson correlation (IC) between
// factor values and k-day forward returns across that date's surviving
// cross-section. Dates with fewer than 2 observations are skipped.
func ICSeries(rows []grouping.Row) DateSeries {
	return crossSectionalCorrelation(rows, pearson)
}

// RankICSeries computes the Spearman rank correlation (Rank-IC) per date.
func RankICSeries(rows []grouping.Row) DateSeries {
	return crossSectionalCorrelation(rows, spearman)
}

func crossSectionalCorrelation(rows []grouping.Row, corr func(x, y []float64) float64) DateSeries {
	byDate := make(map[string][]grouping.Row)
	for _, r := range rows {
		byDate[r.Date] = append(byDate[r.Date], r)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := DateSeries{}
	for _, d := range dates {
		group := byDate[d]
		if len(group) < 2 {
			continue
		}
		factors := make([]float64, len(group))
		returns := make([]float64, len(group))
		for i, r := range group {
			factors[i] = r.Factor
			returns[i] = r.Return
		}
		out.Dates = append(out.Dates, d)
		out.Values = append(out.Values, corr(factors, returns))
	}
	return out
}

func pearson(x, y []float64) float64 {
	return stat.Correlation(x, y, nil)
}

func spearman(x, y []float64) float64 {
	return stat.Correlation(rank(x), rank(y), nil)
}

// rank replaces each value with its average rank (ties share the mean of
// their tied rank positions), the standard input transform for Spearman
// correlation computed via Pearson-on-ranks.
func rank(values []float64) []float64 {
	type pair struct {
		val float64
		idx int
	}
	pairs := make([]pair, len(values))
	for i, v := range values {
		pairs[i] = pair{v, i}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].val < pairs[j].val })

	ranks := make([]float64, len(values))
	i := 0
	for i < len(pairs) {
		j := i
		for j+1 < len(pairs) && pairs[j+1].val == pairs[i].val {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for m := i; m <= j; m++ {
			ranks[pairs[m].idx] = avgRank
		}
		i = j + 1
	}
	return ranks
}

// Summary computes mean/std/IR/positive-ratio/skew/kurtosis/percentiles
// over a DateSeries (used for both IC and Rank-IC).
func Summary(s DateSeries) domain.ICSummary {
	if len(s.Values) == 0 {
		return domain.ICSummary{Percentiles: map[string]float64{}}
	}
	sorted := append([]float64(nil), s.Values...)
	sort.Float64s(sorted)

	mean := stat.Mean(s.Values, nil)
	std := stat.StdDev(s.Values, nil)
	positive := 0
	for _, v := range s.Values {
		if v > 0 {
			positive++
		}
	}
	ir := 0.0
	if std != 0 {
		ir = mean / std
	}

	percentiles := map[string]float64{
		"p10": stat.Quantile(0.10, stat.Empirical, sorted, nil),
		"p25": stat.Quantile(0.25, stat.Empirical, sorted, nil),
		"p50": stat.Quantile(0.50, stat.Empirical, sorted, nil),
		"p75": stat.Quantile(0.75, stat.Empirical, sorted, nil),
		"p90": stat.Quantile(0.90, stat.Empirical, sorted, nil),
	}

	return domain.ICSummary{
		Mean:          mean,
		Std:           std,
		IR:            ir,
		PositiveRatio: float64(positive) / float64(len(s.Values)),
		Skewness:      stat.Skew(s.Values, nil),
		Kurtosis:      stat.ExKurtosis(s.Values, nil),
		Percentiles:   percentiles,
	}
}

// Autocorrelation computes the series' own sample autocorrelation at lags
// 1..maxLag.
func Autocorrelation(s DateSeries, maxLag int) []float64 {
	n := len(s.Values)
	out := make([]float64, 0, maxLag)
	if n < 2 {
		for i := 0; i < maxLag; i++ {
			out = append(out, math.NaN())
		}
		return out
	}
	mean := stat.Mean(s.Values, nil)
	var denom float64
	for _, v := range s.Values {
		d := v - mean
		denom += d * d
	}
	for lag := 1; lag <= maxLag; lag++ {
		if lag >= n || denom == 0 {
			out = append(out, math.NaN())
			continue
		}
		var num float64
		for t := 0; t+lag < n; t++ {
			num += (s.Values[t] - mean) * (s.Values[t+lag] - mean)
		}
		out = append(out, num/denom)
	}
	return out
}
