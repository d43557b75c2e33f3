package statistics

import (
	"math"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
	"gonum.org/v1/gonum/stat"
)

const tradingDaysPerYear = 252

// GroupPerformance computes per-group performance metrics from each
// group's daily return series, the benchmark series, and (for turnover)
// the per-date membership of each group.
func GroupPerformance(rows []grouping.Row, groupReturns map[int]map[string]float64, benchmark map[string]float64, groupNumber int) []domain.GroupStat {
	membership := membershipByGroup(rows, groupNumber)

	out := make([]domain.GroupStat, 0, groupNumber)
	for g := 1; g <= groupNumber; g++ {
		dates := sortedDates(groupReturns[g])
		series := alignedSeries(dates, groupReturns[g])
		benchSeries := alignedSeries(dates, benchmark)
		excess := make([]float64, len(series))
		for i := range series {
			excess[i] = series[i] - benchSeries[i]
		}

		gs := domain.GroupStat{
			Group:                  g,
			CumulativeReturn:       cumulativeReturn(series),
			AnnualizedReturn:       annualizedReturn(series),
			AnnualizedVolatility:   annualizedVol(series),
			MaximumDrawdown:        maxDrawdown(series),
			MonthlyWinRate:         monthlyWinRate(dates, series),
			Turnover:               turnover(dates, membership[g]),
			TrackingError:          trackingError(excess),
			ExcessCumulativeReturn: cumulativeReturn(excess),
			ExcessAnnualizedReturn: annualizedReturn(excess),
		}
		if gs.AnnualizedVolatility != 0 {
			gs.SharpeRatio = gs.AnnualizedReturn / gs.AnnualizedVolatility
		}
		if gs.TrackingError != 0 {
			gs.InformationRatio = gs.ExcessAnnualizedReturn / gs.TrackingError
		}
		out = append(out, gs)
	}
	return out
}

func membershipByGroup(rows []grouping.Row, groupNumber int) map[int]map[string]map[string]bool {
	out := make(map[int]map[string]map[string]bool, groupNumber)
	for g := 1; g <= groupNumber; g++ {
		out[g] = make(map[string]map[string]bool)
	}
	for _, r := range rows {
		if r.Group < 1 || r.Group > groupNumber {
			continue
		}
		if out[r.Group][r.Date] == nil {
			out[r.Group][r.Date] = make(map[string]bool)
		}
		out[r.Group][r.Date][r.Symbol] = true
	}
	return out
}

func sortedDates(series map[string]float64) []string {
	dates := make([]string, 0, len(series))
	for d := range series {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func alignedSeries(dates []string, series map[string]float64) []float64 {
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = series[d]
	}
	return out
}

func cumulativeReturn(series []float64) float64 {
	wealth := 1.0
	for _, r := range series {
		wealth *= 1 + r
	}
	return wealth - 1
}

func annualizedReturn(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	cum := cumulativeReturn(series)
	years := float64(len(series)) / tradingDaysPerYear
	if years == 0 {
		return 0
	}
	return math.Pow(1+cum, 1/years) - 1
}

func annualizedVol(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	return stat.StdDev(series, nil) * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdown(series []float64) float64 {
	wealth := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range series {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		dd := (peak - wealth) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func monthlyWinRate(dates []string, series []float64) float64 {
	monthReturn := make(map[string]float64)
	for i, d := range dates {
		if len(d) < 6 {
			continue
		}
		month := d[:6] // YYYYMM
		monthReturn[month] = (1+monthReturn[month])*(1+series[i]) - 1
	}
	if len(monthReturn) == 0 {
		return 0
	}
	wins := 0
	for _, r := range monthReturn {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(monthReturn))
}

// turnover approximates the fraction of group membership differing from
// the previous rebalance date's membership, averaged across transitions.
func turnover(dates []string, membership map[string]map[string]bool) float64 {
	if len(dates) < 2 {
		return 0
	}
	var sum float64
	var n int
	for i := 1; i < len(dates); i++ {
		prev := membership[dates[i-1]]
		cur := membership[dates[i]]
		if len(prev) == 0 && len(cur) == 0 {
			continue
		}
		changed := 0
		for sym := range cur {
			if !prev[sym] {
				changed++
			}
		}
		for sym := range prev {
			if !cur[sym] {
				changed++
			}
		}
		denom := len(prev) + len(cur)
		if denom == 0 {
			continue
		}
		sum += float64(changed) / float64(denom)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func trackingError(excess []float64) float64 {
	return annualizedVol(excess)
}
