// Package grouping implements forward-return attribution and per-date
// quantile binning of a cleaned factor series (C4).
package grouping

import (
	"math"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
)

// Row is one surviving (date, symbol) observation after the factor/
// forward-return join: a non-NaN factor value and a valid k-day forward
// return.
type Row struct {
	Date   string
	Symbol string
	Factor float64
	Return float64
	Group  int
}

// BuildTable joins factor values with each symbol's k-day forward close
// return, dropping rows with a NaN factor or no valid forward window. k is
// measured in trading days present in market, not calendar days.
func BuildTable(factorPoints []domain.CustomFactorPoint, market []domain.MarketPoint, k int) []Row {
	closesBySymbol := make(map[string][]domain.MarketPoint)
	for _, p := range market {
		closesBySymbol[p.Symbol] = append(closesBySymbol[p.Symbol], p)
	}
	for sym := range closesBySymbol {
		rows := closesBySymbol[sym]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
		closesBySymbol[sym] = rows
	}

	forwardReturn := make(map[string]map[string]float64) // symbol -> date -> k-day forward return
	for sym, rows := range closesBySymbol {
		dateIdx := make(map[string]int, len(rows))
		for i, r := range rows {
			dateIdx[r.Date] = i
		}
		rets := make(map[string]float64, len(rows))
		for i, r := range rows {
			j := i + k
			if j >= len(rows) || r.Close == 0 {
				continue
			}
			rets[r.Date] = rows[j].Close/r.Close - 1
		}
		forwardReturn[sym] = rets
	}

	out := make([]Row, 0, len(factorPoints))
	for _, fp := range factorPoints {
		if math.IsNaN(fp.Value) {
			continue
		}
		rets, ok := forwardReturn[fp.Symbol]
		if !ok {
			continue
		}
		ret, ok := rets[fp.Date]
		if !ok {
			continue
		}
		out = append(out, Row{Date: fp.Date, Symbol: fp.Symbol, Factor: fp.Value, Return: ret})
	}
	return out
}

// AssignGroups partitions rows into groupNumber quantile buckets per date by
// ascending factor value, with ties assigned to the lower-numbered group,
// then inverts numbering when direction is negative so group 1 is always
// the "theoretically best" side. Mutates and returns rows.
func AssignGroups(rows []Row, groupNumber int, direction domain.FactorDirection) []Row {
	byDate := make(map[string][]int)
	for i, r := range rows {
		byDate[r.Date] = append(byDate[r.Date], i)
	}

	for _, idxs := range byDate {
		sort.SliceStable(idxs, func(a, b int) bool { return rows[idxs[a]].Factor < rows[idxs[b]].Factor })
		n := len(idxs)
		groups := make([]int, n)
		for rank, idx := range idxs {
			g := rank*groupNumber/n + 1
			if g > groupNumber {
				g = groupNumber
			}
			groups[rank] = g
		}
		// Ties go down: a run of equal factor values must not span a group
		// boundary. Since idxs is stable-sorted ascending, pull any tied
		// successor back to its predecessor's (lower or equal) group.
		for rank := 1; rank < n; rank++ {
			if rows[idxs[rank]].Factor == rows[idxs[rank-1]].Factor && groups[rank] != groups[rank-1] {
				groups[rank] = groups[rank-1]
			}
		}
		for rank, idx := range idxs {
			g := groups[rank]
			if direction == domain.DirectionNegative {
				g = groupNumber + 1 - g
			}
			rows[idx].Group = g
		}
	}
	return rows
}

// Benchmark returns, for each date, the equal-weighted mean forward return
// across all surviving symbols that date.
func Benchmark(rows []Row) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range rows {
		sums[r.Date] += r.Return
		counts[r.Date]++
	}
	out := make(map[string]float64, len(sums))
	for date, sum := range sums {
		out[date] = sum / float64(counts[date])
	}
	return out
}

// GroupReturns returns, for each group and date, the mean forward return of
// its members — the per-group daily return series C5 builds performance
// metrics and cumulative-return charts from.
func GroupReturns(rows []Row, groupNumber int) map[int]map[string]float64 {
	sums := make(map[int]map[string]float64, groupNumber)
	counts := make(map[int]map[string]int, groupNumber)
	for g := 1; g <= groupNumber; g++ {
		sums[g] = make(map[string]float64)
		counts[g] = make(map[string]int)
	}
	for _, r := range rows {
		if r.Group < 1 || r.Group > groupNumber {
			continue
		}
		sums[r.Group][r.Date] += r.Return
		counts[r.Group][r.Date]++
	}
	out := make(map[int]map[string]float64, groupNumber)
	for g := 1; g <= groupNumber; g++ {
		out[g] = make(map[string]float64, len(sums[g]))
		for date, sum := range sums[g] {
			out[g][date] = sum / float64(counts[g][date])
		}
	}
	return out
}
