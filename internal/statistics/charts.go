package statistics

import (
	"sort"
	"strconv"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
)

// SeriesChart renders a single named y-series against a shared date x-axis.
func SeriesChart(title, seriesName string, s DateSeries) domain.ChartPayload {
	x := make([]any, len(s.Dates))
	for i, d := range s.Dates {
		x[i] = d
	}
	y := make([]any, len(s.Values))
	for i, v := range s.Values {
		y[i] = v
	}
	return domain.ChartPayload{
		Title: title,
		X:     []domain.Series{{Name: "date", Data: x}},
		Y:     []domain.Series{{Name: seriesName, Data: y}},
	}
}

// LagsChart renders a decay/autocorrelation series against lag index 1..L.
func LagsChart(title string, values []float64) domain.ChartPayload {
	x := make([]any, len(values))
	y := make([]any, len(values))
	for i, v := range values {
		x[i] = i + 1
		y[i] = v
	}
	return domain.ChartPayload{
		Title: title,
		X:     []domain.Series{{Name: "lag", Data: x}},
		Y:     []domain.Series{{Name: "value", Data: y}},
	}
}

// CumulativeReturnChart renders one cumulative-return curve per group.
func CumulativeReturnChart(title string, groupReturns map[int]map[string]float64, groupNumber int) domain.ChartPayload {
	dateSet := map[string]bool{}
	for g := 1; g <= groupNumber; g++ {
		for d := range groupReturns[g] {
			dateSet[d] = true
		}
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	x := make([]any, len(dates))
	for i, d := range dates {
		x[i] = d
	}

	payload := domain.ChartPayload{Title: title, X: []domain.Series{{Name: "date", Data: x}}}
	for g := 1; g <= groupNumber; g++ {
		wealth := 1.0
		data := make([]any, len(dates))
		for i, d := range dates {
			wealth *= 1 + groupReturns[g][d]
			data[i] = wealth - 1
		}
		payload.Y = append(payload.Y, domain.Series{Name: groupName(g), Data: data})
	}
	return payload
}

// ExcessReturnChart renders one cumulative-excess-return curve (group minus
// benchmark) per group.
func ExcessReturnChart(title string, groupReturns map[int]map[string]float64, benchmark map[string]float64, groupNumber int) domain.ChartPayload {
	excess := make(map[int]map[string]float64, groupNumber)
	for g := 1; g <= groupNumber; g++ {
		excess[g] = make(map[string]float64, len(groupReturns[g]))
		for d, r := range groupReturns[g] {
			excess[g][d] = r - benchmark[d]
		}
	}
	return CumulativeReturnChart(title, excess, groupNumber)
}

// SimpleReturnChart renders the single conventionally-best group's
// cumulative return curve (group 1, per the direction-aware numbering).
func SimpleReturnChart(title string, groupReturns map[int]map[string]float64) domain.ChartPayload {
	return CumulativeReturnChart(title, map[int]map[string]float64{1: groupReturns[1]}, 1)
}

func groupName(g int) string {
	return "group_" + strconv.Itoa(g)
}

// TopFactorSnapshot returns the top-20 symbols by factor value for the most
// recent date in factorPoints, enriched with display names from the most
// recent market snapshot.
func TopFactorSnapshot(factorPoints []domain.CustomFactorPoint, market []domain.MarketPoint) []domain.TopFactorRow {
	if len(factorPoints) == 0 {
		return nil
	}
	lastDate := factorPoints[0].Date
	for _, p := range factorPoints {
		if p.Date > lastDate {
			lastDate = p.Date
		}
	}

	names := make(map[string]string)
	for _, p := range market {
		names[p.Symbol] = p.Name
	}

	var rows []domain.CustomFactorPoint
	for _, p := range factorPoints {
		if p.Date == lastDate {
			rows = append(rows, p)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })
	if len(rows) > 20 {
		rows = rows[:20]
	}

	out := make([]domain.TopFactorRow, len(rows))
	for i, r := range rows {
		out[i] = domain.TopFactorRow{
			Symbol:      r.Symbol,
			DisplayName: names[r.Symbol],
			Value:       r.Value,
			Rank:        i + 1,
		}
	}
	return out
}

// OneGroupData and FactorDataAnalysis render the generic stats-table
// fields of the bundle from the per-group performance rows — no separate
// statistics beyond GroupPerformance are defined for them in §4.8.
func OneGroupData(groups []domain.GroupStat) []map[string]any {
	out := make([]map[string]any, len(groups))
	for i, g := range groups {
		out[i] = map[string]any{
			"group":                    g.Group,
			"cumulative_return":        g.CumulativeReturn,
			"annualized_return":        g.AnnualizedReturn,
			"sharpe_ratio":             g.SharpeRatio,
			"maximum_drawdown":         g.MaximumDrawdown,
		}
	}
	return out
}

func FactorDataAnalysis(rows []grouping.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any{
			"date":   r.Date,
			"symbol": r.Symbol,
			"factor": r.Factor,
			"return": r.Return,
			"group":  r.Group,
		}
	}
	return out
}
