package grouping_test

import (
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMarket() []domain.MarketPoint {
	var out []domain.MarketPoint
	closes := map[string][]float64{
		"A": {10, 11, 12, 13, 14},
		"B": {20, 19, 18, 17, 16},
	}
	dates := []string{"20240101", "20240102", "20240103", "20240104", "20240105"}
	for sym, cs := range closes {
		for i, c := range cs {
			out = append(out, domain.MarketPoint{Date: dates[i], Symbol: sym, Close: c})
		}
	}
	return out
}

func TestBuildTableComputesForwardReturnAndDropsTail(t *testing.T) {
	factors := []domain.CustomFactorPoint{
		{Date: "20240101", Symbol: "A", Value: 1},
		{Date: "20240104", Symbol: "A", Value: 1},
	}
	rows := grouping.BuildTable(factors, sampleMarket(), 2)
	require.Len(t, rows, 1) // 20240104 has no day+2 in a 5-day series
	assert.Equal(t, "20240101", rows[0].Date)
	assert.InDelta(t, 12.0/10.0-1, rows[0].Return, 1e-9)
}

func TestAssignGroupsPositiveDirectionAscending(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Factor: 1},
		{Date: "d1", Symbol: "B", Factor: 2},
		{Date: "d1", Symbol: "C", Factor: 3},
		{Date: "d1", Symbol: "D", Factor: 4},
	}
	out := grouping.AssignGroups(rows, 2, domain.DirectionPositive)
	bySym := map[string]int{}
	for _, r := range out {
		bySym[r.Symbol] = r.Group
	}
	assert.Equal(t, 1, bySym["A"])
	assert.Equal(t, 1, bySym["B"])
	assert.Equal(t, 2, bySym["C"])
	assert.Equal(t, 2, bySym["D"])
}

func TestAssignGroupsNegativeDirectionInverts(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Factor: 1},
		{Date: "d1", Symbol: "B", Factor: 2},
		{Date: "d1", Symbol: "C", Factor: 3},
		{Date: "d1", Symbol: "D", Factor: 4},
	}
	out := grouping.AssignGroups(rows, 2, domain.DirectionNegative)
	bySym := map[string]int{}
	for _, r := range out {
		bySym[r.Symbol] = r.Group
	}
	assert.Equal(t, 2, bySym["A"])
	assert.Equal(t, 1, bySym["D"])
}

func TestAssignGroupsTiesGoDown(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Factor: 1},
		{Date: "d1", Symbol: "B", Factor: 1},
		{Date: "d1", Symbol: "C", Factor: 1},
		{Date: "d1", Symbol: "D", Factor: 4},
	}
	out := grouping.AssignGroups(rows, 2, domain.DirectionPositive)
	for _, r := range out {
		if r.Symbol != "D" {
			assert.Equal(t, 1, r.Group, "tied value %s should fall in the lower group", r.Symbol)
		}
	}
}

func TestBenchmarkIsEqualWeightedMean(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Return: 0.1},
		{Date: "d1", Symbol: "B", Return: 0.3},
	}
	bench := grouping.Benchmark(rows)
	assert.InDelta(t, 0.2, bench["d1"], 1e-9)
}
