package statistics_test

import (
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/grouping"
	"github.com/aristath/factorlab/internal/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICSeriesPerfectPositiveCorrelation(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Factor: 1, Return: 0.1},
		{Date: "d1", Symbol: "B", Factor: 2, Return: 0.2},
		{Date: "d1", Symbol: "C", Factor: 3, Return: 0.3},
	}
	s := statistics.ICSeries(rows)
	require.Len(t, s.Values, 1)
	assert.InDelta(t, 1.0, s.Values[0], 1e-9)
}

func TestRankICToleratesNonlinearMonotoneRelationship(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Factor: 1, Return: 0.01},
		{Date: "d1", Symbol: "B", Factor: 2, Return: 0.04},
		{Date: "d1", Symbol: "C", Factor: 3, Return: 0.09},
	}
	s := statistics.RankICSeries(rows)
	require.Len(t, s.Values, 1)
	assert.InDelta(t, 1.0, s.Values[0], 1e-9)
}

func TestSummaryHandlesEmptySeries(t *testing.T) {
	summary := statistics.Summary(statistics.DateSeries{})
	assert.Equal(t, 0.0, summary.Mean)
}

func TestSummaryComputesIR(t *testing.T) {
	s := statistics.DateSeries{Dates: []string{"d1", "d2"}, Values: []float64{0.1, 0.3}}
	summary := statistics.Summary(s)
	assert.InDelta(t, 0.2, summary.Mean, 1e-9)
	assert.Equal(t, 1.0, summary.PositiveRatio)
}

func TestGroupPerformanceComputesCumulativeReturn(t *testing.T) {
	rows := []grouping.Row{
		{Date: "d1", Symbol: "A", Factor: 1, Return: 0.1, Group: 1},
		{Date: "d2", Symbol: "A", Factor: 1, Return: 0.1, Group: 1},
	}
	groupReturns := grouping.GroupReturns(rows, 1)
	benchmark := grouping.Benchmark(rows)
	groups := statistics.GroupPerformance(rows, groupReturns, benchmark, 1)
	require.Len(t, groups, 1)
	assert.InDelta(t, 1.1*1.1-1, groups[0].CumulativeReturn, 1e-9)
}

func TestTopFactorSnapshotTakesMostRecentDateTop20(t *testing.T) {
	var points []domain.CustomFactorPoint
	for i := 0; i < 25; i++ {
		points = append(points, domain.CustomFactorPoint{Date: "20240102", Symbol: symbolN(i), Value: float64(i)})
	}
	points = append(points, domain.CustomFactorPoint{Date: "20240101", Symbol: "OLD", Value: 999})

	rows := statistics.TopFactorSnapshot(points, nil)
	require.Len(t, rows, 20)
	assert.Equal(t, symbolN(24), rows[0].Symbol)
	assert.Equal(t, 1, rows[0].Rank)
}

func symbolN(i int) string {
	return string(rune('A' + i%26))
}
