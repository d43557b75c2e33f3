package pipeline_test

import (
	"context"
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	market  []domain.MarketPoint
	factors []domain.CustomFactorPoint
	err     error
}

func (f *fakeReader) LoadMarket(context.Context, string, string, domain.StockPool, bool, []string, []string) ([]domain.MarketPoint, error) {
	return f.market, f.err
}

func (f *fakeReader) LoadCustomFactor(context.Context, domain.Factor, string, string) ([]domain.CustomFactorPoint, error) {
	return f.factors, nil
}

func syntheticUniverse() ([]domain.MarketPoint, []domain.CustomFactorPoint) {
	dates := []string{"20240102", "20240103", "20240104", "20240105"}
	closes := map[string][]float64{
		"A": {10, 11, 12, 13},
		"B": {10, 10, 10, 10},
		"C": {10, 9, 8, 7},
	}
	var market []domain.MarketPoint
	var factors []domain.CustomFactorPoint
	for i, d := range dates {
		for sym, series := range closes {
			market = append(market, domain.MarketPoint{Date: d, Symbol: sym, Close: series[i]})
			factors = append(factors, domain.CustomFactorPoint{Date: d, Symbol: sym, Value: series[i]})
		}
	}
	return market, factors
}

func TestRunProducesGroupStatsForEachGroup(t *testing.T) {
	market, factors := syntheticUniverse()
	reader := &fakeReader{market: market, factors: factors}
	p := pipeline.New(reader)

	params := domain.Params{
		StartDate: "2024-01-02", EndDate: "2024-01-05",
		AdjustmentCycle: 1, StockPool: domain.PoolAllA, IncludeST: true,
		FactorDirection: domain.DirectionPositive, GroupNumber: 2,
		ExtremeValueProcessing: domain.ExtremeStd,
	}

	var stages []int
	bundle, err := p.Run(context.Background(), domain.Factor{FactorName: "close"}, params, func(stage int, _ string) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.GroupReturnAnalysis)
	assert.Equal(t, []int{
		domain.StageMarketDataLoaded, domain.StageFactorLoaded, domain.StagePreprocessed,
		domain.StageForwardReturns, domain.StageGrouped, domain.StageStatistics,
	}, stages)
}

func TestRunFailsWithDataAvailabilityWhenMarketEmpty(t *testing.T) {
	reader := &fakeReader{}
	p := pipeline.New(reader)

	params := domain.Params{StartDate: "2024-01-02", EndDate: "2024-01-05", AdjustmentCycle: 1, GroupNumber: 2}
	_, err := p.Run(context.Background(), domain.Factor{}, params, func(int, string) {})
	require.Error(t, err)
}
