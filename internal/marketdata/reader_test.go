package marketdata_test

import (
	"context"
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/marketdata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	market        []domain.MarketPoint
	customExists  bool
	customSeries  []domain.CustomFactorPoint
}

func (f *fakeStore) QueryMarket(_ context.Context, chunk marketdata.DateChunk, _ []string, _ []string) ([]domain.MarketPoint, error) {
	var out []domain.MarketPoint
	for _, p := range f.market {
		if p.Date >= chunk.Start && p.Date <= chunk.End {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) QueryBaseFactors(_ context.Context, _ marketdata.DateChunk, _ []string) ([]domain.BaseFactorPoint, error) {
	return nil, nil
}

func (f *fakeStore) CustomFactorExists(_ context.Context, _, _ string) (bool, error) {
	return f.customExists, nil
}

func (f *fakeStore) QueryCustomFactor(_ context.Context, _, _, _, _ string) ([]domain.CustomFactorPoint, error) {
	return f.customSeries, nil
}

func (f *fakeStore) SymbolUniverse(_ context.Context) ([]domain.MarketPoint, error) {
	return f.market, nil
}

type fakeComputer struct {
	points []domain.CustomFactorPoint
	err    error
}

func (f *fakeComputer) Compute(_ context.Context, _ domain.Factor, _ []domain.MarketPoint, _ []domain.BaseFactorPoint) ([]domain.CustomFactorPoint, error) {
	return f.points, f.err
}

func TestLoadMarketFiltersByPoolAndST(t *testing.T) {
	fs := &fakeStore{market: []domain.MarketPoint{
		{Date: "20240102", Symbol: "A", Name: "Alpha Co", IndexComponent: domain.IndexComponentHS300},
		{Date: "20240102", Symbol: "B", Name: "ST Beta", IndexComponent: domain.IndexComponentHS300},
		{Date: "20240102", Symbol: "C", Name: "Gamma Co", IndexComponent: domain.IndexComponentCS500},
	}}
	r := marketdata.NewReader(fs, &fakeComputer{}, 4, zerolog.Nop())

	rows, err := r.LoadMarket(context.Background(), "20240102", "20240102", domain.PoolCSI300, false, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Symbol)
}

func TestLoadMarketAllAAppliesNoIndexFilter(t *testing.T) {
	fs := &fakeStore{market: []domain.MarketPoint{
		{Date: "20240102", Symbol: "A", IndexComponent: domain.IndexComponentHS300},
		{Date: "20240102", Symbol: "B", IndexComponent: domain.IndexComponentNone},
	}}
	r := marketdata.NewReader(fs, &fakeComputer{}, 4, zerolog.Nop())

	rows, err := r.LoadMarket(context.Background(), "20240102", "20240102", domain.PoolAllA, true, nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLoadCustomFactorFastPath(t *testing.T) {
	want := []domain.CustomFactorPoint{{Date: "20240102", Symbol: "A", Value: 1.5}}
	fs := &fakeStore{customExists: true, customSeries: want}
	r := marketdata.NewReader(fs, &fakeComputer{}, 4, zerolog.Nop())

	def := domain.Factor{UserID: "u1", FactorName: "myfactor", Params: domain.Params{StockPool: domain.PoolAllA}}
	got, err := r.LoadCustomFactor(context.Background(), def, "20240102", "20240105")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadCustomFactorFallsBackToComputer(t *testing.T) {
	want := []domain.CustomFactorPoint{{Date: "20240102", Symbol: "A", Value: 2.0}}
	fs := &fakeStore{customExists: false}
	comp := &fakeComputer{points: want}
	r := marketdata.NewReader(fs, comp, 4, zerolog.Nop())

	def := domain.Factor{UserID: "u1", FactorName: "myfactor", Params: domain.Params{StockPool: domain.PoolAllA}}
	got, err := r.LoadCustomFactor(context.Background(), def, "20240102", "20240105")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadCustomFactorComputeFailureReturnsNoDataNotError(t *testing.T) {
	fs := &fakeStore{customExists: false}
	comp := &fakeComputer{err: assertErr{}}
	r := marketdata.NewReader(fs, comp, 4, zerolog.Nop())

	def := domain.Factor{UserID: "u1", FactorName: "myfactor", Params: domain.Params{StockPool: domain.PoolAllA}}
	got, err := r.LoadCustomFactor(context.Background(), def, "20240102", "20240105")
	require.NoError(t, err)
	assert.Nil(t, got)
}

type assertErr struct{}

func (assertErr) Error() string { return "compute exploded" }
