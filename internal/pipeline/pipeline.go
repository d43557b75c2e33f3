// Package pipeline orchestrates one task's full evaluation run end to end:
// loading market and factor series (C1/C2), preprocessing (C3), forward-
// return grouping (C4), statistics (C5), with a stage-transition log entry
// emitted at each step via the log buffer (C7). The job runtime (C6) calls
// Run once per admitted task and owns the surrounding concurrency and
// persistence.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/aristath/factorlab/internal/grouping"
	"github.com/aristath/factorlab/internal/preprocessing"
	"github.com/aristath/factorlab/internal/statistics"
)

// MarketReader is the C1 boundary the pipeline reads through.
type MarketReader interface {
	LoadMarket(ctx context.Context, start, end string, pool domain.StockPool, includeST bool, symbols, fields []string) ([]domain.MarketPoint, error)
	LoadCustomFactor(ctx context.Context, def domain.Factor, start, end string) ([]domain.CustomFactorPoint, error)
}

// StageReporter receives one call per stage transition, letting the caller
// advance the task record and emit a log entry without this package
// depending on the task store or log buffer directly.
type StageReporter func(stage int, message string)

// Pipeline wires C1 through C5 for a single factor evaluation run.
type Pipeline struct {
	reader MarketReader
}

// New builds a Pipeline over the given C1 reader.
func New(reader MarketReader) *Pipeline {
	return &Pipeline{reader: reader}
}

// Run executes every stage for one factor definition under its task
// parameters, reporting each stage transition through report, and returns
// the statistics-owned fields of the result bundle. TaskID is left for the
// caller to set at persistence time.
func (p *Pipeline) Run(ctx context.Context, def domain.Factor, params domain.Params, report StageReporter) (domain.ResultBundle, error) {
	// Params dates are YYYY-MM-DD; the C1 reader takes YYYYMMDD.
	start := strings.ReplaceAll(params.StartDate, "-", "")
	end := strings.ReplaceAll(params.EndDate, "-", "")

	report(domain.StageMarketDataLoaded, "loading market data")
	market, err := p.reader.LoadMarket(ctx, start, end, params.StockPool, params.IncludeST, nil, nil)
	if err != nil {
		return domain.ResultBundle{}, err
	}
	if len(market) == 0 {
		return domain.ResultBundle{}, errs.DataAvailability("no market data for pool %s in [%s,%s]", params.StockPool, params.StartDate, params.EndDate)
	}

	report(domain.StageFactorLoaded, "loading factor series")
	factorPoints, err := p.reader.LoadCustomFactor(ctx, def, start, end)
	if err != nil {
		return domain.ResultBundle{}, err
	}
	if len(factorPoints) == 0 {
		return domain.ResultBundle{}, errs.DataAvailability("factor %s produced no values in [%s,%s]", def.FactorName, params.StartDate, params.EndDate)
	}

	report(domain.StagePreprocessed, fmt.Sprintf("preprocessing %d factor points", len(factorPoints)))
	cleaned := preprocessing.Clean(factorPoints, params.ExtremeValueProcessing)

	report(domain.StageForwardReturns, fmt.Sprintf("aligning forward returns at cycle %d", params.AdjustmentCycle))
	rows := grouping.BuildTable(cleaned, market, params.AdjustmentCycle)
	if len(rows) == 0 {
		return domain.ResultBundle{}, errs.DataAvailability("forward-return alignment produced no rows")
	}

	report(domain.StageGrouped, fmt.Sprintf("grouping into %d buckets", params.GroupNumber))
	rows = grouping.AssignGroups(rows, params.GroupNumber, params.FactorDirection)
	groupReturns := grouping.GroupReturns(rows, params.GroupNumber)
	benchmark := grouping.Benchmark(rows)

	report(domain.StageStatistics, "computing statistics")
	bundle := statistics.Compute(statistics.Input{
		Rows:            rows,
		GroupReturns:    groupReturns,
		Benchmark:       benchmark,
		GroupNumber:     params.GroupNumber,
		FactorPoints:    cleaned,
		Market:          market,
		AdjustmentCycle: params.AdjustmentCycle,
	})

	return bundle, nil
}
