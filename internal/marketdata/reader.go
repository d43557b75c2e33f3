package marketdata

import (
	"context"
	"sort"
	"sync"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence boundary C1 reads through. Implementations
// back onto the document-store collections named in §6 (stock_market,
// factor_base, factor_<name>_<user_id>).
type Store interface {
	QueryMarket(ctx context.Context, chunk DateChunk, symbols []string, fields []string) ([]domain.MarketPoint, error)
	QueryBaseFactors(ctx context.Context, chunk DateChunk, names []string) ([]domain.BaseFactorPoint, error)
	CustomFactorExists(ctx context.Context, userID, factorName string) (bool, error)
	QueryCustomFactor(ctx context.Context, userID, factorName, start, end string) ([]domain.CustomFactorPoint, error)
	SymbolUniverse(ctx context.Context) ([]domain.MarketPoint, error)
}

// FactorComputer is the C2 boundary: evaluating a factor's code against
// loaded market/base-factor data to produce a value series. C1 depends on
// this narrow interface rather than the formula package directly, so the
// two components compose without a circular import.
type FactorComputer interface {
	Compute(ctx context.Context, def domain.Factor, market []domain.MarketPoint, base []domain.BaseFactorPoint) ([]domain.CustomFactorPoint, error)
}

// Reader is the bounded-parallel market/factor data reader (C1).
type Reader struct {
	store       Store
	computer    FactorComputer
	poolSize    int
	log         zerolog.Logger
	chunkMonths int
}

// NewReader builds a Reader with the given bounded worker-pool size
// (defaulting to 8, mirroring the original's ThreadPoolExecutor(max_workers=8)).
func NewReader(s Store, computer FactorComputer, poolSize int, log zerolog.Logger) *Reader {
	if poolSize <= 0 {
		poolSize = 8
	}
	return &Reader{
		store:       s,
		computer:    computer,
		poolSize:    poolSize,
		log:         log.With().Str("component", "marketdata").Logger(),
		chunkMonths: defaultChunkMonths,
	}
}

// LoadMarket implements load_market(start, end, pool, include_st, symbols?, fields?).
func (r *Reader) LoadMarket(ctx context.Context, start, end string, pool domain.StockPool, includeST bool, symbols, fields []string) ([]domain.MarketPoint, error) {
	chunks, err := ChunkDateRange(start, end, r.chunkMonths)
	if err != nil {
		return nil, errs.Validation("invalid date range %s..%s: %v", start, end, err)
	}

	rows, err := readChunksParallel(ctx, r.poolSize, chunks, func(ctx context.Context, c DateChunk) ([]domain.MarketPoint, error) {
		return r.store.QueryMarket(ctx, c, symbols, fields)
	})
	if err != nil {
		return nil, err
	}

	filtered := filterMarketRows(rows, pool, includeST)
	if len(filtered) == 0 {
		r.log.Warn().Str("start", start).Str("end", end).Str("pool", string(pool)).Msg("load_market: empty result after filtering")
	}
	return filtered, nil
}

// filterMarketRows applies the pool index-component filter and the
// include_st=false ST-name exclusion from §4.1.
func filterMarketRows(rows []domain.MarketPoint, pool domain.StockPool, includeST bool) []domain.MarketPoint {
	requiredComponent, hasFilter := domain.FilterForPool(pool)

	out := make([]domain.MarketPoint, 0, len(rows))
	for _, p := range rows {
		if hasFilter && p.IndexComponent != requiredComponent {
			continue
		}
		if !includeST && matchesST(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LoadBaseFactors implements load_base_factors(start, end, names, pool?, market_type).
func (r *Reader) LoadBaseFactors(ctx context.Context, start, end string, names []string) ([]domain.BaseFactorPoint, error) {
	chunks, err := ChunkDateRange(start, end, r.chunkMonths)
	if err != nil {
		return nil, errs.Validation("invalid date range %s..%s: %v", start, end, err)
	}

	rows, err := readChunksParallel(ctx, r.poolSize, chunks, func(ctx context.Context, c DateChunk) ([]domain.BaseFactorPoint, error) {
		return r.store.QueryBaseFactors(ctx, c, names)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		r.log.Warn().Str("start", start).Str("end", end).Msg("load_base_factors: empty result")
	}
	return rows, nil
}

// LoadCustomFactor implements load_custom_factor(user_id, factor_name, start, end).
// It takes the persisted-table fast path when factor_<factor_name>_<user_id>
// exists, and otherwise loads market and base-factor data for the range and
// invokes C2 on the given definition. On compute failure it logs and returns "no data" rather than
// an error, per §4.1.
func (r *Reader) LoadCustomFactor(ctx context.Context, def domain.Factor, start, end string) ([]domain.CustomFactorPoint, error) {
	exists, err := r.store.CustomFactorExists(ctx, def.UserID, def.FactorName)
	if err != nil {
		return nil, errs.Transport(err)
	}
	if exists {
		points, err := r.store.QueryCustomFactor(ctx, def.UserID, def.FactorName, start, end)
		if err != nil {
			return nil, errs.Transport(err)
		}
		return points, nil
	}

	market, err := r.LoadMarket(ctx, start, end, def.Params.StockPool, def.Params.IncludeST, nil, nil)
	if err != nil {
		return nil, err
	}
	base, err := r.LoadBaseFactors(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}

	points, err := r.computer.Compute(ctx, def, market, base)
	if err != nil {
		r.log.Error().Err(err).Str("factor_name", def.FactorName).Str("user_id", def.UserID).Msg("on-demand factor compute failed")
		return nil, nil
	}
	return points, nil
}

// readChunksParallel dispatches one readFn call per chunk on a bounded
// worker pool (errgroup.SetLimit, generalizing the original thread-pool-of-8
// pattern), then concatenates results. Per §4.1, C1 returns unordered
// chunks; consumers needing order must sort explicitly.
func readChunksParallel[T any](ctx context.Context, poolSize int, chunks []DateChunk, readFn func(context.Context, DateChunk) ([]T, error)) ([]T, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)

	var mu sync.Mutex
	var all []T

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			rows, err := readFn(gctx, chunk)
			if err != nil {
				return errs.Transport(err)
			}
			mu.Lock()
			all = append(all, rows...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// SortByDateSymbol sorts rows by (date, symbol) for callers that require a
// global order; C1 itself makes no such guarantee.
func SortByDateSymbol(rows []domain.MarketPoint) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}
