package marketdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/store"
)

// SQLiteStore implements Store over the stock_market/factor_base
// collections and one factor_<factor_name>_<user_id> collection per
// persisted custom factor.
type SQLiteStore struct {
	db         *store.DB
	market     *store.Collection
	baseFactor *store.Collection
}

// NewSQLiteStore opens (creating if necessary) the stock_market and
// factor_base collections on db.
func NewSQLiteStore(db *store.DB) (*SQLiteStore, error) {
	market, err := store.NewCollection(db, "stock_market", []store.IndexedColumn{
		{Name: "key", Type: "TEXT"},
		{Name: "date", Type: "TEXT"},
		{Name: "symbol", Type: "TEXT"},
		{Name: "index_component", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}

	baseFactor, err := store.NewCollection(db, "factor_base", []store.IndexedColumn{
		{Name: "key", Type: "TEXT"},
		{Name: "date", Type: "TEXT"},
		{Name: "symbol", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, market: market, baseFactor: baseFactor}, nil
}

func marketKey(date, symbol string) string { return date + ":" + symbol }

// PutMarket upserts one market point. Used by ingestion (out of scope) and
// by tests to seed data.
func (s *SQLiteStore) PutMarket(p domain.MarketPoint) error {
	key := marketKey(p.Date, p.Symbol)
	return s.market.Put([]any{key, p.Date, p.Symbol, string(p.IndexComponent)}, p)
}

// PutBaseFactor upserts one base-factor point.
func (s *SQLiteStore) PutBaseFactor(p domain.BaseFactorPoint) error {
	key := marketKey(p.Date, p.Symbol)
	return s.baseFactor.Put([]any{key, p.Date, p.Symbol}, p)
}

// QueryMarket implements Store.
func (s *SQLiteStore) QueryMarket(_ context.Context, chunk DateChunk, symbols []string, _ []string) ([]domain.MarketPoint, error) {
	where := "WHERE date >= ? AND date <= ?"
	args := []any{chunk.Start, chunk.End}
	if len(symbols) > 0 {
		placeholders := make([]string, len(symbols))
		for i, sym := range symbols {
			placeholders[i] = "?"
			args = append(args, sym)
		}
		where += fmt.Sprintf(" AND symbol IN (%s)", joinPlaceholders(placeholders))
	}

	bodies, err := s.market.Query(where, args...)
	if err != nil {
		return nil, err
	}
	return unmarshalAll[domain.MarketPoint](bodies)
}

// QueryBaseFactors implements Store. names is accepted for interface parity
// with the spec's contract but base-factor rows carry a fixed column set,
// so it is not used to prune columns here.
func (s *SQLiteStore) QueryBaseFactors(_ context.Context, chunk DateChunk, _ []string) ([]domain.BaseFactorPoint, error) {
	bodies, err := s.baseFactor.Query("WHERE date >= ? AND date <= ?", chunk.Start, chunk.End)
	if err != nil {
		return nil, err
	}
	return unmarshalAll[domain.BaseFactorPoint](bodies)
}

// SymbolUniverse returns the most recent market point per symbol, used to
// resolve pool/ST filters against the universe for on-demand factor
// computation and for top-N display-name enrichment.
func (s *SQLiteStore) SymbolUniverse(_ context.Context) ([]domain.MarketPoint, error) {
	bodies, err := s.market.Query("ORDER BY date DESC")
	if err != nil {
		return nil, err
	}
	all, err := unmarshalAll[domain.MarketPoint](bodies)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(all))
	out := make([]domain.MarketPoint, 0, len(all))
	for _, p := range all {
		if seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		out = append(out, p)
	}
	return out, nil
}

func customFactorCollectionName(factorName, userID string) string {
	return "factor_" + factorName + "_" + userID
}

// CustomFactorExists reports whether factor_<factor_name>_<user_id> has
// been materialized as a persisted table.
func (s *SQLiteStore) CustomFactorExists(_ context.Context, userID, factorName string) (bool, error) {
	name := customFactorCollectionName(factorName, userID)
	var tableName string
	row := s.db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", name)
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// QueryCustomFactor reads the persisted custom-factor table directly.
func (s *SQLiteStore) QueryCustomFactor(_ context.Context, userID, factorName, start, end string) ([]domain.CustomFactorPoint, error) {
	name := customFactorCollectionName(factorName, userID)
	coll, err := store.NewCollection(s.db, name, []store.IndexedColumn{
		{Name: "key", Type: "TEXT"},
		{Name: "date", Type: "TEXT"},
		{Name: "symbol", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}

	bodies, err := coll.Query("WHERE date >= ? AND date <= ?", start, end)
	if err != nil {
		return nil, err
	}
	return unmarshalAll[domain.CustomFactorPoint](bodies)
}

// PutCustomFactor upserts a custom-factor value row into its persisted
// table, creating the table on first use.
func (s *SQLiteStore) PutCustomFactor(userID, factorName string, p domain.CustomFactorPoint) error {
	name := customFactorCollectionName(factorName, userID)
	coll, err := store.NewCollection(s.db, name, []store.IndexedColumn{
		{Name: "key", Type: "TEXT"},
		{Name: "date", Type: "TEXT"},
		{Name: "symbol", Type: "TEXT"},
	})
	if err != nil {
		return err
	}
	key := marketKey(p.Date, p.Symbol)
	return coll.Put([]any{key, p.Date, p.Symbol}, p)
}

func unmarshalAll[T any](bodies []string) ([]T, error) {
	out := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("marketdata: unmarshal row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
