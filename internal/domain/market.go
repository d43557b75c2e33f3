package domain

// IndexComponent codes the membership bitmask carried on a MarketPoint.
type IndexComponent string

const (
	IndexComponentHS300 IndexComponent = "100"
	IndexComponentCS500 IndexComponent = "010"
	IndexComponentCS1000 IndexComponent = "001"
	IndexComponentNone  IndexComponent = "000"
)

// poolFilter maps a StockPool to the IndexComponent its rows must carry.
// PoolAllA has no entry: it applies no index filter.
var poolFilter = map[StockPool]IndexComponent{
	PoolCSI300:  IndexComponentHS300,
	PoolCSI500:  IndexComponentCS500,
	PoolCSI1000: IndexComponentCS1000,
}

// FilterForPool returns the IndexComponent a pool requires and whether any
// filter applies at all (false for PoolAllA, per "000985 ⇒ no index filter").
func FilterForPool(pool StockPool) (IndexComponent, bool) {
	ic, ok := poolFilter[pool]
	return ic, ok
}

// MarketPoint is one (date, symbol) K-line row.
type MarketPoint struct {
	Date           string         `json:"date"` // YYYYMMDD
	Symbol         string         `json:"symbol"`
	Name           string         `json:"name"`
	Open           float64        `json:"open"`
	High           float64        `json:"high"`
	Low            float64        `json:"low"`
	Close          float64        `json:"close"`
	Volume         float64        `json:"volume"`
	Amount         float64        `json:"amount"`
	PreClose       float64        `json:"pre_close"`
	LimitUp        float64        `json:"limit_up"`
	LimitDown      float64        `json:"limit_down"`
	IndexComponent IndexComponent `json:"index_component"`
}

// BaseFactorPoint is one (date, symbol) row of auxiliary columns used by
// base-factor formulas (turnover, market cap, amount, etc).
type BaseFactorPoint struct {
	Date       string  `json:"date"`
	Symbol     string  `json:"symbol"`
	Turnover   float64 `json:"turnover"`
	MarketCap  float64 `json:"market_cap"`
	Amount     float64 `json:"amount"`
}

// CustomFactorPoint is one (date, symbol, value) row of a persisted
// custom-factor series (factor_<factor_name>_<user_id>).
type CustomFactorPoint struct {
	Date   string  `json:"date"`
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}
