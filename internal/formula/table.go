// Package formula implements the Factor Expression Engine (C2): a formula
// dialect (infix expressions over market columns and an operator
// vocabulary) and a program dialect (line-oriented assignments over the
// same vocabulary), both compiled to an operator tree and evaluated over
// loaded market/base-factor data. Engine implements the marketdata
// FactorComputer boundary so C1 can resolve on-demand custom factors
// without importing this package's internals.
package formula

import (
	"math"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
)

// Table is a (symbol, date) -> value grid. Missing cells read as NaN.
type Table struct {
	Symbols []string
	Dates   []string
	Values  map[string]map[string]float64
}

// NewTable builds an empty Table over the given symbol/date universe.
func NewTable(symbols, dates []string) *Table {
	t := &Table{
		Symbols: append([]string(nil), symbols...),
		Dates:   append([]string(nil), dates...),
		Values:  make(map[string]map[string]float64, len(symbols)),
	}
	for _, s := range symbols {
		t.Values[s] = make(map[string]float64, len(dates))
	}
	return t
}

// Get returns the value at (symbol, date), or NaN if absent.
func (t *Table) Get(symbol, date string) float64 {
	col, ok := t.Values[symbol]
	if !ok {
		return math.NaN()
	}
	v, ok := col[date]
	if !ok {
		return math.NaN()
	}
	return v
}

// Set stores the value at (symbol, date).
func (t *Table) Set(symbol, date string, v float64) {
	col, ok := t.Values[symbol]
	if !ok {
		col = make(map[string]float64, len(t.Dates))
		t.Values[symbol] = col
	}
	col[date] = v
}

// Clone returns a Table with the same shape, all cells NaN.
func (t *Table) Clone() *Table {
	return NewTable(t.Symbols, t.Dates)
}

// Series returns symbol's values in Dates order.
func (t *Table) Series(symbol string) []float64 {
	out := make([]float64, len(t.Dates))
	for i, d := range t.Dates {
		out[i] = t.Get(symbol, d)
	}
	return out
}

// SetSeries writes symbol's values back from a Dates-ordered slice.
func (t *Table) SetSeries(symbol string, values []float64) {
	for i, d := range t.Dates {
		if i < len(values) {
			t.Set(symbol, d, values[i])
		}
	}
}

// Cross returns all symbol values for a single date, in Symbols order.
func (t *Table) Cross(date string) []float64 {
	out := make([]float64, len(t.Symbols))
	for i, s := range t.Symbols {
		out[i] = t.Get(s, date)
	}
	return out
}

// SetCross writes one date's column back from a Symbols-ordered slice.
func (t *Table) SetCross(date string, values []float64) {
	for i, s := range t.Symbols {
		if i < len(values) {
			t.Set(s, date, values[i])
		}
	}
}

// Env is the evaluation environment: the base market columns the
// formula/program dialects can reference by name, plus the symbol/date
// universe they share.
type Env struct {
	Symbols []string
	Dates   []string
	Columns map[string]*Table
	Vars    map[string]*Table // program-dialect intermediate assignments
}

// knownColumns lists the column identifiers the dialects resolve bare.
var knownColumns = map[string]bool{
	"CLOSE": true, "OPEN": true, "HIGH": true, "LOW": true,
	"VOLUME": true, "AMOUNT": true, "TURNOVER": true, "MARKET_CAP": true,
}

// Lookup resolves a bare identifier to a Table: a program variable first,
// then a base column.
func (e *Env) Lookup(name string) (*Table, bool) {
	if e.Vars != nil {
		if t, ok := e.Vars[name]; ok {
			return t, true
		}
	}
	t, ok := e.Columns[name]
	return t, ok
}

// BuildEnv assembles an Env from loaded market and base-factor rows,
// unioning symbols and dates across both and left-filling absent cells
// with NaN.
func BuildEnv(market []domain.MarketPoint, base []domain.BaseFactorPoint) *Env {
	symbolSet := map[string]bool{}
	dateSet := map[string]bool{}
	for _, p := range market {
		symbolSet[p.Symbol] = true
		dateSet[p.Date] = true
	}
	for _, p := range base {
		symbolSet[p.Symbol] = true
		dateSet[p.Date] = true
	}
	symbols := sortedKeys(symbolSet)
	dates := sortedKeys(dateSet)

	cols := map[string]*Table{
		"CLOSE": NewTable(symbols, dates), "OPEN": NewTable(symbols, dates),
		"HIGH": NewTable(symbols, dates), "LOW": NewTable(symbols, dates),
		"VOLUME": NewTable(symbols, dates), "AMOUNT": NewTable(symbols, dates),
		"TURNOVER": NewTable(symbols, dates), "MARKET_CAP": NewTable(symbols, dates),
	}
	for _, p := range market {
		cols["CLOSE"].Set(p.Symbol, p.Date, p.Close)
		cols["OPEN"].Set(p.Symbol, p.Date, p.Open)
		cols["HIGH"].Set(p.Symbol, p.Date, p.High)
		cols["LOW"].Set(p.Symbol, p.Date, p.Low)
		cols["VOLUME"].Set(p.Symbol, p.Date, p.Volume)
		cols["AMOUNT"].Set(p.Symbol, p.Date, p.Amount)
	}
	for _, p := range base {
		cols["TURNOVER"].Set(p.Symbol, p.Date, p.Turnover)
		cols["MARKET_CAP"].Set(p.Symbol, p.Date, p.MarketCap)
		if cols["AMOUNT"].Get(p.Symbol, p.Date) == 0 {
			cols["AMOUNT"].Set(p.Symbol, p.Date, p.Amount)
		}
	}

	return &Env{Symbols: symbols, Dates: dates, Columns: cols, Vars: map[string]*Table{}}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
