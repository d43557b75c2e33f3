// Package domain holds the core types shared by every pipeline stage and
// the job runtime: factor definitions, evaluation parameters, tasks, market
// points, log entries and result bundles, per the data model.
package domain

import (
	"time"

	"github.com/aristath/factorlab/internal/errs"
)

// FactorStatus is the lifecycle state of a factor definition.
type FactorStatus string

const (
	FactorStatusIdle      FactorStatus = "idle"
	FactorStatusRunning   FactorStatus = "running"
	FactorStatusSucceeded FactorStatus = "succeeded"
	FactorStatusFailed    FactorStatus = "failed"
)

// CodeType selects which of the two Factor Expression Engine dialects a
// factor's code is written in.
type CodeType string

const (
	CodeTypeFormula CodeType = "formula"
	CodeTypeProgram CodeType = "program"
)

// Factor is a user-owned factor definition (F in the data model).
type Factor struct {
	FactorID      string       `json:"factor_id"`
	UserID        string       `json:"user_id"`
	FactorName    string       `json:"factor_name"`
	DisplayName   string       `json:"display_name"`
	Code          string       `json:"code"`
	CodeType      CodeType     `json:"code_type"`
	Params        Params       `json:"params"`
	Status        FactorStatus `json:"status"`
	CurrentTaskID string       `json:"current_task_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// StockPool selects the symbol universe a factor is evaluated over.
type StockPool string

const (
	PoolCSI300  StockPool = "000300"
	PoolCSI500  StockPool = "000905"
	PoolCSI1000 StockPool = "000852"
	PoolAllA    StockPool = "000985" // all A-shares, no index filter
)

// FactorDirection controls whether group 1 is the highest or lowest factor
// bucket.
type FactorDirection string

const (
	DirectionPositive FactorDirection = "positive"
	DirectionNegative FactorDirection = "negative"
)

// ExtremeValueProcessing selects the outlier-trimming method C3 applies.
// The Chinese synonyms are accepted at the API surface and normalized to
// the canonical English form by Params.Normalize.
type ExtremeValueProcessing string

const (
	ExtremeStd    ExtremeValueProcessing = "std"
	ExtremeMedian ExtremeValueProcessing = "median"
)

// Params is the evaluation parameter set attached to every factor and task.
type Params struct {
	StartDate              string                 `json:"start_date"`
	EndDate                string                 `json:"end_date"`
	AdjustmentCycle        int                    `json:"adjustment_cycle"`
	StockPool              StockPool              `json:"stock_pool"`
	IncludeST              bool                   `json:"include_st"`
	FactorDirection        FactorDirection        `json:"factor_direction"`
	GroupNumber            int                    `json:"group_number"`
	ExtremeValueProcessing ExtremeValueProcessing `json:"extreme_value_processing"`
}

var validAdjustmentCycles = map[int]bool{1: true, 3: true, 5: true, 10: true, 20: true, 30: true}

var validStockPools = map[StockPool]bool{
	PoolCSI300: true, PoolCSI500: true, PoolCSI1000: true, PoolAllA: true,
}

// extremeValueSynonyms maps every accepted surface spelling (English and
// the Chinese synonyms the original platform also accepts) to the
// canonical enum value. Per the design notes, the user's selection of
// "std" is authoritative even though the legacy implementation sometimes
// applied a MAD-based trim under that label — FactorLab's C3 always runs
// the method the caller named.
var extremeValueSynonyms = map[string]ExtremeValueProcessing{
	"std":    ExtremeStd,
	"标准差":     ExtremeStd,
	"median": ExtremeMedian,
	"中位数":     ExtremeMedian,
}

// Normalize rewrites ExtremeValueProcessing to its canonical English form
// if it was supplied as one of the accepted synonyms. It is a no-op for
// already-canonical values and leaves unrecognized values untouched for
// Validate to reject.
func (p *Params) Normalize() {
	if canon, ok := extremeValueSynonyms[string(p.ExtremeValueProcessing)]; ok {
		p.ExtremeValueProcessing = canon
	}
}

// Validate checks every enum and range invariant from §3/§6. It does not
// parse StartDate/EndDate beyond format and ordering; callers needing a
// time.Time should use ParseDate.
func (p Params) Validate() error {
	if !validAdjustmentCycles[p.AdjustmentCycle] {
		return errs.Validation("adjustment_cycle must be one of {1,3,5,10,20,30}, got %d", p.AdjustmentCycle)
	}
	if !validStockPools[p.StockPool] {
		return errs.Validation("stock_pool must be one of {000300,000905,000852,000985}, got %q", p.StockPool)
	}
	if p.FactorDirection != DirectionPositive && p.FactorDirection != DirectionNegative {
		return errs.Validation("factor_direction must be positive or negative, got %q", p.FactorDirection)
	}
	if p.GroupNumber < 2 || p.GroupNumber > 20 {
		return errs.Validation("group_number must be in [2,20], got %d", p.GroupNumber)
	}
	if p.ExtremeValueProcessing != ExtremeStd && p.ExtremeValueProcessing != ExtremeMedian {
		return errs.Validation("extreme_value_processing must be std or median, got %q", p.ExtremeValueProcessing)
	}
	start, err := ParseDate(p.StartDate)
	if err != nil {
		return errs.Validation("start_date: %v", err)
	}
	end, err := ParseDate(p.EndDate)
	if err != nil {
		return errs.Validation("end_date: %v", err)
	}
	if start.After(end) {
		return errs.Validation("start_date %s must not be after end_date %s", p.StartDate, p.EndDate)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
