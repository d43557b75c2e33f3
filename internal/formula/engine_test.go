package formula_test

import (
	"context"
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/aristath/factorlab/internal/formula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMarket() []domain.MarketPoint {
	return []domain.MarketPoint{
		{Date: "20240101", Symbol: "A", Close: 10, Open: 9},
		{Date: "20240101", Symbol: "B", Close: 5, Open: 5},
		{Date: "20240102", Symbol: "A", Close: 11, Open: 10},
		{Date: "20240102", Symbol: "B", Close: 6, Open: 5},
	}
}

func TestValidateFormulaRejectsUnknownIdentifier(t *testing.T) {
	err := formula.Validate("NOT_A_COLUMN + 1", domain.CodeTypeFormula)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)
}

func TestValidateFormulaRejectsBadArity(t *testing.T) {
	err := formula.Validate("TS_MEAN(CLOSE)", domain.CodeTypeFormula)
	require.Error(t, err)
}

func TestValidateFormulaAcceptsKnownVocabulary(t *testing.T) {
	err := formula.Validate("RANK(CLOSE / OPEN - 1)", domain.CodeTypeFormula)
	require.NoError(t, err)
}

func TestValidateProgramRejectsForwardReference(t *testing.T) {
	err := formula.Validate("X = Y\nY = CLOSE", domain.CodeTypeProgram)
	require.Error(t, err)
}

func TestValidateProgramAcceptsSequentialAssignments(t *testing.T) {
	err := formula.Validate("RET = CLOSE / OPEN - 1\nRANK(RET)", domain.CodeTypeProgram)
	require.NoError(t, err)
}

func TestEngineComputeFormula(t *testing.T) {
	e := formula.NewEngine()
	def := domain.Factor{
		UserID:     "u1",
		FactorName: "momentum",
		Code:       "CLOSE / OPEN - 1",
		CodeType:   domain.CodeTypeFormula,
	}
	points, err := e.Compute(context.Background(), def, sampleMarket(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	byKey := map[string]float64{}
	for _, p := range points {
		byKey[p.Date+":"+p.Symbol] = p.Value
	}
	assert.InDelta(t, 10.0/9.0-1, byKey["20240101:A"], 1e-9)
}

func TestEngineComputeProgram(t *testing.T) {
	e := formula.NewEngine()
	def := domain.Factor{
		UserID:     "u1",
		FactorName: "ranked_momentum",
		Code:       "RET = CLOSE / OPEN - 1\nRANK(RET)",
		CodeType:   domain.CodeTypeProgram,
	}
	points, err := e.Compute(context.Background(), def, sampleMarket(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, points)
}

func TestEngineComputeInvalidCodeReturnsValidationError(t *testing.T) {
	e := formula.NewEngine()
	def := domain.Factor{Code: "BOGUS_COLUMN", CodeType: domain.CodeTypeFormula}
	_, err := e.Compute(context.Background(), def, sampleMarket(), nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)
}
