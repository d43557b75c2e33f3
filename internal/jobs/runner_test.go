package jobs_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/jobs"
	"github.com/aristath/factorlab/internal/logbuffer"
	"github.com/aristath/factorlab/internal/pipeline"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/aristath/factorlab/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := store.Open(store.Config{Path: path, Profile: store.ProfileStandard, Name: t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeReader struct{}

func (fakeReader) LoadMarket(context.Context, string, string, domain.StockPool, bool, []string, []string) ([]domain.MarketPoint, error) {
	dates := []string{"20240102", "20240103", "20240104"}
	closes := map[string][]float64{"A": {10, 11, 12}, "B": {10, 10, 10}, "C": {10, 9, 8}}
	var rows []domain.MarketPoint
	for i, d := range dates {
		for sym, series := range closes {
			rows = append(rows, domain.MarketPoint{Date: d, Symbol: sym, Close: series[i]})
		}
	}
	return rows, nil
}

func (fakeReader) LoadCustomFactor(_ context.Context, def domain.Factor, start, end string) ([]domain.CustomFactorPoint, error) {
	dates := []string{"20240102", "20240103", "20240104"}
	closes := map[string][]float64{"A": {10, 11, 12}, "B": {10, 10, 10}, "C": {10, 9, 8}}
	var rows []domain.CustomFactorPoint
	for i, d := range dates {
		for sym, series := range closes {
			rows = append(rows, domain.CustomFactorPoint{Date: d, Symbol: sym, Value: series[i]})
		}
	}
	return rows, nil
}

func setupRunner(t *testing.T) (*jobs.Runner, *resultstore.FactorStore, *resultstore.TaskStore, *resultstore.BundleStore, *logbuffer.Buffer) {
	t.Helper()
	db := newTestDB(t)

	factors, err := resultstore.NewFactorStore(db)
	require.NoError(t, err)
	tasks, err := resultstore.NewTaskStore(db)
	require.NoError(t, err)
	bundles, err := resultstore.NewBundleStore(db)
	require.NoError(t, err)

	logStore, err := logbuffer.NewSQLiteStore(db, tasks)
	require.NoError(t, err)
	buf := logbuffer.New(logStore, 50, time.Hour, zerolog.Nop())

	p := pipeline.New(fakeReader{})
	runner := jobs.New(factors, tasks, bundles, p, buf, 2, uuid.NewString, zerolog.Nop())
	return runner, factors, tasks, bundles, buf
}

func validParams() domain.Params {
	return domain.Params{
		StartDate: "2024-01-02", EndDate: "2024-01-04",
		AdjustmentCycle: 1, StockPool: domain.PoolAllA, IncludeST: true,
		FactorDirection: domain.DirectionPositive, GroupNumber: 2,
		ExtremeValueProcessing: domain.ExtremeStd,
	}
}

func waitForTerminal(t *testing.T, tasks *resultstore.TaskStore, taskID string) domain.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := tasks.Get(context.Background(), taskID)
		require.NoError(t, err)
		if task != nil && (task.ProcessStatus == domain.StageFinalized || task.ProcessStatus == domain.StageFailed) {
			return *task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not reach a terminal stage in time")
	return domain.Task{}
}

func TestRunRejectsInvalidParamsWithoutCreatingTask(t *testing.T) {
	runner, factors, tasks, _, _ := setupRunner(t)

	def, err := factors.Create(context.Background(), domain.Factor{
		UserID: "u1", FactorName: "bad_params",
		Code: "CLOSE", CodeType: domain.CodeTypeFormula,
		Params: domain.Params{AdjustmentCycle: 7}, // invalid
	})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), def.FactorID)
	assert.Error(t, err)

	all, err := tasks.ByFactor(context.Background(), def.FactorID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunRejectsInvalidCodeWithoutCreatingTask(t *testing.T) {
	runner, factors, tasks, _, _ := setupRunner(t)

	def, err := factors.Create(context.Background(), domain.Factor{
		UserID: "u1", FactorName: "bad_code",
		Code: "NOT_AN_OPERATOR(CLOSE)", CodeType: domain.CodeTypeFormula,
		Params: validParams(),
	})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), def.FactorID)
	assert.Error(t, err)

	all, err := tasks.ByFactor(context.Background(), def.FactorID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunAdvancesThroughStagesToFinalizedAndPersistsBundle(t *testing.T) {
	runner, factors, tasks, bundles, _ := setupRunner(t)

	def, err := factors.Create(context.Background(), domain.Factor{
		UserID: "u1", FactorName: "close_factor",
		Code: "CLOSE", CodeType: domain.CodeTypeFormula,
		Params: validParams(),
	})
	require.NoError(t, err)

	taskID, err := runner.Run(context.Background(), def.FactorID)
	require.NoError(t, err)

	task := waitForTerminal(t, tasks, taskID)
	require.Equal(t, domain.StageFinalized, task.ProcessStatus)
	assert.Equal(t, domain.TaskStatusSucceeded, task.Status)

	bundle, err := bundles.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.NotEmpty(t, bundle.GroupReturnAnalysis)

	updated, err := factors.Get(context.Background(), def.FactorID)
	require.NoError(t, err)
	assert.Equal(t, domain.FactorStatusSucceeded, updated.Status)
}
