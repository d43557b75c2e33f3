package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/jobs"
	"github.com/aristath/factorlab/internal/logbuffer"
	"github.com/aristath/factorlab/internal/pipeline"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/aristath/factorlab/internal/server"
	"github.com/aristath/factorlab/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func newTestServer(t *testing.T) (*httptest.Server, *resultstore.TaskStore) {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := store.Open(store.Config{Path: path, Profile: store.ProfileStandard, Name: t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	factors, err := resultstore.NewFactorStore(db)
	require.NoError(t, err)
	tasks, err := resultstore.NewTaskStore(db)
	require.NoError(t, err)
	bundles, err := resultstore.NewBundleStore(db)
	require.NoError(t, err)
	query := resultstore.NewQuerySurface(factors, tasks, bundles)

	logStore, err := logbuffer.NewSQLiteStore(db, tasks)
	require.NoError(t, err)
	// Threshold 1: every entry is flushed on Add, so logs are readable
	// without the flush timer running.
	buf := logbuffer.New(logStore, 1, time.Hour, zerolog.Nop())

	p := pipeline.New(fakeReader{})
	runner := jobs.New(factors, tasks, bundles, p, buf, 2, uuid.NewString, zerolog.Nop())

	srv := server.New(server.Config{
		Log: zerolog.Nop(), Factors: factors, Tasks: tasks, Bundles: bundles,
		Query: query, Runner: runner, LogBuffer: buf, Port: 0,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tasks
}

func validParams() domain.Params {
	return domain.Params{
		StartDate: "2024-01-02", EndDate: "2024-01-04",
		AdjustmentCycle: 1, StockPool: domain.PoolAllA, IncludeST: true,
		FactorDirection: domain.DirectionPositive, GroupNumber: 2,
		ExtremeValueProcessing: domain.ExtremeStd,
	}
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestCreateFactorThenDuplicateReturns409(t *testing.T) {
	ts, _ := newTestServer(t)

	body := map[string]any{
		"user_id": "u1", "factor_name": "close_factor",
		"code": "CLOSE", "code_type": "formula", "params": validParams(),
	}
	buf, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+"/api/factors", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "200", env["code"])
	data := env["data"].(map[string]any)
	assert.NotEmpty(t, data["factor_id"])

	resp2, err := http.Post(ts.URL+"/api/factors", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
	env2 := decodeEnvelope(t, resp2)
	assert.Equal(t, "409", env2["code"])
}

func TestQueryFactorMissingReturns404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/factors/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "404", env["code"])
}

func TestRunFactorThenQueryResultsAfterCompletion(t *testing.T) {
	ts, tasks := newTestServer(t)

	body := map[string]any{
		"user_id": "u1", "factor_name": "close_factor",
		"code": "CLOSE", "code_type": "formula", "params": validParams(),
	}
	buf, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+"/api/factors", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	factorID := env["data"].(map[string]any)["factor_id"].(string)

	runResp, err := http.Get(fmt.Sprintf("%s/api/factors/%s/run", ts.URL, factorID))
	require.NoError(t, err)
	runEnv := decodeEnvelope(t, runResp)
	taskID := runEnv["data"].(map[string]any)["task_id"].(string)
	require.NotEmpty(t, taskID)

	deadline := time.Now().Add(2 * time.Second)
	var task *domain.Task
	for time.Now().Before(deadline) {
		task, err = tasks.Get(context.Background(), taskID)
		require.NoError(t, err)
		if task != nil && (task.ProcessStatus == domain.StageFinalized || task.ProcessStatus == domain.StageFailed) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, task)
	require.Equal(t, domain.StageFinalized, task.ProcessStatus)

	groupResp, err := http.Get(fmt.Sprintf("%s/api/tasks/%s/results/group_return_analysis", ts.URL, taskID))
	require.NoError(t, err)
	groupEnv := decodeEnvelope(t, groupResp)
	assert.Equal(t, "200", groupEnv["code"])
	assert.NotEmpty(t, groupEnv["data"])

	logsResp, err := http.Get(fmt.Sprintf("%s/api/tasks/%s/logs", ts.URL, taskID))
	require.NoError(t, err)
	logsEnv := decodeEnvelope(t, logsResp)
	logsData := logsEnv["data"].(map[string]any)
	assert.NotEmpty(t, logsData["logs"])
}
