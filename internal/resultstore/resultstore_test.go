package resultstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/aristath/factorlab/internal/store"
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

func TestFactorStoreRejectsDuplicateNamePerUser(t *testing.T) {
	db := newTestDB(t)
	factors, err := resultstore.NewFactorStore(db)
	require.NoError(t, err)

	_, err = factors.Create(context.Background(), domain.Factor{UserID: "u1", FactorName: "alpha01"})
	require.NoError(t, err)

	_, err = factors.Create(context.Background(), domain.Factor{UserID: "u1", FactorName: "alpha01"})
	assert.Error(t, err)
}

func TestFactorStoreAllowsSameNameForDifferentUsers(t *testing.T) {
	db := newTestDB(t)
	factors, err := resultstore.NewFactorStore(db)
	require.NoError(t, err)

	_, err = factors.Create(context.Background(), domain.Factor{UserID: "u1", FactorName: "alpha01"})
	require.NoError(t, err)
	_, err = factors.Create(context.Background(), domain.Factor{UserID: "u2", FactorName: "alpha01"})
	assert.NoError(t, err)
}

func TestTaskStoreSetLastLogIsIndependentOfStageAdvance(t *testing.T) {
	db := newTestDB(t)
	tasks, err := resultstore.NewTaskStore(db)
	require.NoError(t, err)

	require.NoError(t, tasks.Create(context.Background(), domain.Task{TaskID: "t1", FactorID: "f1", ProcessStatus: domain.StageAccepted}))
	require.NoError(t, tasks.Update(context.Background(), "t1", func(t *domain.Task) { t.Advance(domain.StageMarketDataLoaded) }))
	require.NoError(t, tasks.SetLastLog(context.Background(), "t1", domain.LogEntry{Message: "loading", Level: domain.LogInfo}))

	got, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageMarketDataLoaded, got.ProcessStatus)
	assert.Equal(t, "loading", got.LastLogMessage)
}

func TestBundleStoreRoundTrip(t *testing.T) {
	db := newTestDB(t)
	bundles, err := resultstore.NewBundleStore(db)
	require.NoError(t, err)

	require.NoError(t, bundles.Put(context.Background(), domain.ResultBundle{TaskID: "t1", ICSummary: domain.ICSummary{Mean: 0.05}}))

	got, err := bundles.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 0.05, got.ICSummary.Mean, 1e-9)

	absent, err := bundles.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestQuerySurfaceListSortsByMetricWithZeroFallback(t *testing.T) {
	db := newTestDB(t)
	factors, err := resultstore.NewFactorStore(db)
	require.NoError(t, err)
	tasks, err := resultstore.NewTaskStore(db)
	require.NoError(t, err)
	bundles, err := resultstore.NewBundleStore(db)
	require.NoError(t, err)
	q := resultstore.NewQuerySurface(factors, tasks, bundles)

	f1, err := factors.Create(context.Background(), domain.Factor{UserID: "u1", FactorName: "has_bundle"})
	require.NoError(t, err)
	f2, err := factors.Create(context.Background(), domain.Factor{UserID: "u1", FactorName: "no_bundle"})
	require.NoError(t, err)

	require.NoError(t, bundles.Put(context.Background(), domain.ResultBundle{
		TaskID:              "t1",
		GroupReturnAnalysis: []domain.GroupStat{{Group: 1, SharpeRatio: 1.5}},
	}))
	require.NoError(t, factors.SetCurrentTask(context.Background(), f1.FactorID, "t1", domain.FactorStatusSucceeded))

	page, err := q.List(context.Background(), "u1", 1, 10, resultstore.SortSharpeRatio, resultstore.OrderDesc)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, f1.FactorID, page.Data[0].FactorID)
	assert.Equal(t, f2.FactorID, page.Data[1].FactorID)
}

func TestQuerySurfaceListRejectsBadPageSize(t *testing.T) {
	db := newTestDB(t)
	factors, err := resultstore.NewFactorStore(db)
	require.NoError(t, err)
	tasks, err := resultstore.NewTaskStore(db)
	require.NoError(t, err)
	bundles, err := resultstore.NewBundleStore(db)
	require.NoError(t, err)
	q := resultstore.NewQuerySurface(factors, tasks, bundles)

	_, err = q.List(context.Background(), "u1", 1, 0, resultstore.SortUpdatedAt, resultstore.OrderAsc)
	assert.Error(t, err)
}
