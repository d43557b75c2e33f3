package store_test

import (
	"fmt"
	"testing"

	"github.com/aristath/factorlab/internal/store"
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

type widget struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func TestCollectionPutGetDelete(t *testing.T) {
	db := newTestDB(t)
	coll, err := store.NewCollection(db, "widgets", []store.IndexedColumn{
		{Name: "id", Type: "TEXT"},
		{Name: "score", Type: "REAL"},
	})
	require.NoError(t, err)

	w := widget{ID: "w1", Score: 3.5}
	require.NoError(t, coll.Put([]any{w.ID, w.Score}, w))

	var got widget
	found, err := coll.Get("w1", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, w, got)

	require.NoError(t, coll.Delete("w1"))
	found, err = coll.Get("w1", &got)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCollectionQueryOrdersByIndexedColumn(t *testing.T) {
	db := newTestDB(t)
	coll, err := store.NewCollection(db, "widgets_q", []store.IndexedColumn{
		{Name: "id", Type: "TEXT"},
		{Name: "score", Type: "REAL"},
	})
	require.NoError(t, err)

	require.NoError(t, coll.Put([]any{"a", 2.0}, widget{ID: "a", Score: 2.0}))
	require.NoError(t, coll.Put([]any{"b", 5.0}, widget{ID: "b", Score: 5.0}))
	require.NoError(t, coll.Put([]any{"c", 1.0}, widget{ID: "c", Score: 1.0}))

	bodies, err := coll.Query("ORDER BY score DESC")
	require.NoError(t, err)
	require.Len(t, bodies, 3)
	require.Contains(t, bodies[0], `"id":"b"`)
	require.Contains(t, bodies[2], `"id":"c"`)

	n, err := coll.Count("WHERE score >= ?", 2.0)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPutUpsertsExistingKey(t *testing.T) {
	db := newTestDB(t)
	coll, err := store.NewCollection(db, "widgets_upsert", []store.IndexedColumn{
		{Name: "id", Type: "TEXT"},
		{Name: "score", Type: "REAL"},
	})
	require.NoError(t, err)

	require.NoError(t, coll.Put([]any{"a", 1.0}, widget{ID: "a", Score: 1.0}))
	require.NoError(t, coll.Put([]any{"a", 9.0}, widget{ID: "a", Score: 9.0}))

	n, err := coll.Count("")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var got widget
	_, err = coll.Get("a", &got)
	require.NoError(t, err)
	require.Equal(t, 9.0, got.Score)
}
