package logbuffer

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/store"
	"github.com/google/uuid"
)

// SQLiteStore persists the factor_analysis_stage_logs collection and
// mirrors the newest entry onto the owning task's last-log fields via a
// TaskUpdater.
type SQLiteStore struct {
	logs  *store.Collection
	tasks TaskUpdater
}

// TaskUpdater is the narrow slice of the task store C7 needs: mirroring
// the newest flushed entry onto the task record's last-log fields.
type TaskUpdater interface {
	SetLastLog(ctx context.Context, taskID string, entry domain.LogEntry) error
}

// NewSQLiteStore opens (creating if necessary) the stage-log collection.
func NewSQLiteStore(db *store.DB, tasks TaskUpdater) (*SQLiteStore, error) {
	logs, err := store.NewCollection(db, "factor_analysis_stage_logs", []store.IndexedColumn{
		{Name: "key", Type: "TEXT"},
		{Name: "task_id", Type: "TEXT"},
		{Name: "ordinal", Type: "INTEGER"},
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{logs: logs, tasks: tasks}, nil
}

// AppendLogs implements Buffer's Store.
func (s *SQLiteStore) AppendLogs(_ context.Context, entries []domain.LogEntry) error {
	for i := range entries {
		if entries[i].LogID == "" {
			entries[i].LogID = uuid.NewString()
		}
		key := entries[i].TaskID + ":" + entries[i].LogID
		if err := s.logs.Put([]any{key, entries[i].TaskID, entries[i].Ordinal}, entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTaskLastLog implements Buffer's Store.
func (s *SQLiteStore) UpdateTaskLastLog(ctx context.Context, taskID string, entry domain.LogEntry) error {
	if s.tasks == nil {
		return nil
	}
	return s.tasks.SetLastLog(ctx, taskID, entry)
}

// TailLogs implements Buffer's Store: entries for taskID with ordinal >
// afterOrdinal, time-ordered, plus the new max ordinal.
func (s *SQLiteStore) TailLogs(_ context.Context, taskID string, afterOrdinal int64) ([]domain.LogEntry, int64, error) {
	bodies, err := s.logs.Query("WHERE task_id = ? AND ordinal > ? ORDER BY ordinal ASC", taskID, afterOrdinal)
	if err != nil {
		return nil, afterOrdinal, err
	}

	entries := make([]domain.LogEntry, 0, len(bodies))
	for _, body := range bodies {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, afterOrdinal, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ordinal < entries[j].Ordinal })

	maxOrdinal := afterOrdinal
	for _, e := range entries {
		if e.Ordinal > maxOrdinal {
			maxOrdinal = e.Ordinal
		}
	}
	return entries, maxOrdinal, nil
}
