package resultstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/store"
)

// TaskStore persists tasks: one document per task_id. It implements
// logbuffer.TaskUpdater so the log buffer can mirror its newest flushed
// entry onto the owning task record without this package importing
// logbuffer.
type TaskStore struct {
	tasks *store.Collection
	mu    sync.Mutex // serializes Update's read-modify-write
}

// NewTaskStore opens (creating if necessary) the tasks collection.
func NewTaskStore(db *store.DB) (*TaskStore, error) {
	tasks, err := store.NewCollection(db, "tasks", []store.IndexedColumn{
		{Name: "task_id", Type: "TEXT"},
		{Name: "factor_id", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}
	return &TaskStore{tasks: tasks}, nil
}

// Create inserts a new task record.
func (s *TaskStore) Create(_ context.Context, t domain.Task) error {
	return s.put(t)
}

// Get fetches a task by id, returning nil if absent.
func (s *TaskStore) Get(_ context.Context, taskID string) (*domain.Task, error) {
	var t domain.Task
	ok, err := s.tasks.Get(taskID, &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// Update loads a task, applies mutate, and persists the result. mutate
// typically calls t.Advance or t.Fail.
func (s *TaskStore) Update(ctx context.Context, taskID string, mutate func(*domain.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil // task vanished; nothing to update
	}
	mutate(t)
	return s.put(*t)
}

// SetLastLog implements logbuffer.TaskUpdater: it mirrors the newest
// flushed log entry's message/time/level/stage onto the task record,
// independent of any concurrent stage-advance write, per the
// per-field-independent mutation rule for task records.
func (s *TaskStore) SetLastLog(ctx context.Context, taskID string, entry domain.LogEntry) error {
	return s.Update(ctx, taskID, func(t *domain.Task) {
		t.LastLogMessage = entry.Message
		ts := entry.Timestamp
		t.LastLogTime = &ts
		t.LastLogLevel = string(entry.Level)
		if entry.Stage > t.CurrentStage {
			t.CurrentStage = entry.Stage
		}
	})
}

// ByFactor lists every task recorded against a factor, unordered.
func (s *TaskStore) ByFactor(_ context.Context, factorID string) ([]domain.Task, error) {
	bodies, err := s.tasks.Query("WHERE factor_id = ?", factorID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(bodies))
	for _, body := range bodies {
		var t domain.Task
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TaskStore) put(t domain.Task) error {
	return s.tasks.Put([]any{t.TaskID, t.FactorID}, t)
}
