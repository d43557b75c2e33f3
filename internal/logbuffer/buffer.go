// Package logbuffer implements the per-task log buffering subsystem
// (C7): size- and time-triggered flush to the log collection, a mirrored
// last-log field on the task record, severity-triggered flush-all,
// detail explosion, and graceful shutdown.
package logbuffer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultThreshold is the default per-task queue size that forces a
	// synchronous flush.
	DefaultThreshold = 50
	// DefaultFlushInterval is the default background flush timer period.
	DefaultFlushInterval = 5 * time.Second
	// ShutdownGrace is how long Shutdown waits for the flush ticker to
	// stop before the final flush.
	ShutdownGrace = 10 * time.Second
	// DefaultSpillThreshold is the default in-memory queue size, past the
	// flush threshold, at which the oldest half of a flooding task's
	// queue is spilled to disk rather than held in memory.
	DefaultSpillThreshold = 500
)

// Store is the persistence boundary: append log entries and mirror the
// newest one onto the owning task record.
type Store interface {
	AppendLogs(ctx context.Context, entries []domain.LogEntry) error
	UpdateTaskLastLog(ctx context.Context, taskID string, entry domain.LogEntry) error
	TailLogs(ctx context.Context, taskID string, afterOrdinal int64) ([]domain.LogEntry, int64, error)
}

// Buffer is the process-wide log buffer: one queue per task_id, flushed
// on a timer, on a per-task size threshold, or immediately across every
// task when an urgent-severity entry is added.
type Buffer struct {
	mu      sync.Mutex
	queues  map[string][]domain.LogEntry
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ordinal atomic.Int64

	store         Store
	threshold     int
	flushInterval time.Duration
	log           zerolog.Logger

	spillDir       string
	spillThreshold int
}

// New builds a Buffer. threshold<=0 and flushInterval<=0 fall back to the
// package defaults.
func New(store Store, threshold int, flushInterval time.Duration, log zerolog.Logger) *Buffer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Buffer{
		queues:        make(map[string][]domain.LogEntry),
		store:         store,
		threshold:     threshold,
		flushInterval: flushInterval,
		log:           log.With().Str("component", "logbuffer").Logger(),
	}
}

// EnableSpill turns on the disk spill-to-disk overflow path: entries that
// cannot be flushed because the store rejected them, and entries that push
// a task's in-memory queue past spillThreshold before any flush drains it,
// are msgpack-encoded and appended to dir/<task_id>.mp for replay on the
// next successful flush. Disabled by default (dir == ""). threshold<=0
// uses DefaultSpillThreshold.
func (b *Buffer) EnableSpill(dir string, threshold int) {
	if threshold <= 0 {
		threshold = DefaultSpillThreshold
	}
	b.mu.Lock()
	b.spillDir = dir
	b.spillThreshold = threshold
	b.mu.Unlock()
}

// Start launches the background flush-on-timer goroutine. Call Shutdown to
// stop it.
func (b *Buffer) Start(ctx context.Context) {
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.run(ctx)
}

func (b *Buffer) run(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.FlushAll(ctx)
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Add enqueues a log entry for its task, exploding any Details map into
// extra debug entries, and triggers a synchronous flush if the entry is
// urgent or the task's queue has reached the size threshold. After
// Shutdown, Add is silently ignored.
func (b *Buffer) Add(ctx context.Context, entry domain.LogEntry) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	entries := append([]domain.LogEntry{entry}, explodeDetails(entry)...)
	b.queues[entry.TaskID] = append(b.queues[entry.TaskID], entries...)
	queueLen := len(b.queues[entry.TaskID])
	spillDir, spillThreshold := b.spillDir, b.spillThreshold
	b.mu.Unlock()

	if entry.Level.Urgent() {
		b.FlushAll(ctx)
		return
	}
	if queueLen >= b.threshold {
		b.Flush(ctx, entry.TaskID)
		return
	}
	if spillDir != "" && queueLen > spillThreshold {
		b.spillOverflow(entry.TaskID)
	}
}

// spillOverflow moves the oldest half of taskID's in-memory queue to disk,
// keeping the newest spillThreshold/2 entries buffered. Called when a
// task's queue has grown past spillThreshold without a flush draining it.
func (b *Buffer) spillOverflow(taskID string) {
	b.mu.Lock()
	q := b.queues[taskID]
	if len(q) <= b.spillThreshold {
		b.mu.Unlock()
		return
	}
	keep := b.spillThreshold / 2
	overflow := append([]domain.LogEntry{}, q[:len(q)-keep]...)
	b.queues[taskID] = append([]domain.LogEntry{}, q[len(q)-keep:]...)
	dir := b.spillDir
	b.mu.Unlock()

	if err := appendSpillFile(dir, taskID, overflow); err != nil {
		b.log.Error().Err(err).Str("task_id", taskID).Msg("spill overflow write failed")
	}
}

func explodeDetails(entry domain.LogEntry) []domain.LogEntry {
	if len(entry.Details) == 0 {
		return nil
	}
	out := make([]domain.LogEntry, 0, len(entry.Details))
	for k, v := range entry.Details {
		out = append(out, domain.LogEntry{
			TaskID:   entry.TaskID,
			FactorID: entry.FactorID,
			Level:    domain.LogDebug,
			Message:  debugMessage(k, v),
			Stage:    entry.Stage,
		})
	}
	return out
}

// Flush drains and persists one task's queue, first replaying any entries
// previously spilled to disk for this task so they aren't lost to an
// earlier failed flush or overflow spill.
func (b *Buffer) Flush(ctx context.Context, taskID string) {
	b.mu.Lock()
	pending := b.queues[taskID]
	delete(b.queues, taskID)
	spillDir := b.spillDir
	b.mu.Unlock()

	if spillDir != "" {
		if spilled, err := loadSpillFile(spillDir, taskID); err != nil {
			b.log.Error().Err(err).Str("task_id", taskID).Msg("flush: spill read failed")
		} else if len(spilled) > 0 {
			pending = append(spilled, pending...)
		}
	}

	if len(pending) == 0 {
		return
	}

	now := time.Now()
	for i := range pending {
		pending[i].Ordinal = b.ordinal.Add(1)
		pending[i].CreatedAt = now
		pending[i].UpdatedAt = now
		if pending[i].Timestamp.IsZero() {
			pending[i].Timestamp = now
		}
	}

	if err := b.store.AppendLogs(ctx, pending); err != nil {
		b.log.Error().Err(err).Str("task_id", taskID).Msg("flush: append failed")
		if spillDir != "" {
			if serr := appendSpillFile(spillDir, taskID, pending); serr != nil {
				b.log.Error().Err(serr).Str("task_id", taskID).Msg("flush: spill-to-disk also failed")
			}
		}
		return
	}
	newest := pending[len(pending)-1]
	if err := b.store.UpdateTaskLastLog(ctx, taskID, newest); err != nil {
		b.log.Error().Err(err).Str("task_id", taskID).Msg("flush: task mirror update failed")
	}
}

func spillPath(dir, taskID string) string {
	return filepath.Join(dir, taskID+".mp")
}

// appendSpillFile merges entries with whatever is already spilled for
// taskID and rewrites the file.
func appendSpillFile(dir, taskID string, entries []domain.LogEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logbuffer: create spill dir: %w", err)
	}
	existing, err := loadSpillFile(dir, taskID)
	if err != nil {
		return err
	}
	all := append(existing, entries...)
	body, err := msgpack.Marshal(all)
	if err != nil {
		return fmt.Errorf("logbuffer: encode spill for %s: %w", taskID, err)
	}
	if err := os.WriteFile(spillPath(dir, taskID), body, 0o644); err != nil {
		return fmt.Errorf("logbuffer: write spill for %s: %w", taskID, err)
	}
	return nil
}

// loadSpillFile reads and deletes taskID's spill file, if any.
func loadSpillFile(dir, taskID string) ([]domain.LogEntry, error) {
	path := spillPath(dir, taskID)
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logbuffer: read spill for %s: %w", taskID, err)
	}
	var entries []domain.LogEntry
	if err := msgpack.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("logbuffer: decode spill for %s: %w", taskID, err)
	}
	_ = os.Remove(path)
	return entries, nil
}

// FlushAll flushes every task currently queued.
func (b *Buffer) FlushAll(ctx context.Context) {
	b.mu.Lock()
	taskIDs := make([]string, 0, len(b.queues))
	for id := range b.queues {
		taskIDs = append(taskIDs, id)
	}
	b.mu.Unlock()

	for _, id := range taskIDs {
		b.Flush(ctx, id)
	}
}

// Shutdown stops the flush ticker, waits up to ShutdownGrace for it to
// exit, then does one final flush of every queue. Subsequent Add calls are
// ignored.
func (b *Buffer) Shutdown(ctx context.Context) {
	if b.stopCh != nil {
		close(b.stopCh)
		select {
		case <-b.doneCh:
		case <-time.After(ShutdownGrace):
		}
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.FlushAll(ctx)
}

// Tail returns entries for taskID strictly after afterOrdinal, time-ordered,
// plus the new max ordinal observed.
func (b *Buffer) Tail(ctx context.Context, taskID string, afterOrdinal int64) ([]domain.LogEntry, int64, error) {
	return b.store.TailLogs(ctx, taskID, afterOrdinal)
}

func debugMessage(key string, value any) string {
	return fmt.Sprintf("%s: %v", key, value)
}
