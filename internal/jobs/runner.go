// Package jobs implements the asynchronous job runtime (C6): task
// admission and validation, a bounded worker pool running independent
// tasks in parallel off the request path, monotonic stage progression,
// and the any-stage failure policy.
package jobs

import (
	"context"
	"fmt"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/aristath/factorlab/internal/formula"
	"github.com/aristath/factorlab/internal/logbuffer"
	"github.com/aristath/factorlab/internal/pipeline"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/aristath/factorlab/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize bounds how many tasks run concurrently, mirroring C1's
// default chunk-reader pool width.
const DefaultPoolSize = 8

// Runner is the task admission and execution surface. It owns a bounded
// semaphore-gated worker pool: Run submits work in a goroutine that
// acquires a slot before starting, so the caller never blocks on pool
// capacity.
type Runner struct {
	factors  *resultstore.FactorStore
	tasks    *resultstore.TaskStore
	bundles  *resultstore.BundleStore
	pipeline *pipeline.Pipeline
	logs     *logbuffer.Buffer
	sem      *semaphore.Weighted
	newID    func() string
	log      zerolog.Logger
}

// New builds a Runner. poolSize<=0 uses DefaultPoolSize. newID generates
// task ids (callers pass a uuid.NewString-backed function so this package
// carries no direct uuid dependency of its own).
func New(factors *resultstore.FactorStore, tasks *resultstore.TaskStore, bundles *resultstore.BundleStore, p *pipeline.Pipeline, logs *logbuffer.Buffer, poolSize int, newID func() string, log zerolog.Logger) *Runner {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Runner{
		factors: factors, tasks: tasks, bundles: bundles, pipeline: p, logs: logs,
		sem: semaphore.NewWeighted(int64(poolSize)), newID: newID,
		log: log.With().Str("component", "jobs").Logger(),
	}
}

// Run implements run_factor(factor_id): validate, create the task record,
// mark the factor running, then schedule execution off the request path.
// Validation failures return immediately with no task created.
func (r *Runner) Run(ctx context.Context, factorID string) (string, error) {
	def, err := r.factors.Get(ctx, factorID)
	if err != nil {
		return "", err
	}
	if def == nil {
		return "", errs.DataAvailability("factor %s not found", factorID)
	}
	if err := def.Params.Validate(); err != nil {
		return "", err
	}
	if err := formula.Validate(def.Code, def.CodeType); err != nil {
		return "", err
	}

	taskID := domain.NewTaskID(r.newID)
	task := domain.Task{
		TaskID:        taskID,
		FactorID:      def.FactorID,
		UserID:        def.UserID,
		FactorName:    def.FactorName,
		Params:        def.Params,
		Status:        domain.TaskStatusRunning,
		ProcessStatus: domain.StageAccepted,
	}
	if err := r.tasks.Create(ctx, task); err != nil {
		return "", err
	}
	if err := r.factors.SetCurrentTask(ctx, def.FactorID, taskID, domain.FactorStatusRunning); err != nil {
		return "", err
	}

	go r.execute(context.Background(), *def, taskID)

	return taskID, nil
}

// execute runs one task to completion on a pool slot. It never returns an
// error to a caller: failures are recorded on the task record per the
// failure policy, and successes commit the result bundle before the task
// becomes observable as succeeded.
func (r *Runner) execute(ctx context.Context, def domain.Factor, taskID string) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(ctx, def, taskID, errs.Internal("could not acquire worker slot: %v", err))
		return
	}
	defer r.sem.Release(1)
	defer utils.OperationTimer("task_execute", r.log)()

	report := func(stage int, message string) {
		if err := r.tasks.Update(ctx, taskID, func(t *domain.Task) { t.Advance(stage) }); err != nil {
			r.log.Error().Err(err).Str("task_id", taskID).Msg("stage advance failed")
		}
		r.logs.Add(ctx, domain.LogEntry{TaskID: taskID, FactorID: def.FactorID, Level: domain.LogInfo, Stage: stage, Message: message})
	}

	bundle, err := r.pipeline.Run(ctx, def, def.Params, report)
	if err != nil {
		r.fail(ctx, def, taskID, err)
		return
	}

	if err := r.tasks.Update(ctx, taskID, func(t *domain.Task) { t.Advance(domain.StagePersisted) }); err != nil {
		r.fail(ctx, def, taskID, errs.Internal("stage advance to persisted failed: %v", err))
		return
	}
	bundle.TaskID = taskID
	if err := r.bundles.Put(ctx, bundle); err != nil {
		r.fail(ctx, def, taskID, errs.Internal("bundle write failed: %v", err))
		return
	}

	if err := r.tasks.Update(ctx, taskID, func(t *domain.Task) { t.Advance(domain.StageFinalized) }); err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("stage advance to finalized failed after bundle commit")
	}
	if err := r.factors.SetCurrentTask(ctx, def.FactorID, taskID, domain.FactorStatusSucceeded); err != nil {
		r.log.Error().Err(err).Str("factor_id", def.FactorID).Msg("factor status update failed")
	}
	r.logs.Add(ctx, domain.LogEntry{TaskID: taskID, FactorID: def.FactorID, Level: domain.LogInfo, Stage: domain.StageFinalized, Message: "finalized"})
}

func (r *Runner) fail(ctx context.Context, def domain.Factor, taskID string, cause error) {
	if err := r.tasks.Update(ctx, taskID, func(t *domain.Task) { t.Fail(cause) }); err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("failure write failed")
	}
	if err := r.factors.SetCurrentTask(ctx, def.FactorID, taskID, domain.FactorStatusFailed); err != nil {
		r.log.Error().Err(err).Str("factor_id", def.FactorID).Msg("factor status update after failure failed")
	}
	level := domain.LogError
	if kind, ok := errs.KindOf(cause); ok && kind == errs.KindDataAvailability {
		level = domain.LogWarning
	}
	r.logs.Add(ctx, domain.LogEntry{TaskID: taskID, FactorID: def.FactorID, Level: level, Stage: domain.StageFailed, Message: fmt.Sprintf("task failed: %v", cause)})
}
