package domain_test

import (
	"errors"
	"testing"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskIDStripsSeparators(t *testing.T) {
	id := domain.NewTaskID(func() string { return "abc-123-def-456" })
	assert.Equal(t, "abc123def456", id)
}

func TestTaskAdvanceIsMonotonic(t *testing.T) {
	task := &domain.Task{ProcessStatus: domain.StageAccepted}
	task.Advance(domain.StageMarketDataLoaded)
	assert.Equal(t, domain.StageMarketDataLoaded, task.ProcessStatus)

	// attempting to move backward is a no-op
	task.Advance(domain.StageAccepted)
	assert.Equal(t, domain.StageMarketDataLoaded, task.ProcessStatus)
}

func TestTaskAdvanceToFinalizedMarksSucceeded(t *testing.T) {
	task := &domain.Task{ProcessStatus: domain.StagePersisted}
	task.Advance(domain.StageFinalized)
	assert.Equal(t, domain.TaskStatusSucceeded, task.Status)
	require.NotNil(t, task.EndTime)
}

func TestTaskFailIsTerminal(t *testing.T) {
	task := &domain.Task{ProcessStatus: domain.StageGrouped}
	task.Fail(errors.New("boom"))
	assert.Equal(t, domain.StageFailed, task.ProcessStatus)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, "boom", task.ErrorMessage)

	// terminal: further mutation is a no-op
	task.Advance(domain.StageFinalized)
	assert.Equal(t, domain.StageFailed, task.ProcessStatus)
	task.Fail(errors.New("second error"))
	assert.Equal(t, "boom", task.ErrorMessage)
}
