package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renwick/stepflow/internal/actions"
	"github.com/renwick/stepflow/internal/engine"
	"github.com/renwick/stepflow/pkg/schema"
)

// countingWorkflow returns a one-step workflow that bumps counter each run.
func countingWorkflow(t *testing.T, counter *atomic.Int64) *engine.Workflow {
	t.Helper()

	action := actions.NewAction("count", "", func(ctx context.Context, params map[string]any) (any, error) {
		return counter.Add(1), nil
	})

	wf := engine.NewWorkflow("counting", "", nil)
	wf.AddStep(engine.NewStep("count", "", action, nil))
	return wf
}

func failingWorkflow(t *testing.T) *engine.Workflow {
	t.Helper()

	action := actions.NewAction("boom", "", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "boom")
	})

	wf := engine.NewWorkflow("failing", "", nil)
	wf.AddStep(engine.NewStep("boom", "", action, nil))
	return wf
}

func TestTask_OneShotLifecycle(t *testing.T) {
	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now(), 0)

	require.True(t, task.IsDue(time.Now()))
	require.NoError(t, task.Execute(context.Background()))

	assert.Equal(t, int64(1), counter.Load())
	assert.Equal(t, schema.TaskStatusCompleted, task.Status())
	assert.False(t, task.IsDue(time.Now().Add(time.Hour)))
}

func TestTask_NotDueBeforeScheduleTime(t *testing.T) {
	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now().Add(time.Hour), 0)

	assert.False(t, task.IsDue(time.Now()))
	assert.True(t, task.IsDue(time.Now().Add(2*time.Hour)))
}

func TestTask_RepeatReturnsToPending(t *testing.T) {
	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now(), time.Hour)

	require.NoError(t, task.Execute(context.Background()))

	assert.Equal(t, schema.TaskStatusPending, task.Status())
	assert.False(t, task.IsDue(time.Now()), "next run is an hour out")

	next := task.NextRunAt()
	assert.WithinDuration(t, task.LastRunAt().Add(time.Hour), next, time.Second)
}

func TestTask_RepeatSurvivesFailure(t *testing.T) {
	wf := failingWorkflow(t)
	task := NewTask(wf, time.Now(), time.Minute)

	err := task.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, schema.TaskStatusPending, task.Status(),
		"repeating task reschedules even when a run fails")
}

func TestTask_OneShotFailure(t *testing.T) {
	task := NewTask(failingWorkflow(t), time.Now(), 0)

	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, schema.TaskStatusFailed, task.Status())
}

func TestTask_EachRunUsesFreshClone(t *testing.T) {
	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now(), time.Millisecond)

	require.NoError(t, task.Execute(context.Background()))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, task.Execute(context.Background()))

	assert.Equal(t, int64(2), counter.Load())
	assert.Equal(t, schema.WorkflowStatusPending, task.Workflow.Status,
		"original workflow is never mutated")
}

func TestTask_Cancel(t *testing.T) {
	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now(), 0)

	task.Cancel()

	assert.Equal(t, schema.TaskStatusCancelled, task.Status())
	assert.False(t, task.IsDue(time.Now()))

	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(0), counter.Load())
}

func TestNewCronTask_InvalidExpression(t *testing.T) {
	_, err := NewCronTask(engine.NewWorkflow("wf", "", nil), "not a cron expr")
	require.Error(t, err)

	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
}

func TestNewCronTask_ComputesNextRun(t *testing.T) {
	task, err := NewCronTask(engine.NewWorkflow("wf", "", nil), "*/5 * * * *")
	require.NoError(t, err)

	assert.Equal(t, "*/5 * * * *", task.CronExpression())
	assert.False(t, task.NextRunAt().IsZero())
	assert.False(t, task.IsDue(time.Now()), "cron tasks are never due immediately")
}

func TestScheduler_RunsDueTask(t *testing.T) {
	s := NewScheduler(nil)

	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now(), 0)
	s.Add(task)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return counter.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestScheduler_PrunesTerminalTasks(t *testing.T) {
	s := NewScheduler(nil)

	var counter atomic.Int64
	s.Add(NewTask(countingWorkflow(t, &counter), time.Now(), 0))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(s.List()) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestScheduler_RemoveCancelsTask(t *testing.T) {
	s := NewScheduler(nil)

	var counter atomic.Int64
	task := NewTask(countingWorkflow(t, &counter), time.Now().Add(time.Hour), 0)
	s.Add(task)

	require.NoError(t, s.Remove(task.ID))
	assert.Equal(t, schema.TaskStatusCancelled, task.Status())
	assert.Empty(t, s.List())

	err := s.Remove(task.ID)
	require.Error(t, err)
	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, ferr.Code)
}

func TestScheduler_DoubleStart(t *testing.T) {
	s := NewScheduler(nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s := NewScheduler(nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestScheduler_ListSnapshots(t *testing.T) {
	s := NewScheduler(nil)

	var counter atomic.Int64
	wf := countingWorkflow(t, &counter)
	s.Add(NewTask(wf, time.Now().Add(time.Hour), time.Minute))

	infos := s.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "counting", infos[0].Workflow)
	assert.Equal(t, schema.TaskStatusPending, infos[0].Status)
	assert.Equal(t, time.Minute, infos[0].Interval)
	assert.False(t, infos[0].NextRunAt.IsZero())
}
