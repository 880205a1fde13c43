package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/renwick/stepflow/internal/engine"
	"github.com/renwick/stepflow/pkg/schema"
)

// ScheduledTask runs a workflow at a scheduled time, optionally repeating on
// a fixed interval or a cron schedule. Each run executes a fresh clone of the
// workflow so prior runs never leak state.
type ScheduledTask struct {
	ID       string
	Workflow *engine.Workflow

	mu             sync.Mutex
	scheduleTime   time.Time
	repeatInterval time.Duration
	cronSchedule   cron.Schedule
	cronExpr       string
	status         schema.TaskStatus
	lastRunAt      time.Time
	nextRunAt      time.Time
	lastErr        error
}

// NewTask schedules a workflow for a single run at scheduleTime. A non-zero
// repeatInterval makes the task recur, with each next run computed from the
// previous run's start.
func NewTask(wf *engine.Workflow, scheduleTime time.Time, repeatInterval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:             uuid.NewString(),
		Workflow:       wf,
		scheduleTime:   scheduleTime,
		repeatInterval: repeatInterval,
		status:         schema.TaskStatusPending,
		nextRunAt:      scheduleTime,
	}
}

// cronParser accepts standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewCronTask schedules a workflow on a cron expression. The task recurs
// until cancelled.
func NewCronTask(wf *engine.Workflow, cronExpr string) (*ScheduledTask, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid cron expression %q", cronExpr).WithCause(err)
	}
	return &ScheduledTask{
		ID:           uuid.NewString(),
		Workflow:     wf,
		cronSchedule: sched,
		cronExpr:     cronExpr,
		status:       schema.TaskStatusPending,
		nextRunAt:    sched.Next(time.Now()),
	}, nil
}

// IsDue reports whether the task should run now.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == schema.TaskStatusPending && !now.Before(t.nextRunAt)
}

// Execute runs the workflow once and advances the schedule. Recurring tasks
// return to pending with the next run computed from this run's start time;
// one-shot tasks move to completed or failed based on the workflow outcome.
func (t *ScheduledTask) Execute(ctx context.Context) error {
	t.mu.Lock()
	if t.status != schema.TaskStatusPending {
		current := t.status
		t.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeSchedulerTask,
			"task %s is %s, not pending", t.ID, current)
	}
	t.status = schema.TaskStatusRunning
	startedAt := time.Now()
	t.lastRunAt = startedAt
	wf := t.Workflow.Clone()
	t.mu.Unlock()

	err := wf.Execute(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	// A cancel that raced the run wins over the run's outcome.
	if t.status == schema.TaskStatusCancelled {
		return err
	}

	t.lastErr = err
	switch {
	case t.cronSchedule != nil:
		t.nextRunAt = t.cronSchedule.Next(startedAt)
		t.status = schema.TaskStatusPending
	case t.repeatInterval > 0:
		t.nextRunAt = startedAt.Add(t.repeatInterval)
		t.status = schema.TaskStatusPending
	case err != nil:
		t.status = schema.TaskStatusFailed
	default:
		t.status = schema.TaskStatusCompleted
	}

	if err != nil {
		return schema.NewErrorf(schema.ErrCodeSchedulerTask,
			"scheduled run of workflow %q failed", t.Workflow.Name).WithCause(err)
	}
	return nil
}

// Cancel marks the task cancelled. A run already in flight completes but the
// task never becomes due again.
func (t *ScheduledTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = schema.TaskStatusCancelled
}

// Status returns the task's current lifecycle state.
func (t *ScheduledTask) Status() schema.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// NextRunAt returns when the task is next due. Zero for terminal tasks.
func (t *ScheduledTask) NextRunAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return time.Time{}
	}
	return t.nextRunAt
}

// LastRunAt returns when the task last started, zero if it never ran.
func (t *ScheduledTask) LastRunAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRunAt
}

// CronExpression returns the cron expression, empty for interval tasks.
func (t *ScheduledTask) CronExpression() string {
	return t.cronExpr
}

// Info is a point-in-time snapshot of a task for listings.
type Info struct {
	ID        string            `json:"id"`
	Workflow  string            `json:"workflow"`
	Status    schema.TaskStatus `json:"status"`
	CronExpr  string            `json:"cron,omitempty"`
	Interval  time.Duration     `json:"interval,omitempty"`
	LastRunAt time.Time         `json:"last_run_at,omitzero"`
	NextRunAt time.Time         `json:"next_run_at,omitzero"`
}

// Snapshot captures the task's current state.
func (t *ScheduledTask) Snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := Info{
		ID:        t.ID,
		Workflow:  t.Workflow.Name,
		Status:    t.status,
		CronExpr:  t.cronExpr,
		Interval:  t.repeatInterval,
		LastRunAt: t.lastRunAt,
	}
	if !t.status.Terminal() {
		info.NextRunAt = t.nextRunAt
	}
	return info
}
