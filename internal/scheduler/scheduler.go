// Package scheduler runs workflows at scheduled times on a background loop.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/renwick/stepflow/internal/logging"
	"github.com/renwick/stepflow/pkg/schema"
)

const (
	// tickInterval is how often the loop checks for due tasks.
	tickInterval = time.Second

	// stopTimeout bounds how long Stop waits for in-flight runs.
	stopTimeout = 5 * time.Second
)

// Scheduler keeps a list of scheduled tasks and runs those that come due.
// Task runs happen on the loop's goroutine one at a time; a long run delays
// later tasks but never drops them.
type Scheduler struct {
	logger *slog.Logger

	mu    sync.Mutex
	tasks []*ScheduledTask

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Add registers a task with the scheduler.
func (s *Scheduler) Add(task *ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// Remove cancels the task with the given ID and drops it from the list.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, task := range s.tasks {
		if task.ID == id {
			task.Cancel()
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled task %q not found", id)
}

// Get returns the task with the given ID.
func (s *Scheduler) Get(id string) (*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scheduled task %q not found", id)
}

// List returns snapshots of all registered tasks.
func (s *Scheduler) List() []Info {
	s.mu.Lock()
	tasks := make([]*ScheduledTask, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	infos := make([]Info, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, task.Snapshot())
	}
	return infos
}

// Start launches the background loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.done != nil {
		return schema.NewError(schema.ErrCodeConflict, "scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every due task. Terminal tasks are pruned from the list.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, task := range s.due(now) {
		if ctx.Err() != nil {
			return
		}
		taskCtx := logging.WithTask(ctx, task.ID)
		if err := task.Execute(taskCtx); err != nil {
			s.logger.Error("scheduled task failed",
				slog.String("task_id", task.ID),
				slog.String("workflow", task.Workflow.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	s.prune()
}

func (s *Scheduler) due(now time.Time) []*ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*ScheduledTask
	for _, task := range s.tasks {
		if task.IsDue(now) {
			due = append(due, task)
		}
	}
	return due
}

func (s *Scheduler) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0]
	for _, task := range s.tasks {
		if !task.Status().Terminal() {
			kept = append(kept, task)
		}
	}
	s.tasks = kept
}

// Stop signals the loop to exit and waits up to five seconds for any
// in-flight run to finish. Idempotent.
func (s *Scheduler) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(stopTimeout):
		s.logger.Warn("scheduler stop timed out waiting for in-flight run")
	}
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
