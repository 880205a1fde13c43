// Package manager wires the action registry, blueprint store, and scheduler
// into a single facade the CLI and MCP server drive.
package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/renwick/stepflow/internal/actions"
	"github.com/renwick/stepflow/internal/engine"
	"github.com/renwick/stepflow/internal/logging"
	"github.com/renwick/stepflow/internal/scheduler"
	"github.com/renwick/stepflow/internal/store"
	"github.com/renwick/stepflow/pkg/schema"
)

// Manager owns the moving parts of a workflow deployment: the action
// registry workflows bind against, the flat-file blueprint store, and the
// background scheduler.
type Manager struct {
	registry  *actions.Registry
	store     *store.FileStore
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// New creates a manager rooted at dataDir. Standard actions (expr.eval, jq,
// http.request) are pre-registered.
func New(dataDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := actions.NewRegistry()
	if err := actions.RegisterStandard(registry); err != nil {
		return nil, err
	}

	fileStore, err := store.NewFileStore(dataDir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		registry:  registry,
		store:     fileStore,
		scheduler: scheduler.NewScheduler(logger),
		logger:    logger,
	}, nil
}

// Registry exposes the action registry for custom action registration.
func (m *Manager) Registry() *actions.Registry {
	return m.registry
}

// RegisterAction adds a custom action to the registry.
func (m *Manager) RegisterAction(a actions.Action) error {
	return m.registry.Register(a)
}

// RegisterActionFunc adds a custom action from a plain function.
func (m *Manager) RegisterActionFunc(name string, fn actions.Func) error {
	return m.registry.RegisterFunc(name, fn)
}

// ListActions returns metadata for every registered action, sorted by name.
func (m *Manager) ListActions() []actions.Info {
	return m.registry.List()
}

// CreateWorkflow builds an executable workflow from a blueprint, binding
// each step's action against the registry.
func (m *Manager) CreateWorkflow(file *schema.WorkflowFile) (*engine.Workflow, error) {
	return engine.WorkflowFromFile(file, m.registry, m.logger)
}

// SaveWorkflow validates and persists a workflow blueprint.
func (m *Manager) SaveWorkflow(file *schema.WorkflowFile) error {
	return m.store.SaveWorkflow(file)
}

// LoadWorkflow loads a stored blueprint and binds it into an executable
// workflow.
func (m *Manager) LoadWorkflow(name string) (*engine.Workflow, error) {
	file, err := m.store.LoadWorkflow(name)
	if err != nil {
		return nil, err
	}
	return m.CreateWorkflow(file)
}

// DeleteWorkflow removes a stored workflow blueprint.
func (m *Manager) DeleteWorkflow(name string) error {
	return m.store.DeleteWorkflow(name)
}

// ListWorkflows returns the names of stored workflow blueprints, sorted.
func (m *Manager) ListWorkflows() ([]string, error) {
	return m.store.ListWorkflows()
}

// RunWorkflow loads a stored workflow and executes it to completion,
// returning the finished workflow with its accumulated context.
func (m *Manager) RunWorkflow(ctx context.Context, name string) (*engine.Workflow, error) {
	wf, err := m.LoadWorkflow(name)
	if err != nil {
		return nil, err
	}

	runCtx := logging.WithWorkflow(ctx, wf.Name)
	if err := wf.Execute(runCtx); err != nil {
		return wf, err
	}
	return wf, nil
}

// SaveTemplate validates and persists a template blueprint.
func (m *Manager) SaveTemplate(file *schema.WorkflowFile) error {
	return m.store.SaveTemplate(file)
}

// LoadTemplate loads a stored template blueprint.
func (m *Manager) LoadTemplate(name string) (*engine.Template, error) {
	file, err := m.store.LoadTemplate(name)
	if err != nil {
		return nil, err
	}
	return engine.TemplateFromFile(file), nil
}

// DeleteTemplate removes a stored template blueprint.
func (m *Manager) DeleteTemplate(name string) error {
	return m.store.DeleteTemplate(name)
}

// ListTemplates returns the names of stored template blueprints, sorted.
func (m *Manager) ListTemplates() ([]string, error) {
	return m.store.ListTemplates()
}

// InstantiateTemplate loads a template and creates a workflow from it with
// the given inputs pre-resolved.
func (m *Manager) InstantiateTemplate(name string, inputs map[string]any) (*engine.Workflow, error) {
	tpl, err := m.LoadTemplate(name)
	if err != nil {
		return nil, err
	}
	return tpl.CreateWorkflow(m.registry, inputs, m.logger)
}

// ScheduleWorkflow schedules a stored workflow to run at scheduleTime,
// repeating on repeatInterval when non-zero. Returns the task ID.
func (m *Manager) ScheduleWorkflow(name string, scheduleTime time.Time, repeatInterval time.Duration) (string, error) {
	wf, err := m.LoadWorkflow(name)
	if err != nil {
		return "", err
	}

	task := scheduler.NewTask(wf, scheduleTime, repeatInterval)
	m.scheduler.Add(task)

	m.logger.Info("workflow scheduled",
		slog.String("workflow", name),
		slog.String("task_id", task.ID),
		slog.Time("at", scheduleTime),
	)
	return task.ID, nil
}

// ScheduleCron schedules a stored workflow on a cron expression. Returns
// the task ID.
func (m *Manager) ScheduleCron(name, cronExpr string) (string, error) {
	wf, err := m.LoadWorkflow(name)
	if err != nil {
		return "", err
	}

	task, err := scheduler.NewCronTask(wf, cronExpr)
	if err != nil {
		return "", err
	}
	m.scheduler.Add(task)

	m.logger.Info("workflow scheduled",
		slog.String("workflow", name),
		slog.String("task_id", task.ID),
		slog.String("cron", cronExpr),
	)
	return task.ID, nil
}

// CancelScheduledTask cancels the task and removes it from the scheduler.
func (m *Manager) CancelScheduledTask(id string) error {
	return m.scheduler.Remove(id)
}

// ListScheduledTasks returns snapshots of all scheduled tasks.
func (m *Manager) ListScheduledTasks() []scheduler.Info {
	return m.scheduler.List()
}

// NewBatchProcessor creates a batch processor over a stored workflow.
// batchSize and maxWorkers fall back to defaults when zero.
func (m *Manager) NewBatchProcessor(name string, batchSize, maxWorkers int) (*engine.BatchProcessor, error) {
	wf, err := m.LoadWorkflow(name)
	if err != nil {
		return nil, err
	}
	return engine.NewBatchProcessor(wf, batchSize, maxWorkers, m.logger), nil
}

// Start launches the background scheduler.
func (m *Manager) Start(ctx context.Context) error {
	return m.scheduler.Start(ctx)
}

// Shutdown stops the scheduler, waiting briefly for in-flight runs.
func (m *Manager) Shutdown() error {
	return m.scheduler.Stop()
}
