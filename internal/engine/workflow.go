package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/renwick/stepflow/internal/logging"
	"github.com/renwick/stepflow/pkg/schema"
)

// ValidWorkflowTransitions defines the allowed lifecycle transitions.
// Terminal states absorb: there is no way out of completed or failed.
var ValidWorkflowTransitions = map[schema.WorkflowStatus][]schema.WorkflowStatus{
	schema.WorkflowStatusPending:   {schema.WorkflowStatusRunning},
	schema.WorkflowStatusRunning:   {schema.WorkflowStatusPaused, schema.WorkflowStatusCompleted, schema.WorkflowStatusFailed},
	schema.WorkflowStatusPaused:    {schema.WorkflowStatusRunning},
	schema.WorkflowStatusCompleted: {},
	schema.WorkflowStatusFailed:    {},
}

// Workflow is an ordered sequence of Steps sharing one mutable context
// (step name -> result). Execution is synchronous and single-threaded per
// instance: steps run strictly in order because each may depend on prior
// context. The caller owns the instance; none of its methods are safe for
// concurrent use on the same Workflow.
type Workflow struct {
	Name        string
	Description string
	Steps       []*Step
	Context     map[string]any
	Status      schema.WorkflowStatus

	// CurrentStepIndex is the index of the last step handed to execution.
	// Always within [0, len(Steps)) while Status is running or paused.
	CurrentStepIndex int

	StartedAt   *time.Time
	CompletedAt *time.Time

	logger *slog.Logger
}

// NewWorkflow creates an empty pending workflow.
func NewWorkflow(name, description string, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		Name:        name,
		Description: description,
		Context:     make(map[string]any),
		Status:      schema.WorkflowStatusPending,
		logger:      logger,
	}
}

// AddStep appends a step to the workflow.
func (w *Workflow) AddStep(step *Step) {
	w.Steps = append(w.Steps, step)
}

// transition validates and applies a status change.
func (w *Workflow) transition(to schema.WorkflowStatus) error {
	for _, allowed := range ValidWorkflowTransitions[w.Status] {
		if allowed == to {
			w.Status = to
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid workflow transition: %s -> %s", w.Status, to).
		WithDetails(map[string]any{"workflow": w.Name, "from": string(w.Status), "to": string(to)})
}

// Execute runs all steps strictly in order, feeding each result into
// Context[step.Name]. It halts and marks the workflow failed on the first
// step failure, completed otherwise. Start and end times are stamped
// unconditionally. The first step error is returned to the caller, who
// decides whether to retry, abort, or inspect partial context.
func (w *Workflow) Execute(ctx context.Context) error {
	if err := w.transition(schema.WorkflowStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	w.StartedAt = &now
	w.CurrentStepIndex = 0
	defer w.stampEnd()

	ctx = logging.WithWorkflow(ctx, w.Name)

	return w.runFrom(ctx, 0)
}

// Resume continues a paused workflow from the step after the last executed
// one, halting on first failure exactly as Execute does.
func (w *Workflow) Resume(ctx context.Context) error {
	if w.Status != schema.WorkflowStatusPaused {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot resume workflow in %s state", w.Status)
	}
	w.Status = schema.WorkflowStatusRunning
	defer w.stampEnd()

	ctx = logging.WithWorkflow(ctx, w.Name)

	return w.runFrom(ctx, w.CurrentStepIndex+1)
}

// runFrom executes steps [from, len) sequentially.
func (w *Workflow) runFrom(ctx context.Context, from int) error {
	for i := from; i < len(w.Steps); i++ {
		w.CurrentStepIndex = i
		step := w.Steps[i]

		result, err := step.Execute(ctx, w.Context)
		if err != nil {
			w.Status = schema.WorkflowStatusFailed
			w.logger.ErrorContext(ctx, "workflow halted on step failure",
				slog.String("step", step.Name),
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			return err
		}
		w.Context[step.Name] = result
	}

	w.Status = schema.WorkflowStatusCompleted
	w.logger.InfoContext(ctx, "workflow completed", slog.Int("steps", len(w.Steps)))
	return nil
}

// ExecuteStep runs exactly one step, for interactive one-step-at-a-time
// drivers. The index is bounds-checked and execution is allowed only while
// the workflow is pending, running, or paused. When the executed index is
// the last step, the workflow is marked completed automatically.
func (w *Workflow) ExecuteStep(ctx context.Context, index int) (any, error) {
	if index < 0 || index >= len(w.Steps) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"step index %d out of range [0, %d)", index, len(w.Steps))
	}

	switch w.Status {
	case schema.WorkflowStatusPending, schema.WorkflowStatusRunning, schema.WorkflowStatusPaused:
	default:
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot execute step in %s state", w.Status)
	}

	w.Status = schema.WorkflowStatusRunning
	if w.StartedAt == nil {
		now := time.Now().UTC()
		w.StartedAt = &now
	}
	w.CurrentStepIndex = index

	ctx = logging.WithWorkflow(ctx, w.Name)

	step := w.Steps[index]
	result, err := step.Execute(ctx, w.Context)
	if err != nil {
		w.Status = schema.WorkflowStatusFailed
		end := time.Now().UTC()
		w.CompletedAt = &end
		w.logger.ErrorContext(ctx, "step execution failed",
			slog.String("step", step.Name),
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	w.Context[step.Name] = result

	if index == len(w.Steps)-1 {
		w.Status = schema.WorkflowStatusCompleted
		end := time.Now().UTC()
		w.CompletedAt = &end
	}

	return result, nil
}

// Pause suspends a running workflow. Resume continues from the step after
// CurrentStepIndex.
func (w *Workflow) Pause() error {
	return w.transition(schema.WorkflowStatusPaused)
}

func (w *Workflow) stampEnd() {
	end := time.Now().UTC()
	w.CompletedAt = &end
}

// Duration returns how long the workflow ran, or zero if it has not finished.
func (w *Workflow) Duration() time.Duration {
	if w.StartedAt == nil || w.CompletedAt == nil {
		return 0
	}
	return w.CompletedAt.Sub(*w.StartedAt)
}

// Clone returns a fresh pending copy with empty context, sharing step and
// action definitions. Used by the batch processor so each item runs against
// independent state.
func (w *Workflow) Clone() *Workflow {
	cp := NewWorkflow(w.Name, w.Description, w.logger)
	for _, step := range w.Steps {
		cp.AddStep(step.clone())
	}
	return cp
}

// File returns the persisted blueprint form of the workflow. Actions are
// referenced by name, never serialized.
func (w *Workflow) File() *schema.WorkflowFile {
	steps := make([]schema.StepDefinition, len(w.Steps))
	for i, step := range w.Steps {
		steps[i] = step.Definition()
	}
	return &schema.WorkflowFile{
		Name:        w.Name,
		Description: w.Description,
		Steps:       steps,
	}
}
