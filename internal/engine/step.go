package engine

import (
	"context"
	"time"

	"github.com/renwick/stepflow/internal/actions"
	"github.com/renwick/stepflow/internal/logging"
	"github.com/renwick/stepflow/pkg/schema"
)

// Step is one unit of work inside a Workflow: an action reference plus a
// parameter mapping, with per-step status, result, error, and timing.
// A Step is owned exclusively by its Workflow and never runs concurrently
// with itself.
type Step struct {
	Name        string
	Description string
	ActionName  string
	Params      map[string]Param

	Result      any
	Status      schema.StepStatus
	Err         error
	StartedAt   *time.Time
	CompletedAt *time.Time

	action actions.Action
}

// NewStep binds an action to a named step.
func NewStep(name, description string, action actions.Action, params map[string]Param) *Step {
	return &Step{
		Name:        name,
		Description: description,
		ActionName:  action.Name(),
		Params:      params,
		Status:      schema.StepStatusPending,
		action:      action,
	}
}

// Execute resolves the step's params against the workflow context, invokes
// the action, and records the outcome. Timing is stamped unconditionally,
// even on failure. The error is both recorded on the step and returned to
// the caller.
func (s *Step) Execute(ctx context.Context, wfContext map[string]any) (any, error) {
	s.Status = schema.StepStatusRunning
	now := time.Now().UTC()
	s.StartedAt = &now
	defer func() {
		end := time.Now().UTC()
		s.CompletedAt = &end
	}()

	ctx = logging.WithStep(ctx, s.Name)

	params, err := s.resolveParams(wfContext)
	if err != nil {
		return nil, s.fail(err)
	}

	result, err := s.action.Execute(ctx, params)
	if err != nil {
		return nil, s.fail(schema.NewErrorf(schema.ErrCodeStepExecution,
			"action %q failed: %s", s.ActionName, err.Error()).
			WithStep(s.Name).
			WithCause(err))
	}

	s.Result = result
	s.Status = schema.StepStatusCompleted
	return result, nil
}

func (s *Step) fail(err error) error {
	s.Status = schema.StepStatusFailed
	s.Err = err
	return err
}

func (s *Step) resolveParams(wfContext map[string]any) (map[string]any, error) {
	if len(s.Params) == 0 {
		return nil, nil
	}
	resolved := make(map[string]any, len(s.Params))
	for key, p := range s.Params {
		val, err := p.Resolve(wfContext)
		if err != nil {
			if fe, ok := err.(*schema.FlowError); ok {
				return nil, fe.WithStep(s.Name)
			}
			return nil, err
		}
		resolved[key] = val
	}
	return resolved, nil
}

// Duration returns how long the step ran, or zero if it has not finished.
func (s *Step) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// clone returns a fresh pending copy of the step sharing the action binding
// and param definitions.
func (s *Step) clone() *Step {
	return &Step{
		Name:        s.Name,
		Description: s.Description,
		ActionName:  s.ActionName,
		Params:      s.Params,
		Status:      schema.StepStatusPending,
		action:      s.action,
	}
}

// Definition returns the blueprint wire form of the step.
func (s *Step) Definition() schema.StepDefinition {
	var raw map[string]any
	if len(s.Params) > 0 {
		raw = make(map[string]any, len(s.Params))
		for key, p := range s.Params {
			raw[key] = p.Raw()
		}
	}
	return schema.StepDefinition{
		Name:        s.Name,
		Description: s.Description,
		Action:      s.ActionName,
		Params:      raw,
	}
}
