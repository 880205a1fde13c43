package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renwick/stepflow/internal/actions"
	"github.com/renwick/stepflow/pkg/schema"
)

// constAction returns a fixed value.
func constAction(name string, value any) actions.Action {
	return actions.NewAction(name, "", func(context.Context, map[string]any) (any, error) {
		return value, nil
	})
}

// greetAction formats "Hello, <name>".
func greetAction() actions.Action {
	return actions.NewAction("greet", "", func(_ context.Context, params map[string]any) (any, error) {
		return fmt.Sprintf("Hello, %v", params["name"]), nil
	})
}

// failAction always errors.
func failAction(name string) actions.Action {
	return actions.NewAction(name, "", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
}

// greetWorkflow builds a two-step pipeline: step1 produces "Alice",
// step2 greets $step1.
func greetWorkflow(t *testing.T) *Workflow {
	t.Helper()
	wf := NewWorkflow("greet", "greeting pipeline", nil)
	wf.AddStep(NewStep("step1", "produce name", constAction("name", "Alice"), nil))
	wf.AddStep(NewStep("step2", "greet", greetAction(), map[string]Param{
		"name": StepRef("step1"),
	}))
	return wf
}

func TestStepExecuteRecordsTimingAndResult(t *testing.T) {
	step := NewStep("s", "", constAction("c", 7), nil)

	result, err := step.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, 7, result)
	assert.Equal(t, 7, step.Result)
	assert.Equal(t, schema.StepStatusCompleted, step.Status)
	require.NotNil(t, step.StartedAt)
	require.NotNil(t, step.CompletedAt)
	assert.False(t, step.CompletedAt.Before(*step.StartedAt))
}

func TestStepExecuteFailureStampsTiming(t *testing.T) {
	step := NewStep("s", "", failAction("f"), nil)

	_, err := step.Execute(context.Background(), map[string]any{})
	require.Error(t, err)

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeStepExecution, fe.Code)
	assert.Equal(t, "s", fe.Step)

	assert.Equal(t, schema.StepStatusFailed, step.Status)
	assert.Equal(t, err, step.Err)
	// Timing is recorded even on failure.
	assert.NotNil(t, step.StartedAt)
	assert.NotNil(t, step.CompletedAt)
}

func TestStepMissingContextVariableFails(t *testing.T) {
	step := NewStep("s", "", greetAction(), map[string]Param{
		"name": StepRef("foo"),
	})

	_, err := step.Execute(context.Background(), map[string]any{})
	require.Error(t, err)

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeMissingContextVar, fe.Code)
	assert.Equal(t, schema.StepStatusFailed, step.Status)
}

func TestWorkflowExecute(t *testing.T) {
	wf := greetWorkflow(t)

	require.NoError(t, wf.Execute(context.Background()))

	assert.Equal(t, schema.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, map[string]any{
		"step1": "Alice",
		"step2": "Hello, Alice",
	}, wf.Context)
	assert.NotNil(t, wf.StartedAt)
	assert.NotNil(t, wf.CompletedAt)
}

func TestWorkflowExecuteContextEntryPerStep(t *testing.T) {
	wf := NewWorkflow("chain", "", nil)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("s%d", i)
		wf.AddStep(NewStep(name, "", constAction(name, i), nil))
	}

	require.NoError(t, wf.Execute(context.Background()))

	assert.Equal(t, schema.WorkflowStatusCompleted, wf.Status)
	assert.Len(t, wf.Context, 5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, wf.Context[fmt.Sprintf("s%d", i)])
	}
}

func TestWorkflowHaltsOnFirstFailure(t *testing.T) {
	var laterRan bool
	wf := NewWorkflow("halting", "", nil)
	wf.AddStep(NewStep("ok", "", constAction("a", 1), nil))
	wf.AddStep(NewStep("bad", "", failAction("f"), nil))
	wf.AddStep(NewStep("never", "", actions.NewAction("later", "", func(context.Context, map[string]any) (any, error) {
		laterRan = true
		return nil, nil
	}), nil))

	err := wf.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, schema.WorkflowStatusFailed, wf.Status)
	assert.False(t, laterRan)
	assert.Equal(t, 1, wf.Context["ok"])
	assert.NotContains(t, wf.Context, "bad")
	assert.NotNil(t, wf.CompletedAt)
}

func TestWorkflowMissingReferenceHaltsBeforeLaterSteps(t *testing.T) {
	var laterRan bool
	wf := NewWorkflow("missing-ref", "", nil)
	wf.AddStep(NewStep("s1", "", greetAction(), map[string]Param{
		"name": StepRef("foo"),
	}))
	wf.AddStep(NewStep("s2", "", actions.NewAction("later", "", func(context.Context, map[string]any) (any, error) {
		laterRan = true
		return nil, nil
	}), nil))

	err := wf.Execute(context.Background())
	require.Error(t, err)

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeMissingContextVar, fe.Code)
	assert.Equal(t, schema.WorkflowStatusFailed, wf.Status)
	assert.False(t, laterRan)
}

func TestWorkflowExecuteStep(t *testing.T) {
	wf := greetWorkflow(t)

	result, err := wf.ExecuteStep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Alice", result)
	assert.Equal(t, schema.WorkflowStatusRunning, wf.Status)
	assert.Equal(t, 0, wf.CurrentStepIndex)

	// Executing the last step completes the workflow.
	result, err = wf.ExecuteStep(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Alice", result)
	assert.Equal(t, schema.WorkflowStatusCompleted, wf.Status)
}

func TestWorkflowExecuteStepBounds(t *testing.T) {
	wf := greetWorkflow(t)

	_, err := wf.ExecuteStep(context.Background(), -1)
	require.Error(t, err)
	_, err = wf.ExecuteStep(context.Background(), 2)
	require.Error(t, err)
}

func TestWorkflowExecuteStepRejectedInTerminalState(t *testing.T) {
	wf := greetWorkflow(t)
	require.NoError(t, wf.Execute(context.Background()))

	_, err := wf.ExecuteStep(context.Background(), 0)
	require.Error(t, err)

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeInvalidTransition, fe.Code)
}

func TestWorkflowPauseResumeRoundTrip(t *testing.T) {
	// Reference run: uninterrupted execution.
	reference := greetWorkflow(t)
	require.NoError(t, reference.Execute(context.Background()))

	// Interrupted run: one step, pause, resume.
	wf := greetWorkflow(t)
	_, err := wf.ExecuteStep(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, wf.Pause())
	assert.Equal(t, schema.WorkflowStatusPaused, wf.Status)

	require.NoError(t, wf.Resume(context.Background()))

	assert.Equal(t, reference.Status, wf.Status)
	assert.Equal(t, reference.Context, wf.Context)
}

func TestWorkflowPauseOnlyFromRunning(t *testing.T) {
	wf := greetWorkflow(t)

	err := wf.Pause()
	require.Error(t, err)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeInvalidTransition, fe.Code)
}

func TestWorkflowResumeOnlyFromPaused(t *testing.T) {
	wf := greetWorkflow(t)

	err := wf.Resume(context.Background())
	require.Error(t, err)

	require.NoError(t, wf.Execute(context.Background()))
	err = wf.Resume(context.Background())
	require.Error(t, err)
}

func TestWorkflowResumeHaltsOnFailure(t *testing.T) {
	wf := NewWorkflow("resume-fail", "", nil)
	wf.AddStep(NewStep("ok", "", constAction("a", 1), nil))
	wf.AddStep(NewStep("bad", "", failAction("f"), nil))

	_, err := wf.ExecuteStep(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, wf.Pause())

	err = wf.Resume(context.Background())
	require.Error(t, err)
	assert.Equal(t, schema.WorkflowStatusFailed, wf.Status)
}

func TestWorkflowNoTransitionOutOfTerminal(t *testing.T) {
	wf := greetWorkflow(t)
	require.NoError(t, wf.Execute(context.Background()))

	assert.Error(t, wf.Pause())
	assert.Error(t, wf.Execute(context.Background()))
}

func TestWorkflowClone(t *testing.T) {
	wf := greetWorkflow(t)
	require.NoError(t, wf.Execute(context.Background()))

	cp := wf.Clone()
	assert.Equal(t, schema.WorkflowStatusPending, cp.Status)
	assert.Empty(t, cp.Context)
	require.Len(t, cp.Steps, 2)
	assert.Equal(t, schema.StepStatusPending, cp.Steps[0].Status)

	// The clone executes independently of the original.
	require.NoError(t, cp.Execute(context.Background()))
	assert.Equal(t, "Hello, Alice", cp.Context["step2"])
}

func TestWorkflowFileRoundTrip(t *testing.T) {
	wf := greetWorkflow(t)

	file := wf.File()
	assert.Equal(t, "greet", file.Name)
	require.Len(t, file.Steps, 2)
	assert.Equal(t, "name", file.Steps[0].Action)
	assert.Equal(t, map[string]any{"name": "$step1"}, file.Steps[1].Params)

	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(constAction("name", "Alice")))
	require.NoError(t, reg.Register(greetAction()))

	loaded, err := WorkflowFromFile(file, reg, nil)
	require.NoError(t, err)
	require.NoError(t, loaded.Execute(context.Background()))
	assert.Equal(t, "Hello, Alice", loaded.Context["step2"])
}

func TestWorkflowFromFileUnknownAction(t *testing.T) {
	file := &schema.WorkflowFile{
		Name: "broken",
		Steps: []schema.StepDefinition{
			{Name: "s1", Action: "nope"},
		},
	}

	_, err := WorkflowFromFile(file, actions.NewRegistry(), nil)
	require.Error(t, err)

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeActionNotFound, fe.Code)
}
