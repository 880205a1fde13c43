package actions

import "context"

// Action is an externally supplied unit of work invoked by a workflow step.
// The engine is agnostic to the action's semantics; it only needs a stable
// name-to-callable mapping supplied before load/execute time.
type Action interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Func adapts a plain function to the Action interface.
type Func func(ctx context.Context, params map[string]any) (any, error)

type funcAction struct {
	name        string
	description string
	fn          Func
}

func (a *funcAction) Name() string        { return a.name }
func (a *funcAction) Description() string { return a.description }

func (a *funcAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	return a.fn(ctx, params)
}

// NewAction wraps a function as a named Action.
func NewAction(name, description string, fn Func) Action {
	return &funcAction{name: name, description: description, fn: fn}
}

// Info is a summary of a registered action for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
