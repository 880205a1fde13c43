package actions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/renwick/stepflow/pkg/schema"
)

// exprAction evaluates Expr expressions. Compiled programs are cached and
// reused across goroutines.
type exprAction struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newExprAction() *exprAction {
	return &exprAction{cache: make(map[string]*vm.Program)}
}

func (a *exprAction) Name() string { return "expr.eval" }

func (a *exprAction) Description() string {
	return "Evaluate an Expr expression against the 'env' parameter"
}

// Execute expects params:
//
//	expression (string, required)
//	env        (object, optional) variables available to the expression
//
// Any other parameter is merged into env under its own name, which is how
// blueprint steps feed earlier results into an expression.
func (a *exprAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	expression := stringParam(params, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"expr.eval requires non-empty 'expression' string parameter")
	}

	env := map[string]any{}
	for k, v := range mapParam(params, "env") {
		env[k] = v
	}
	for k, v := range params {
		if k == "expression" || k == "env" {
			continue
		}
		env[k] = v
	}

	prg, err := a.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

func (a *exprAction) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	a.mu.RLock()
	if prg, ok := a.cache[expression]; ok {
		a.mu.RUnlock()
		return prg, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := a.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compilation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	a.cache[expression] = prg
	return prg, nil
}
