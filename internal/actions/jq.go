package actions

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/renwick/stepflow/pkg/schema"
)

// jqAction evaluates jq expressions for filtering, reshaping, and
// aggregating step outputs. Compiled code is cached and reused across
// goroutines.
type jqAction struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func newJQAction() *jqAction {
	return &jqAction{cache: make(map[string]*gojq.Code)}
}

func (a *jqAction) Name() string { return "jq" }

func (a *jqAction) Description() string {
	return "Apply a jq query to the 'input' parameter"
}

// Execute expects params:
//
//	query (string, required)
//	input (any, optional) the value the query runs against
//
// jq queries can produce multiple outputs. A single output is returned
// directly; multiple outputs are collected into a slice.
func (a *jqAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	query := stringParam(params, "query", "")
	if query == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"jq requires non-empty 'query' string parameter")
	}

	code, err := a.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, params["input"])

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeStepExecution,
				"jq evaluation failed for %q: %s", query, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"query": query})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (a *jqAction) getOrCompile(query string) (*gojq.Code, error) {
	a.mu.RLock()
	if code, ok := a.cache[query]; ok {
		a.mu.RUnlock()
		return code, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if code, ok := a.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse failed for %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile failed for %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	a.cache[query] = code
	return code, nil
}
