package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renwick/stepflow/internal/actions"
	"github.com/renwick/stepflow/pkg/schema"
)

// itemWorkflow builds a single-step workflow that doubles the injected item.
func itemWorkflow(t *testing.T) *Workflow {
	t.Helper()
	double := actions.NewAction("double", "", func(_ context.Context, params map[string]any) (any, error) {
		n, ok := params["value"].(int)
		if !ok {
			return nil, fmt.Errorf("item %v is not an int", params["value"])
		}
		return n * 2, nil
	})

	wf := NewWorkflow("double", "", nil)
	wf.AddStep(NewStep("double", "", double, map[string]Param{
		"value": StepRef(ItemContextKey),
	}))
	return wf
}

func intItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestBatchProcessAllSucceed(t *testing.T) {
	bp := NewBatchProcessor(itemWorkflow(t), 4, 2, nil)

	result, err := bp.Process(context.Background(), intItems(10))
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalItems)
	assert.Len(t, result.Results, 10)
	assert.Empty(t, result.Errors)
	assert.Equal(t, schema.WorkflowStatusCompleted, bp.Status())

	// Every copy carried its own item forward.
	seen := make(map[any]any, len(result.Results))
	for _, r := range result.Results {
		seen[r.Item] = r.Context["double"]
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, i*2, seen[i])
	}
}

func TestBatchEveryItemInExactlyOneBucket(t *testing.T) {
	// Odd items fail, even items succeed.
	pick := actions.NewAction("pick", "", func(_ context.Context, params map[string]any) (any, error) {
		n := params["value"].(int)
		if n%2 == 1 {
			return nil, fmt.Errorf("odd item %d", n)
		}
		return n, nil
	})
	wf := NewWorkflow("pick", "", nil)
	wf.AddStep(NewStep("pick", "", pick, map[string]Param{
		"value": StepRef(ItemContextKey),
	}))

	const total = 23
	bp := NewBatchProcessor(wf, 5, 3, nil)
	result, err := bp.Process(context.Background(), intItems(total))
	require.NoError(t, err)

	assert.Equal(t, total, len(result.Results)+len(result.Errors))
	assert.Len(t, result.Results, 12)
	assert.Len(t, result.Errors, 11)

	for _, ie := range result.Errors {
		var fe *schema.FlowError
		require.ErrorAs(t, ie.Err, &fe)
		assert.Equal(t, schema.ErrCodeBatchItem, fe.Code)
	}
}

func TestBatchFailureDoesNotAbortLaterBatches(t *testing.T) {
	var executed int64
	act := actions.NewAction("count", "", func(_ context.Context, params map[string]any) (any, error) {
		atomic.AddInt64(&executed, 1)
		if params["value"].(int) == 0 {
			return nil, fmt.Errorf("first item fails")
		}
		return params["value"], nil
	})
	wf := NewWorkflow("count", "", nil)
	wf.AddStep(NewStep("count", "", act, map[string]Param{
		"value": StepRef(ItemContextKey),
	}))

	// batch_size 2 over 6 items: the failure in batch one must not stop
	// batches two and three.
	bp := NewBatchProcessor(wf, 2, 2, nil)
	result, err := bp.Process(context.Background(), intItems(6))
	require.NoError(t, err)

	assert.EqualValues(t, 6, atomic.LoadInt64(&executed))
	assert.Len(t, result.Results, 5)
	assert.Len(t, result.Errors, 1)
}

func TestBatchBoundedConcurrency(t *testing.T) {
	const maxWorkers = 3

	var active, peak int64
	var mu sync.Mutex
	act := actions.NewAction("gauge", "", func(context.Context, map[string]any) (any, error) {
		cur := atomic.AddInt64(&active, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		defer atomic.AddInt64(&active, -1)
		return nil, nil
	})
	wf := NewWorkflow("gauge", "", nil)
	wf.AddStep(NewStep("gauge", "", act, nil))

	bp := NewBatchProcessor(wf, 20, maxWorkers, nil)
	result, err := bp.Process(context.Background(), intItems(20))
	require.NoError(t, err)

	assert.Len(t, result.Results, 20)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(maxWorkers))
}

func TestBatchRecoversPanics(t *testing.T) {
	act := actions.NewAction("explode", "", func(_ context.Context, params map[string]any) (any, error) {
		if params["value"].(int) == 2 {
			panic("kaboom")
		}
		return params["value"], nil
	})
	wf := NewWorkflow("explode", "", nil)
	wf.AddStep(NewStep("explode", "", act, map[string]Param{
		"value": StepRef(ItemContextKey),
	}))

	bp := NewBatchProcessor(wf, 10, 2, nil)
	result, err := bp.Process(context.Background(), intItems(4))
	require.NoError(t, err)

	assert.Len(t, result.Results, 3)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Item)
	assert.Contains(t, result.Errors[0].Msg, "panic")
}

func TestBatchEmptyItems(t *testing.T) {
	bp := NewBatchProcessor(itemWorkflow(t), 5, 2, nil)

	result, err := bp.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.TotalItems)
	assert.Equal(t, schema.WorkflowStatusCompleted, bp.Status())
}

func TestBatchOriginalWorkflowUntouched(t *testing.T) {
	wf := itemWorkflow(t)
	bp := NewBatchProcessor(wf, 5, 2, nil)

	_, err := bp.Process(context.Background(), intItems(8))
	require.NoError(t, err)

	// The blueprint workflow never executed itself.
	assert.Equal(t, schema.WorkflowStatusPending, wf.Status)
	assert.Empty(t, wf.Context)
}
