package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/renwick/stepflow/internal/logging"
	"github.com/renwick/stepflow/pkg/schema"
)

// ItemContextKey is the reserved context key under which the batch item is
// injected into each workflow copy.
const ItemContextKey = "item"

// Default batch processor sizing.
const (
	DefaultBatchSize  = 10
	DefaultMaxWorkers = 5
)

// ItemResult is one item's successful outcome.
type ItemResult struct {
	Item    any            `json:"item"`
	Context map[string]any `json:"context"`
}

// ItemError is one item's failure.
type ItemError struct {
	Item any    `json:"item"`
	Err  error  `json:"-"`
	Msg  string `json:"error"`
}

// BatchResult is the aggregate outcome of a batch run. Every input item
// lands in exactly one of Results or Errors.
type BatchResult struct {
	Workflow   string       `json:"workflow"`
	TotalItems int          `json:"total_items"`
	Results    []ItemResult `json:"results"`
	Errors     []ItemError  `json:"errors"`
}

// BatchProcessor applies one workflow blueprint, independently, to each item
// in a collection. Items are processed batch by batch; within a batch up to
// MaxWorkers workflow copies run concurrently, each against fresh context
// and state. Per-item failures are collected, never raised: batch processing
// always completes with a results/errors split. This isolate-per-item policy
// is deliberately the opposite of Workflow.Execute's halt-on-first-failure.
type BatchProcessor struct {
	workflow   *Workflow
	batchSize  int
	maxWorkers int
	logger     *slog.Logger

	mu      sync.Mutex
	results []ItemResult
	errs    []ItemError
	status  schema.WorkflowStatus
}

// NewBatchProcessor creates a transient processor for one batch run.
func NewBatchProcessor(workflow *Workflow, batchSize, maxWorkers int, logger *slog.Logger) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		workflow:   workflow,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		logger:     logger,
		status:     schema.WorkflowStatusPending,
	}
}

// Process splits items into batches of batchSize and runs each batch through
// the worker pool, joining all workers before the next batch starts. Result
// ordering follows completion order, not input order.
func (b *BatchProcessor) Process(ctx context.Context, items []any) (*BatchResult, error) {
	b.mu.Lock()
	b.status = schema.WorkflowStatusRunning
	b.results = nil
	b.errs = nil
	b.mu.Unlock()

	ctx = logging.WithWorkflow(ctx, b.workflow.Name)
	pool := NewWorkerPool(b.maxWorkers)
	defer pool.Shutdown()

	for start := 0; start < len(items); start += b.batchSize {
		end := start + b.batchSize
		if end > len(items) {
			end = len(items)
		}

		for _, item := range items[start:end] {
			item := item
			if err := pool.Submit(ctx, func(ctx context.Context) error {
				b.processItem(ctx, item)
				return nil
			}); err != nil {
				// Submission only fails on cancellation or shutdown; the
				// item still has to land in exactly one bucket.
				b.recordError(item, err)
			}
		}

		// Join the whole batch before moving on.
		pool.Wait()
	}

	b.mu.Lock()
	b.status = schema.WorkflowStatusCompleted
	result := &BatchResult{
		Workflow:   b.workflow.Name,
		TotalItems: len(b.results) + len(b.errs),
		Results:    b.results,
		Errors:     b.errs,
	}
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "batch processing finished",
		slog.Int("items", result.TotalItems),
		slog.Int("succeeded", len(result.Results)),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// processItem runs one item against an independent workflow copy. A panic
// inside an action is recovered into the item's error entry so one bad item
// cannot take down the batch.
func (b *BatchProcessor) processItem(ctx context.Context, item any) {
	defer func() {
		if r := recover(); r != nil {
			b.recordError(item, fmt.Errorf("panic: %v", r))
		}
	}()

	cp := b.workflow.Clone()
	cp.Context[ItemContextKey] = item

	if err := cp.Execute(ctx); err != nil {
		b.recordError(item, err)
		return
	}

	b.mu.Lock()
	b.results = append(b.results, ItemResult{Item: item, Context: cp.Context})
	b.mu.Unlock()
}

func (b *BatchProcessor) recordError(item any, err error) {
	flowErr := schema.NewErrorf(schema.ErrCodeBatchItem,
		"item %v: %s", item, err.Error()).WithCause(err)
	b.mu.Lock()
	b.errs = append(b.errs, ItemError{Item: item, Err: flowErr, Msg: flowErr.Message})
	b.mu.Unlock()
}

// Status returns the processor's current lifecycle status.
func (b *BatchProcessor) Status() schema.WorkflowStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}
