package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedWork(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Shutdown()

	var count int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}))
	}
	pool.Wait()

	assert.EqualValues(t, 10, atomic.LoadInt64(&count))
	m := pool.Metrics()
	assert.EqualValues(t, 10, m.Completed)
	assert.EqualValues(t, 0, m.Failed)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const size = 2
	pool := NewWorkerPool(size)
	defer pool.Shutdown()

	var active, peak int64
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
			cur := atomic.AddInt64(&active, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return nil
		}))
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(size))
}

func TestWorkerPoolCountsFailures(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		return errors.New("nope")
	}))
	pool.Wait()

	assert.EqualValues(t, 1, pool.Metrics().Failed)
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		panic("boom")
	}))
	pool.Wait()

	m := pool.Metrics()
	assert.EqualValues(t, 1, m.Panics)
	assert.EqualValues(t, 1, m.Failed)
}

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()

	err := pool.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)

	// Shutdown is idempotent.
	pool.Shutdown()
}

func TestWorkerPoolSubmitRespectsCancellation(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	}))

	// Pool is full; a cancelled context must not block forever.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	pool.Wait()
}
