package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_SameKeyRunsInOrder(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4, 8)

	var mu sync.Mutex
	order := make(map[string][]int)
	for i := 0; i < 50; i++ {
		for _, key := range []string{"lobby", "survival", "creative"} {
			i, key := i, key
			require.NoError(t, pool.Submit(key, func(ctx context.Context) {
				mu.Lock()
				defer mu.Unlock()
				order[key] = append(order[key], i)
			}))
		}
	}
	pool.Stop()

	for key, seen := range order {
		require.Len(t, seen, 50, key)
		for i, v := range seen {
			assert.Equal(t, i, v, key)
		}
	}
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, 2)
	pool.Stop()
	pool.Stop()

	err := pool.Submit("lobby", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrWorkerPoolStopped)
}

func TestWorkerPool_StopRunsQueuedJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 16)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(fmt.Sprint(i), func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}))
	}
	pool.Stop()
	assert.Equal(t, int32(10), ran.Load())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 4)
	done := make(chan struct{})
	require.NoError(t, pool.Submit("lobby", func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, pool.Submit("lobby", func(ctx context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	pool.Stop()
}

func TestWorkerPool_SubmitUnblocksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(ctx, 1, 1)
	release := make(chan struct{})
	defer close(release)

	// occupy the worker and fill its queue
	require.NoError(t, pool.Submit("a", func(ctx context.Context) { <-release }))
	require.NoError(t, pool.Submit("a", func(ctx context.Context) {}))

	errs := make(chan error, 1)
	go func() {
		errs <- pool.Submit("a", func(ctx context.Context) {})
	}()
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrWorkerPoolStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("submit stayed blocked after cancel")
	}
}
