package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_RequiresProcessor(t *testing.T) {
	_, err := NewPool[int](1, 1, nil)
	assert.ErrorIs(t, err, ErrNilProcessor)
}

func TestPool_ProcessesAllItems(t *testing.T) {
	var sum int64
	pool, err := NewPool(4, 64, func(_ context.Context, n int64) error {
		atomic.AddInt64(&sum, n)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, pool.TrySubmit(i))
	}
	pool.Stop()

	assert.Equal(t, int64(55), atomic.LoadInt64(&sum))

	submitted, processed, failed, dropped := pool.Stats()
	assert.Equal(t, int64(10), submitted)
	assert.Equal(t, int64(10), processed)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestPool_CountsFailures(t *testing.T) {
	pool, err := NewPool(1, 8, func(_ context.Context, fail bool) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.TrySubmit(true))
	require.NoError(t, pool.TrySubmit(false))
	pool.Stop()

	_, processed, failed, _ := pool.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(1), failed)
}

func TestPool_TrySubmitQueueFull(t *testing.T) {
	block := make(chan struct{})
	pool, err := NewPool(1, 1, func(_ context.Context, _ int) error {
		<-block
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	// First item occupies the worker, second fills the queue.
	require.NoError(t, pool.TrySubmit(1))

	// The worker may not have picked up the first item yet; keep filling
	// until the queue rejects.
	deadline := time.After(time.Second)
	for {
		if err := pool.TrySubmit(2); errors.Is(err, ErrQueueFull) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("queue never filled")
		default:
		}
	}

	close(block)
	pool.Stop()
}

func TestPool_SubmitBeforeStartAndAfterStop(t *testing.T) {
	pool, err := NewPool(1, 1, func(_ context.Context, _ int) error { return nil })
	require.NoError(t, err)

	assert.ErrorIs(t, pool.TrySubmit(1), ErrStopped)

	require.NoError(t, pool.Start(context.Background()))
	pool.Stop()

	assert.ErrorIs(t, pool.TrySubmit(1), ErrStopped)
}

func TestPool_ConcurrentSubmitAndStop(t *testing.T) {
	// A submitter racing Stop must get ErrStopped or a clean enqueue,
	// never a send on the closed queue.
	for i := 0; i < 200; i++ {
		pool, err := NewPool(2, 4, func(_ context.Context, _ int) error { return nil })
		require.NoError(t, err)
		require.NoError(t, pool.Start(context.Background()))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; ; j++ {
				if err := pool.TrySubmit(j); errors.Is(err, ErrStopped) {
					return
				}
			}
		}()

		pool.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("submitter never observed stop")
		}
	}
}

func TestPool_DoubleStartFails(t *testing.T) {
	pool, err := NewPool(1, 1, func(_ context.Context, _ int) error { return nil })
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	assert.Error(t, pool.Start(context.Background()))
	pool.Stop()
}
