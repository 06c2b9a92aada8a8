package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestPool(t *testing.T, cfg GoroutinePoolConfig) *GoroutinePool {
	t.Helper()
	p := NewGoroutinePool(cfg, zaptest.NewLogger(t))
	t.Cleanup(p.Close)
	return p
}

func TestGoroutinePool_Defaults(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{}, nil)
	defer p.Close()

	assert.Equal(t, DefaultGoroutinePoolConfig().MaxWorkers, p.maxWorkers)
	assert.Equal(t, DefaultGoroutinePoolConfig().IdleTimeout, p.idleTimeout)
	assert.Equal(t, DefaultGoroutinePoolConfig().QueueSize, cap(p.taskQueue))
}

func TestGoroutinePool_ZeroQueueSizeStillRunsTasks(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 0})

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), "zero-queue", func(ctx context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int32(20), ran.Load())
}

func TestGoroutinePool_SubmitRunsTasks(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 16})

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), "count", func(ctx context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(10), ran.Load())
	assert.Eventually(t, func() bool {
		return p.Stats().Completed == 10
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(10), p.Stats().Submitted)
}

func TestGoroutinePool_FailedAndPanickedTasksAreCounted(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 4})

	require.NoError(t, p.Submit(context.Background(), "fail", func(ctx context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, p.Submit(context.Background(), "panic", func(ctx context.Context) error {
		panic("kaboom")
	}))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "after", func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking task")
	}

	assert.Eventually(t, func() bool {
		s := p.Stats()
		return s.Failed == 2 && s.Panicked == 1 && s.Completed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGoroutinePool_RejectsWhenFull(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	// Occupies the only queue slot.
	require.NoError(t, p.Submit(context.Background(), "queued", func(ctx context.Context) error { return nil }))

	err := p.Submit(context.Background(), "overflow", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(release)
}

func TestGoroutinePool_SkipsCancelledTasks(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	require.NoError(t, p.Submit(ctx, "cancelled", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))

	assert.Eventually(t, func() bool { return p.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, ran.Load())
}

func TestGoroutinePool_CloseDrainsAndRejects(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 8}, zaptest.NewLogger(t))

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), "work", func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		}))
	}

	p.Close()
	assert.Equal(t, int32(5), ran.Load())
	assert.Equal(t, 0, p.Stats().Workers)

	err := p.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Idempotent.
	p.Close()
}

func TestGoroutinePool_IdleWorkersRetire(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 8, IdleTimeout: 20 * time.Millisecond})

	var wg sync.WaitGroup
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), "hold", func(ctx context.Context) error {
			defer wg.Done()
			<-release
			return nil
		}))
	}
	close(release)
	wg.Wait()

	assert.Eventually(t, func() bool { return p.Stats().Workers == 1 }, time.Second, 5*time.Millisecond)
}
