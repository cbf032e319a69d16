package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"redline/internal/config"
	"redline/internal/fault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := config.WorkflowConfig{Workers: 2, BackoffBaseMillis: 1}
	r := NewRunner(cfg)
	r.Start()
	t.Cleanup(r.Stop)
	return r
}

func TestSubmit_RunsTask(t *testing.T) {
	r := newTestRunner(t)

	var ran atomic.Bool
	h, err := r.Submit(Task{
		Kind: "test",
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, ran.Load())
}

func TestSubmit_NilRunRejected(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Submit(Task{Kind: "broken"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestSubmit_DeduplicatesOnIdempotencyKey(t *testing.T) {
	r := newTestRunner(t)

	release := make(chan struct{})
	var runs atomic.Int32
	task := Task{
		Kind:           "dedup",
		IdempotencyKey: "blog-1/v-1",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return nil
		},
	}

	h1, err := r.Submit(task)
	require.NoError(t, err)
	h2, err := r.Submit(task)
	require.NoError(t, err)
	assert.Same(t, h1, h2, "same key while in flight must return the same handle")

	close(release)
	require.NoError(t, h1.Wait(context.Background()))
	assert.Equal(t, int32(1), runs.Load())

	// After completion the key is free again.
	h3, err := r.Submit(Task{
		Kind:           "dedup",
		IdempotencyKey: "blog-1/v-1",
		Run:            func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)
	assert.NotSame(t, h1, h3)
	require.NoError(t, h3.Wait(context.Background()))
}

func TestRetries_TransientFailureEventuallySucceeds(t *testing.T) {
	r := newTestRunner(t)

	var attempts atomic.Int32
	h, err := r.Submit(Task{
		Kind:       "flaky",
		MaxRetries: 3,
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return fault.New(fault.Unavailable, "transient outage")
			}
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetries_PermanentFailureNotRetried(t *testing.T) {
	r := newTestRunner(t)

	var attempts atomic.Int32
	h, err := r.Submit(Task{
		Kind:       "invalid",
		MaxRetries: 3,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return fault.New(fault.Validation, "bad input")
		},
	})
	require.NoError(t, err)
	err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Equal(t, int32(1), attempts.Load(), "contract violations must not retry")
}

func TestRetries_Exhaustion(t *testing.T) {
	r := newTestRunner(t)

	var attempts atomic.Int32
	h, err := r.Submit(Task{
		Kind:       "down",
		MaxRetries: 2,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return fault.New(fault.Unavailable, "still down")
		},
	})
	require.NoError(t, err)
	err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
}

func TestTaskTimeout(t *testing.T) {
	r := newTestRunner(t)

	h, err := r.Submit(Task{
		Kind:    "slow",
		Timeout: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			select {
			case <-time.After(5 * time.Second):
				return nil
			case <-ctx.Done():
				return fault.Wrap(fault.Timeout, ctx.Err(), "took too long")
			}
		},
	})
	require.NoError(t, err)
	err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
}

func TestRunSync(t *testing.T) {
	r := newTestRunner(t)

	var attempts int
	err := r.RunSync(context.Background(), Task{
		Kind:       "sync",
		MaxRetries: 1,
		Run: func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				return fault.New(fault.Unavailable, "first try fails")
			}
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestStop_RejectsNewWork(t *testing.T) {
	cfg := config.WorkflowConfig{Workers: 1, BackoffBaseMillis: 1}
	r := NewRunner(cfg)
	r.Start()
	r.Stop()

	_, err := r.Submit(Task{Kind: "late", Run: func(ctx context.Context) error { return nil }})
	require.Error(t, err)
	assert.Equal(t, fault.Unavailable, fault.KindOf(err))
}

func TestConcurrentSubmissions(t *testing.T) {
	r := newTestRunner(t)

	var done atomic.Int32
	var wg sync.WaitGroup
	handles := make([]*Handle, 0, 20)
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Submit(Task{
				Kind: "burst",
				Run: func(ctx context.Context) error {
					done.Add(1)
					return nil
				},
			})
			if err == nil {
				mu.Lock()
				handles = append(handles, h)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for _, h := range handles {
		require.NoError(t, h.Wait(context.Background()))
	}
	assert.Equal(t, int32(20), done.Load())
}
