// Package workflow runs background tasks on a fixed worker pool with
// per-task timeouts, capped retries with exponential backoff, and
// idempotency-key deduplication. The evaluation pipeline and rewrite
// orchestrator submit their work here instead of spawning goroutines.
package workflow

import (
	"context"
	"sync"
	"time"

	"redline/internal/config"
	"redline/internal/fault"
	"redline/internal/logging"
)

// Task is one unit of background work.
type Task struct {
	// Kind names the task family for logs.
	Kind string

	// IdempotencyKey deduplicates concurrent submissions: while a task
	// with this key is queued or running, submitting the same key
	// returns the in-flight handle instead of enqueuing again. Empty
	// disables deduplication.
	IdempotencyKey string

	// MaxRetries is how many times a failed run is retried. Retries only
	// make sense for idempotent work; non-idempotent tasks set 0 or 1.
	MaxRetries int

	// Timeout bounds a single attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	// Run does the work. It must respect ctx.
	Run func(ctx context.Context) error
}

// Handle tracks a submitted task.
type Handle struct {
	key  string
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Done is closed when the task has finished, successfully or not.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the final error. Valid after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the task finishes or ctx expires.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return fault.Wrap(fault.Timeout, ctx.Err(), "wait for task canceled")
	}
}

type job struct {
	task   Task
	handle *Handle
}

// Runner is the worker pool.
type Runner struct {
	workers     int
	backoffBase time.Duration

	queue    chan *job
	inflight map[string]*Handle
	mu       sync.Mutex
	stopMu   sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRunner builds a runner from workflow configuration. Call Start before
// submitting.
func NewRunner(cfg config.WorkflowConfig) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		workers:     cfg.Workers,
		backoffBase: cfg.BackoffBase(),
		queue:       make(chan *job, cfg.Workers*4),
		inflight:    make(map[string]*Handle),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		logging.Workflow("Starting runner with %d workers", r.workers)
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go r.worker()
		}
	})
}

// Stop cancels outstanding work and waits for the workers to exit.
// Subsequent Submit calls fail.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stopMu.Lock()
		r.stopped = true
		r.cancel()
		close(r.queue)
		r.stopMu.Unlock()
		r.wg.Wait()
		logging.Workflow("Runner stopped")
	})
}

// Submit enqueues a task. If a task with the same idempotency key is still
// in flight, its handle is returned and nothing new is enqueued.
func (r *Runner) Submit(task Task) (*Handle, error) {
	if task.Run == nil {
		return nil, fault.New(fault.Validation, "task %q has no Run function", task.Kind)
	}
	r.stopMu.RLock()
	defer r.stopMu.RUnlock()
	if r.stopped {
		return nil, fault.New(fault.Unavailable, "runner is stopped")
	}

	r.mu.Lock()
	if task.IdempotencyKey != "" {
		if existing, ok := r.inflight[task.IdempotencyKey]; ok {
			r.mu.Unlock()
			logging.WorkflowDebug("Task %s deduplicated on key %s", task.Kind, task.IdempotencyKey)
			return existing, nil
		}
	}
	h := &Handle{key: task.IdempotencyKey, done: make(chan struct{})}
	if task.IdempotencyKey != "" {
		r.inflight[task.IdempotencyKey] = h
	}
	r.mu.Unlock()

	select {
	case r.queue <- &job{task: task, handle: h}:
		return h, nil
	case <-r.ctx.Done():
		r.finish(h, fault.New(fault.Unavailable, "runner is stopped"))
		return nil, fault.New(fault.Unavailable, "runner is stopped")
	}
}

// RunSync executes a task inline with the same retry and timeout semantics
// as the pool, for callers that need the result immediately.
func (r *Runner) RunSync(ctx context.Context, task Task) error {
	if task.Run == nil {
		return fault.New(fault.Validation, "task %q has no Run function", task.Kind)
	}
	return r.execute(ctx, task)
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for j := range r.queue {
		err := r.execute(r.ctx, j.task)
		r.finish(j.handle, err)
	}
}

func (r *Runner) finish(h *Handle, err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	if h.key != "" {
		r.mu.Lock()
		if r.inflight[h.key] == h {
			delete(r.inflight, h.key)
		}
		r.mu.Unlock()
	}
	close(h.done)
}

func (r *Runner) execute(ctx context.Context, task Task) error {
	timer := logging.StartTimer(logging.CategoryWorkflow, task.Kind)
	defer timer.Stop()

	var lastErr error
	for attempt := 0; attempt <= task.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoffBase << (attempt - 1)
			logging.WorkflowDebug("Task %s retry %d/%d after %v: %v",
				task.Kind, attempt, task.MaxRetries, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fault.Wrap(fault.Timeout, ctx.Err(), "task %s canceled during backoff", task.Kind)
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if task.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		}
		lastErr = task.Run(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			logging.WorkflowDebug("Task %s failed permanently: %v", task.Kind, lastErr)
			return lastErr
		}
	}
	logging.Workflow("Task %s exhausted %d retries: %v", task.Kind, task.MaxRetries, lastErr)
	return lastErr
}

// retryable reports whether another attempt could help. Contract violations
// and state-machine refusals never heal on retry; timeouts and outages can.
func retryable(err error) bool {
	switch fault.KindOf(err) {
	case fault.Validation, fault.Forbidden, fault.InvalidState,
		fault.InvalidVersion, fault.ApprovedContent, fault.CapExceeded,
		fault.Internal:
		return false
	}
	return true
}
