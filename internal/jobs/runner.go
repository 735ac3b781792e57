// Package jobs runs long operations (inventory crawls, scans) off the RPC
// path on a bounded worker pool with retry and backoff.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobID uniquely identifies a submitted job.
type JobID string

// JobState is the lifecycle state of a job.
type JobState int

const (
	StatePending JobState = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// JobFunc is the unit of work. A returned error triggers a retry with
// exponential backoff until MaxAttempts is exhausted.
type JobFunc func(ctx context.Context) error

// Status is a point-in-time snapshot of a job.
type Status struct {
	ID       JobID
	Name     string
	State    JobState
	Attempts int
	Err      error
	Started  time.Time
	Finished time.Time
}

type job struct {
	id       JobID
	name     string
	fn       JobFunc
	state    JobState
	attempts int
	err      error
	started  time.Time
	finished time.Time
	done     chan struct{}
}

// Runner executes jobs on a fixed pool of workers.
type Runner struct {
	mu   sync.Mutex
	jobs map[JobID]*job

	queue       WorkQueue
	workers     int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retention   time.Duration
	metrics     *Metrics

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// Option configures the Runner.
type Option func(*Runner)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithMaxAttempts sets how many times a failing job is tried.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) { r.maxAttempts = n }
}

// WithBackoff sets the retry backoff window.
func WithBackoff(base, max time.Duration) Option {
	return func(r *Runner) {
		r.baseDelay = base
		r.maxDelay = max
	}
}

// WithRetention sets how long finished jobs stay queryable through Status
// before they are evicted.
func WithRetention(d time.Duration) Option {
	return func(r *Runner) { r.retention = d }
}

// WithMetrics sets the prometheus collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner and starts its workers.
func NewRunner(opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		jobs:           make(map[JobID]*job),
		queue:          NewWorkQueue(),
		workers:        4,
		maxAttempts:    3,
		baseDelay:      time.Second,
		maxDelay:       time.Minute,
		retention:      time.Hour,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

// Submit queues fn for execution and returns its id immediately.
func (r *Runner) Submit(name string, fn JobFunc) JobID {
	id := JobID(uuid.NewString())

	r.mu.Lock()
	r.sweepLocked(time.Now())
	r.jobs[id] = &job{
		id:    id,
		name:  name,
		fn:    fn,
		state: StatePending,
		done:  make(chan struct{}),
	}
	r.mu.Unlock()

	r.queue.Enqueue(id, 0)
	if r.metrics != nil {
		r.metrics.Submitted(name)
		r.metrics.SetQueueDepth(r.queue.Len())
	}

	slog.Debug("job submitted", "job_id", id, "name", name)
	return id
}

// Status returns the current status of a job.
func (r *Runner) Status(id JobID) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Status{}, fmt.Errorf("unknown job %s", id)
	}
	return Status{
		ID:       j.id,
		Name:     j.name,
		State:    j.state,
		Attempts: j.attempts,
		Err:      j.err,
		Started:  j.started,
		Finished: j.finished,
	}, nil
}

// Wait blocks until the job reaches a terminal state or ctx is cancelled.
func (r *Runner) Wait(ctx context.Context, id JobID) (Status, error) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("unknown job %s", id)
	}

	select {
	case <-j.done:
		return r.Status(id)
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Shutdown stops the workers. In-flight jobs observe context cancellation.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.shutdownCancel()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweepLocked evicts jobs that finished more than the retention window
// ago. The map would otherwise grow for the life of the process. Callers
// hold r.mu.
func (r *Runner) sweepLocked(now time.Time) {
	for id, j := range r.jobs {
		if j.state != StateSucceeded && j.state != StateFailed {
			continue
		}
		if now.Sub(j.finished) > r.retention {
			delete(r.jobs, id)
		}
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		id, ok := r.queue.Dequeue()
		if !ok {
			select {
			case <-r.shutdownCtx.Done():
				return
			case <-r.queue.Wait():
			case <-ticker.C:
				// Re-check for items whose delay has elapsed.
			}
			continue
		}
		r.run(id)
	}
}

func (r *Runner) run(id JobID) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	j.state = StateRunning
	j.attempts++
	if j.started.IsZero() {
		j.started = time.Now()
	}
	attempt := j.attempts
	r.mu.Unlock()

	start := time.Now()
	err := j.fn(r.shutdownCtx)
	elapsed := time.Since(start)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		j.state = StateSucceeded
		j.err = nil
		j.finished = time.Now()
		close(j.done)
		if r.metrics != nil {
			r.metrics.Completed(j.name, "success", elapsed)
			r.metrics.SetQueueDepth(r.queue.Len())
		}
		slog.Info("job succeeded", "job_id", id, "name", j.name, "attempts", attempt, "elapsed", elapsed)
		return
	}

	j.err = err
	if attempt >= r.maxAttempts {
		j.state = StateFailed
		j.finished = time.Now()
		close(j.done)
		if r.metrics != nil {
			r.metrics.Completed(j.name, "failure", elapsed)
			r.metrics.SetQueueDepth(r.queue.Len())
		}
		slog.Error("job failed", "job_id", id, "name", j.name, "attempts", attempt, "error", err)
		return
	}

	delay := ExponentialBackoff(attempt-1, r.baseDelay, r.maxDelay)
	j.state = StatePending
	r.queue.Enqueue(id, delay)
	if r.metrics != nil {
		r.metrics.Retried(j.name)
		r.metrics.SetQueueDepth(r.queue.Len())
	}
	slog.Warn("job retry scheduled",
		"job_id", id,
		"name", j.name,
		"attempt", attempt,
		"delay", delay,
		"error", err)
}
