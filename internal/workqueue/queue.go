// Package workqueue implements the background job queue that carries
// blocking voice create and destroy calls off the simulation goroutine.
//
// Producers call [Queue.Enqueue] from any goroutine. A single consumer, the
// [Driver], drains the queue in bounded time slices with [Queue.RunFor] so a
// burst of slow jobs cannot monopolise the background goroutine either.
package workqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/earshot/internal/observe"
)

// compactAt is the number of consumed slots after which the backing slice is
// shifted down instead of grown.
const compactAt = 64

// Option configures a [Queue].
type Option func(*Queue)

// WithClock replaces the time source used for slice budgeting. Tests inject a
// fake clock here.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

// Queue is a thread-safe FIFO of opaque jobs. The zero value is not usable;
// construct with [New].
type Queue struct {
	now     func() time.Time
	metrics *observe.Metrics

	mu     sync.Mutex
	jobs   []func()
	head   int
	closed bool
	run    uint64
}

// New creates an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		now:  time.Now,
		jobs: make([]func(), 0, compactAt),
	}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		q.metrics = observe.DefaultMetrics()
	}
	return q
}

// Enqueue appends job to the queue. It never blocks on job execution. Jobs
// enqueued after [Queue.Close] are dropped with a warning.
func (q *Queue) Enqueue(job func()) {
	if job == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		slog.Warn("workqueue: job dropped, queue closed")
		return
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.metrics.WorkQueueDepth.Add(context.Background(), 1)
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) - q.head
}

// Processed returns the number of jobs run so far.
func (q *Queue) Processed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.run
}

// Close stops the queue from accepting new jobs. Jobs already queued can
// still be run with [Queue.RunFor].
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// RunFor runs jobs in FIFO order until the queue is empty or the elapsed time
// exceeds budget, and returns the elapsed time. At least one job runs per
// call when the queue is non-empty, so a zero budget still makes progress.
// The budget is checked between jobs; a single slow job can overrun it.
//
// RunFor must only be called from one goroutine at a time.
func (q *Queue) RunFor(budget time.Duration) time.Duration {
	ctx := context.Background()
	start := q.now()
	ran := 0
	for {
		job, ok := q.pop()
		if !ok {
			break
		}
		q.metrics.WorkQueueDepth.Add(ctx, -1)
		q.metrics.WorkJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", q.safeRun(job))))
		ran++
		if q.now().Sub(start) >= budget {
			break
		}
	}
	elapsed := q.now().Sub(start)
	if ran > 0 {
		q.metrics.SliceDuration.Record(ctx, elapsed.Seconds())
	}
	return elapsed
}

func (q *Queue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.jobs) {
		return nil, false
	}
	job := q.jobs[q.head]
	q.jobs[q.head] = nil
	q.head++
	q.run++
	switch {
	case q.head == len(q.jobs):
		q.jobs = q.jobs[:0]
		q.head = 0
	case q.head >= compactAt:
		n := copy(q.jobs, q.jobs[q.head:])
		clear(q.jobs[n:])
		q.jobs = q.jobs[:n]
		q.head = 0
	}
	return job, true
}

// safeRun executes job and converts a panic into a logged error so one bad
// job cannot kill the worker.
func (q *Queue) safeRun(job func()) (status string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("workqueue: job panicked", "panic", fmt.Sprint(r))
			status = "panic"
		}
	}()
	job()
	return "ok"
}
