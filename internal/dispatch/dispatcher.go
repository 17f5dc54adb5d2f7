// Package dispatch provides the queue of closures that must execute on the
// simulation goroutine.
//
// Background jobs never touch scheduler state directly. Instead they post a
// closure with [Dispatcher.Enqueue]; the simulation loop calls
// [Dispatcher.RunAll] once per tick, before the scheduler runs, so every
// closure observes and mutates state from the owning goroutine.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/earshot/internal/observe"
)

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// Dispatcher is a thread-safe closure queue drained by a single goroutine.
type Dispatcher struct {
	metrics *observe.Metrics

	mu      sync.Mutex
	pending []func()

	// spare is only touched by the RunAll goroutine. Swapping it with
	// pending keeps the steady state allocation-free.
	spare []func()
}

// New creates an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Enqueue schedules job to run on the next [Dispatcher.RunAll]. Safe to call
// from any goroutine.
func (d *Dispatcher) Enqueue(job func()) {
	if job == nil {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, job)
	d.mu.Unlock()
}

// Len returns the number of closures waiting for the next RunAll.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// RunAll runs every closure that was queued before the call, in FIFO order,
// and returns how many ran. Closures enqueued while RunAll is executing,
// including by the closures themselves, wait for the next call.
func (d *Dispatcher) RunAll() int {
	d.mu.Lock()
	batch := d.pending
	d.pending = d.spare[:0]
	d.mu.Unlock()

	for i, job := range batch {
		d.safeRun(job)
		batch[i] = nil
	}
	d.spare = batch[:0]

	if n := len(batch); n > 0 {
		d.metrics.DispatchJobs.Add(context.Background(), int64(n))
		return n
	}
	return 0
}

func (d *Dispatcher) safeRun(job func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: closure panicked", "panic", fmt.Sprint(r))
		}
	}()
	job()
}
