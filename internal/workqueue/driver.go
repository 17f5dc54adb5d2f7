package workqueue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	// DefaultSlice is the per-iteration run budget of a [Driver].
	DefaultSlice = 100 * time.Millisecond

	// DefaultMinSleep is the shortest pause between slices.
	DefaultMinSleep = 10 * time.Millisecond
)

// DriverOption configures a [Driver].
type DriverOption func(*Driver)

// WithSlice sets the run budget per iteration.
func WithSlice(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d > 0 {
			dr.slice = d
		}
	}
}

// WithMinSleep sets the minimum pause between iterations.
func WithMinSleep(d time.Duration) DriverOption {
	return func(dr *Driver) {
		if d > 0 {
			dr.minSleep = d
		}
	}
}

// Driver is the background goroutine body that drains a [Queue] in time
// slices and sleeps in between.
type Driver struct {
	q        *Queue
	slice    time.Duration
	minSleep time.Duration

	// lastSlice is the unix-nano timestamp of the last completed iteration.
	lastSlice atomic.Int64
}

// NewDriver creates a Driver for q.
func NewDriver(q *Queue, opts ...DriverOption) *Driver {
	d := &Driver{
		q:        q,
		slice:    DefaultSlice,
		minSleep: DefaultMinSleep,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run loops until ctx is cancelled: each iteration runs the queue for one
// slice, then sleeps for the rest of the slice but never less than the
// minimum sleep. Run returns nil on cancellation; remaining jobs are left for
// [Driver.Drain].
func (d *Driver) Run(ctx context.Context) error {
	slog.Info("workqueue: driver started", "slice", d.slice, "min_sleep", d.minSleep)
	timer := time.NewTimer(d.slice)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			slog.Info("workqueue: driver stopped", "pending", d.q.Len())
			return nil
		}
		elapsed := d.q.RunFor(d.slice)
		d.lastSlice.Store(time.Now().UnixNano())

		timer.Reset(max(d.minSleep, d.slice-elapsed))
		select {
		case <-ctx.Done():
			slog.Info("workqueue: driver stopped", "pending", d.q.Len())
			return nil
		case <-timer.C:
		}
	}
}

// Drain runs queued jobs until the queue is empty or budget has elapsed, and
// reports whether the queue ended empty. It is meant for shutdown, after
// [Driver.Run] has returned.
func (d *Driver) Drain(budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for d.q.Len() > 0 {
		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		d.q.RunFor(min(left, d.slice))
	}
	d.lastSlice.Store(time.Now().UnixNano())
	return d.q.Len() == 0
}

// LastSlice returns when the driver last completed an iteration, or the zero
// time if it never ran.
func (d *Driver) LastSlice() time.Time {
	ns := d.lastSlice.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
