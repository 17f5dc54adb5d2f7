// Package resilience protects the scheduler from a misbehaving audio backend.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open). [GuardedBackend] wraps a [voice.Backend] so
// that a run of failed voice creations trips the breaker and later loads fail
// fast instead of queueing more slow calls on the background worker.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probe calls needed in the
	// half-open state to close the breaker again. Default: 3.
	HalfOpenMax int

	// Now is the time source. Default: time.Now.
	Now func() time.Time

	// OnStateChange, when set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time
	onChange     func(name string, from, to State)

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenOK      int
	rejected        uint64
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
		onChange:     cfg.OnStateChange,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state at most
// HalfOpenMax probes are in flight at once.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and reports whether it counts as
// a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var from State
	changed := false
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		from, changed = cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		cb.rejected++
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.rejected++
			err = ErrCircuitOpen
		} else {
			cb.halfOpenCalls++
			probe = true
		}
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(from, StateHalfOpen)
	}
	return probe, err
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	from, to, changed := cb.state, cb.state, false
	// A probe that finishes after another probe already re-opened the
	// breaker is accounted as an ordinary call.
	probe = probe && cb.state == StateHalfOpen

	switch {
	case err != nil && probe:
		// Any failed probe re-opens.
		cb.consecutiveFail = cb.maxFailures
		from, changed = cb.transition(StateOpen)
		to = StateOpen
	case err != nil:
		cb.consecutiveFail++
		if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
			from, changed = cb.transition(StateOpen)
			to = StateOpen
		}
	case probe:
		cb.halfOpenCalls--
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMax {
			cb.consecutiveFail = 0
			from, changed = cb.transition(StateClosed)
			to = StateClosed
		}
	default:
		cb.consecutiveFail = 0
	}
	failures := cb.consecutiveFail
	cb.mu.Unlock()

	if changed {
		switch to {
		case StateOpen:
			slog.Warn("resilience: circuit breaker opened", "name", cb.name, "consecutive_failures", failures)
		case StateClosed:
			slog.Info("resilience: circuit breaker closed after successful probes", "name", cb.name)
		}
		cb.notify(from, to)
	}
}

// transition switches to s and resets the per-state counters. Must be called
// with cb.mu held. It reports the previous state and whether anything changed.
func (cb *CircuitBreaker) transition(s State) (State, bool) {
	from := cb.state
	if from == s {
		return from, false
	}
	cb.state = s
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
	return from, true
}

func (cb *CircuitBreaker) notify(from, to State) {
	if to == StateHalfOpen {
		slog.Info("resilience: circuit breaker half-open", "name", cb.name)
	}
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [CircuitBreaker.Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Rejected returns how many calls were refused without running.
func (cb *CircuitBreaker) Rejected() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

// Reset manually forces the breaker back to [StateClosed], clearing all failure
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, changed := cb.transition(StateClosed)
	cb.consecutiveFail = 0
	cb.mu.Unlock()

	slog.Info("resilience: circuit breaker manually reset", "name", cb.name)
	if changed {
		cb.notify(from, StateClosed)
	}
}
