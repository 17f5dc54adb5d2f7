package scheduler

import (
	"testing"
	"time"
)

func TestOverflowSummaryIsThrottled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, WithMaxVoices(1), WithSummaryInterval(10*time.Second))
	crowd := func() TickStats { return h.tick(cand(1, 1), cand(2, 2), cand(3, 3)) }

	// The first overflow is reported at once, which empties the window.
	if st := crowd(); st.Evicted != 2 {
		t.Fatalf("evicted = %d, want 2", st.Evicted)
	}
	if h.sched.overflow != (overflowWindow{}) {
		t.Fatalf("window after first summary = %+v, want empty", h.sched.overflow)
	}

	// Within the interval overflow only accumulates.
	crowd()
	crowd()
	want := overflowWindow{ticks: 2, evicted: 4, peak: 3}
	if h.sched.overflow != want {
		t.Errorf("window = %+v, want %+v", h.sched.overflow, want)
	}

	// Ticks without evictions leave the window alone.
	h.tick(cand(1, 1))
	if h.sched.overflow != want {
		t.Errorf("window changed by a quiet tick: %+v", h.sched.overflow)
	}

	h.clock.advance(10 * time.Second)
	crowd()
	if h.sched.overflow != (overflowWindow{}) {
		t.Errorf("window after interval = %+v, want empty", h.sched.overflow)
	}
}

func TestTickStatsCountReasons(t *testing.T) {
	t.Parallel()
	var st TickStats
	for _, r := range []DeathReason{ReasonEvicted, ReasonEvicted, ReasonOutOfRange, ReasonEmitterGone, ReasonLoadTimeout, ReasonShutdown} {
		st.count(r)
	}
	if st.Evicted != 2 || st.OutOfRange != 1 || st.Gone != 1 || st.TimedOut != 1 {
		t.Errorf("stats = %+v", st)
	}
}
