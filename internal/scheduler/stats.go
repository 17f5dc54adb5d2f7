package scheduler

import (
	"log/slog"
	"time"
)

// TickStats summarises one scheduling pass.
type TickStats struct {
	Tick       uint64        `json:"tick"`
	Candidates int           `json:"candidates"`
	Tracked    int           `json:"tracked"`
	Active     int           `json:"active"`
	Loading    int           `json:"loading"`
	Inserted   int           `json:"inserted"`
	Duration   time.Duration `json:"duration_ns"`

	LoadsSubmitted   int `json:"loads_submitted"`
	UnloadsSubmitted int `json:"unloads_submitted"`

	// Entries that turned Dead this tick, by reason.
	Evicted    int `json:"evicted"`
	OutOfRange int `json:"out_of_range"`
	Gone       int `json:"gone"`
	TimedOut   int `json:"timed_out"`
}

func (st *TickStats) count(r DeathReason) {
	switch r {
	case ReasonEvicted:
		st.Evicted++
	case ReasonOutOfRange:
		st.OutOfRange++
	case ReasonEmitterGone:
		st.Gone++
	case ReasonLoadTimeout:
		st.TimedOut++
	}
}

// overflowWindow accumulates capacity overflow between two summaries.
type overflowWindow struct {
	ticks   int
	evicted int
	peak    int
}

// summarize logs a capacity overflow summary at most once per summary
// interval. Overflow is the normal steady state, so individual evictions are
// never logged.
func (s *Scheduler) summarize(now time.Time, st *TickStats) {
	if st.Evicted == 0 {
		return
	}
	s.overflow.ticks++
	s.overflow.evicted += st.Evicted
	s.overflow.peak = max(s.overflow.peak, len(s.ranked))

	if !s.summary.AllowN(now, 1) {
		return
	}
	slog.Info("scheduler: capacity overflow",
		"max_voices", s.maxVoices,
		"peak_candidates", s.overflow.peak,
		"evicted", s.overflow.evicted,
		"ticks", s.overflow.ticks,
	)
	s.overflow = overflowWindow{}
}
