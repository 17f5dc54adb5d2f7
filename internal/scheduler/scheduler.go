// Package scheduler decides, once per simulation tick, which sound emitters
// own a live backend voice.
//
// The [Scheduler] tracks candidate emitters in a [Registry], ranks them by
// distance to the listener and keeps at most maxVoices of them. Keeping an
// entry means submitting its voice load to the background work queue;
// dropping it means submitting an unload. Load results come back through the
// main-thread dispatcher, so every registry mutation happens on the
// simulation goroutine and the registry itself needs no locks.
//
// Lifecycle of an entry:
//
//	Pending ──load submitted──► Loading ──load applied──► Active
//	   │                           │                        │
//	   └───────────────────────────┴────────────────────────┴──► Dead (removed)
//
// Ranking is closest-wins: the maxVoices nearest non-dead entries are kept,
// ties broken by insertion order. Loading entries take part in ranking and
// hold their slot until they resolve or fall out of the top maxVoices.
package scheduler

import (
	"cmp"
	"context"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

const (
	// DefaultMaxVoices is the voice cap used when none is configured.
	DefaultMaxVoices = 32

	// DefaultSummaryInterval is the minimum time between capacity overflow
	// log summaries.
	DefaultSummaryInterval = 10 * time.Second
)

// Enqueuer accepts closures for later execution on some other goroutine.
// Both the background work queue and the main-thread dispatcher satisfy it.
type Enqueuer interface {
	Enqueue(job func())
}

// Attacher is notified when an emitter gains or loses its live voice. Both
// methods are called on the simulation goroutine.
type Attacher interface {
	AttachVoice(id voice.EmitterID, h voice.Handle)
	DetachVoice(id voice.EmitterID)
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithMaxVoices sets the voice cap. Values below 1 are ignored.
func WithMaxVoices(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxVoices = n
		}
	}
}

// WithAttenuator sets the distance policy for volume and pitch. Defaults to
// [voice.LinearClamp].
func WithAttenuator(a voice.Attenuator) Option {
	return func(s *Scheduler) {
		if a != nil {
			s.att = a
		}
	}
}

// WithLoadTimeout bounds how long an entry may stay Loading before it is
// given up. Zero, the default, waits forever.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.loadTimeout = d
		}
	}
}

// WithAttacher installs the voice attach/detach hook.
func WithAttacher(a Attacher) Option {
	return func(s *Scheduler) { s.attacher = a }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock replaces the time source. Tests use it to drive load timeouts
// and summary throttling.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithContext sets the parent context for backend calls made by background
// jobs. Cancelling it makes pending Create calls fail fast.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithSummaryInterval sets the minimum time between capacity overflow log
// summaries.
func WithSummaryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.summaryEvery = d
		}
	}
}

// Scheduler is the per-tick voice selector. All methods must be called from
// the simulation goroutine, the same goroutine that drains the main
// Enqueuer passed to [New].
type Scheduler struct {
	backend voice.Backend
	work    Enqueuer
	main    Enqueuer

	maxVoices    int
	att          voice.Attenuator
	loadTimeout  time.Duration
	attacher     Attacher
	metrics      *observe.Metrics
	now          func() time.Time
	ctx          context.Context
	summaryEvery time.Duration

	reg    *Registry
	ranked []*Entry
	cands  []voice.Candidate

	tick     uint64
	active   int
	inflight int
	closed   bool

	summary  *rate.Limiter
	overflow overflowWindow
	last     TickStats
}

// New creates a Scheduler driving backend. Blocking backend calls are
// submitted to work; their results are posted back through main.
func New(backend voice.Backend, work, main Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		backend:      backend,
		work:         work,
		main:         main,
		maxVoices:    DefaultMaxVoices,
		att:          voice.LinearClamp{},
		now:          time.Now,
		ctx:          context.Background(),
		summaryEvery: DefaultSummaryInterval,
		reg:          NewRegistry(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.summary = rate.NewLimiter(rate.Every(s.summaryEvery), 1)
	return s
}

// MaxVoices returns the current voice cap.
func (s *Scheduler) MaxVoices() int { return s.maxVoices }

// SetMaxVoices changes the voice cap. The new cap takes effect at the next
// tick; loads completing before then are discarded if they would exceed it.
func (s *Scheduler) SetMaxVoices(n int) {
	if n > 0 {
		s.maxVoices = n
	}
}

// SetAttenuator replaces the distance policy.
func (s *Scheduler) SetAttenuator(a voice.Attenuator) {
	if a != nil {
		s.att = a
	}
}

// SetLoadTimeout replaces the load timeout. Zero disables it.
func (s *Scheduler) SetLoadTimeout(d time.Duration) {
	if d >= 0 {
		s.loadTimeout = d
	}
}

// Stats returns the statistics of the last tick.
func (s *Scheduler) Stats() TickStats { return s.last }

// Active returns the number of entries currently owning a voice.
func (s *Scheduler) Active() int { return s.active }

// InFlight returns the number of loads whose result has not been applied.
func (s *Scheduler) InFlight() int { return s.inflight }

// Entries returns snapshots of all tracked entries in insertion order.
func (s *Scheduler) Entries() []EntryInfo {
	out := make([]EntryInfo, 0, s.reg.Len())
	s.reg.Each(func(e *Entry) { out = append(out, e.Snapshot()) })
	return out
}

// Step samples feed once, collects this tick's candidates from src and runs
// [Scheduler.Tick]. The candidate buffer is reused across ticks.
func (s *Scheduler) Step(feed voice.ListenerFeed, src voice.CandidateSource) TickStats {
	l := feed.Current()
	s.cands = src.Candidates(s.cands[:0])
	return s.Tick(l, s.cands)
}

// Tick runs one scheduling pass against the listener snapshot l.
// candidates is only read during the call.
func (s *Scheduler) Tick(l voice.Listener, candidates []voice.Candidate) TickStats {
	if s.closed {
		return TickStats{Tick: s.tick}
	}
	start := s.now()
	s.tick++
	st := TickStats{Tick: s.tick, Candidates: len(candidates)}

	s.ingest(l, candidates, &st)
	s.expireLoads(start, &st)
	s.rank()
	s.selectAndAdvance(&st)
	s.sweep(&st)

	st.Tracked = s.reg.Len()
	st.Active = s.active
	st.Duration = s.now().Sub(start)
	s.metrics.TickDuration.Record(s.ctx, st.Duration.Seconds())
	s.summarize(start, &st)
	s.last = st
	return st
}

// ingest creates, refreshes or kills entries from this tick's candidates.
// Tracked entries absent from the list are treated as gone.
func (s *Scheduler) ingest(l voice.Listener, candidates []voice.Candidate, st *TickStats) {
	for i := range candidates {
		c := &candidates[i]
		dist := vec.Distance(l.Position, c.Position)

		e, tracked := s.reg.Get(c.Emitter)
		if !tracked {
			if !c.Alive || dist > c.Descriptor.MaxDistance {
				continue
			}
			e = s.reg.Insert(c)
			s.metrics.TrackedEntries.Add(s.ctx, 1)
			st.Inserted++
		}
		e.lastSeen = s.tick
		e.position = l.Local(c.Position)
		e.velocity = l.LocalVelocity(c.Velocity)
		e.distance = dist

		switch {
		case !c.Alive:
			s.markDead(e, ReasonEmitterGone, st)
		case dist > e.desc.MaxDistance:
			s.markDead(e, ReasonOutOfRange, st)
		}
	}

	s.reg.Each(func(e *Entry) {
		if e.lastSeen != s.tick {
			s.markDead(e, ReasonEmitterGone, st)
		}
	})
}

// expireLoads gives up on entries that have been waiting for their voice
// longer than the load timeout.
func (s *Scheduler) expireLoads(now time.Time, st *TickStats) {
	if s.loadTimeout <= 0 {
		return
	}
	s.reg.Each(func(e *Entry) {
		if e.state == StateLoading && !e.loadFailed && now.Sub(e.loadStart) > s.loadTimeout {
			s.markDead(e, ReasonLoadTimeout, st)
		}
	})
}

// rank fills s.ranked with the live entries ordered by distance, then by
// insertion order.
func (s *Scheduler) rank() {
	clear(s.ranked)
	s.ranked = s.ranked[:0]
	s.reg.Each(func(e *Entry) {
		if e.state != StateDead {
			s.ranked = append(s.ranked, e)
		}
	})
	slices.SortStableFunc(s.ranked, func(a, b *Entry) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// selectAndAdvance keeps the closest maxVoices entries, advances their
// state and evicts the rest. Entries whose load failed hold no voice and
// take no slot; they stay tracked so the load is not retried.
func (s *Scheduler) selectAndAdvance(st *TickStats) {
	kept := 0
	for _, e := range s.ranked {
		if e.loadFailed {
			continue
		}
		if kept >= s.maxVoices {
			s.markDead(e, ReasonEvicted, st)
			continue
		}
		kept++
		switch e.state {
		case StatePending:
			s.submitLoad(e)
			st.LoadsSubmitted++
		case StateLoading:
			st.Loading++
		case StateActive:
			s.apply(e)
		}
	}
}

// sweep issues unloads for entries that died while Active and removes every
// Dead entry from the registry.
func (s *Scheduler) sweep(st *TickStats) {
	removed := s.reg.Sweep(func(e *Entry) {
		if e.deadFrom != StateActive {
			return
		}
		h := e.handle
		e.handle = 0
		s.submitUnload(e.id, h, e.reason)
		st.UnloadsSubmitted++
		if s.attacher != nil {
			s.attacher.DetachVoice(e.id)
		}
	})
	if removed > 0 {
		s.metrics.TrackedEntries.Add(s.ctx, -int64(removed))
	}
}

// apply pushes the entry's current parameters to its voice. The setters are
// non-blocking by contract, so this runs on the simulation goroutine.
func (s *Scheduler) apply(e *Entry) {
	p := s.att.Attenuate(e.desc, e.distance)
	s.backend.SetPosition(e.handle, e.position)
	s.backend.SetVelocity(e.handle, e.velocity)
	s.backend.SetVolume(e.handle, p.Volume)
	s.backend.SetPitch(e.handle, p.Pitch)
}

// markDead moves e to Dead and records why. It reports false, doing
// nothing, if e is already Dead.
func (s *Scheduler) markDead(e *Entry, reason DeathReason, st *TickStats) bool {
	if e.state == StateDead {
		return false
	}
	e.deadFrom = e.state
	e.reason = reason
	e.state = StateDead
	if e.deadFrom == StateActive {
		s.active--
		s.metrics.ActiveVoices.Add(s.ctx, -1)
	}
	s.metrics.RecordEviction(s.ctx, reason.String())
	if st != nil {
		st.count(reason)
	}
	return true
}

// Shutdown marks every tracked entry Dead, submits unloads for the active
// ones and returns how many unloads were submitted. Later ticks are no-ops;
// loads still in flight are destroyed when their results arrive.
func (s *Scheduler) Shutdown() int {
	if s.closed {
		return 0
	}
	var st TickStats
	s.reg.Each(func(e *Entry) { s.markDead(e, ReasonShutdown, &st) })
	s.sweep(&st)
	s.closed = true
	return st.UnloadsSubmitted
}
