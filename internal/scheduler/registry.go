package scheduler

import "github.com/MrWong99/earshot/pkg/voice"

// Registry holds the tracked entries keyed by emitter, in insertion order.
// It is not safe for concurrent use; only the simulation goroutine touches it.
type Registry struct {
	byID    map[voice.EmitterID]*Entry
	entries []*Entry
	seq     uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[voice.EmitterID]*Entry)}
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int { return len(r.entries) }

// Get returns the entry tracking id.
func (r *Registry) Get(id voice.EmitterID) (*Entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Insert starts tracking c as a new Pending entry. The caller must ensure c's
// emitter is not tracked yet.
func (r *Registry) Insert(c *voice.Candidate) *Entry {
	r.seq++
	e := &Entry{
		id:    c.Emitter,
		desc:  c.Descriptor,
		seq:   r.seq,
		state: StatePending,
		isNew: true,
	}
	r.byID[e.id] = e
	r.entries = append(r.entries, e)
	return e
}

// Each calls fn for every entry in insertion order.
func (r *Registry) Each(fn func(*Entry)) {
	for _, e := range r.entries {
		fn(e)
	}
}

// Sweep removes every Dead entry, calling fn on each before removal, and
// returns how many were removed. Insertion order of the survivors is kept.
func (r *Registry) Sweep(fn func(*Entry)) int {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.state != StateDead {
			kept = append(kept, e)
			continue
		}
		if fn != nil {
			fn(e)
		}
		if r.byID[e.id] == e {
			delete(r.byID, e.id)
		}
	}
	removed := len(r.entries) - len(kept)
	clear(r.entries[len(kept):])
	r.entries = kept
	return removed
}
