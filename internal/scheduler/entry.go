package scheduler

import (
	"fmt"
	"time"

	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

// State is the lifecycle state of an [Entry].
type State int

const (
	// StatePending means the entry is tracked but no load has been submitted.
	StatePending State = iota

	// StateLoading means a load job has been submitted and its result has not
	// been applied yet. A failed load also stays here, flagged, until the
	// entry is dropped.
	StateLoading

	// StateActive means the entry owns a live backend voice.
	StateActive

	// StateDead is terminal. Dead entries are removed from the registry in
	// the same tick.
	StateDead
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DeathReason records why an entry turned Dead.
type DeathReason int

const (
	ReasonNone DeathReason = iota
	ReasonOutOfRange
	ReasonEvicted
	ReasonEmitterGone
	ReasonLoadTimeout
	ReasonShutdown
)

// String returns the reason as used in logs and metric attributes.
func (r DeathReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonOutOfRange:
		return "out_of_range"
	case ReasonEvicted:
		return "evicted"
	case ReasonEmitterGone:
		return "emitter_gone"
	case ReasonLoadTimeout:
		return "load_timeout"
	case ReasonShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (r DeathReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Entry is the scheduler's record for one tracked emitter. Entries are owned
// by the simulation goroutine; nothing else may read or write them.
type Entry struct {
	id   voice.EmitterID
	desc voice.Descriptor
	seq  uint64

	// Listener-relative kinematics, refreshed every tick.
	position vec.Vec3
	velocity vec.Vec3
	distance float64

	// handle is set only by the load completion closure and only while the
	// entry is Active.
	handle voice.Handle
	state  State
	isNew  bool

	lastSeen   uint64
	loadStart  time.Time
	loadFailed bool

	deadFrom State
	reason   DeathReason
}

// ID returns the emitter the entry tracks.
func (e *Entry) ID() voice.EmitterID { return e.id }

// State returns the current lifecycle state.
func (e *Entry) State() State { return e.state }

// Handle returns the live voice handle, or zero unless the entry is Active.
func (e *Entry) Handle() voice.Handle { return e.handle }

// Distance returns the distance to the listener as of the last tick.
func (e *Entry) Distance() float64 { return e.distance }

// EntryInfo is an immutable copy of an [Entry] safe to hand to other
// goroutines.
type EntryInfo struct {
	Emitter    voice.EmitterID `json:"emitter"`
	Source     string          `json:"source"`
	State      State           `json:"state"`
	Distance   float64         `json:"distance"`
	Position   vec.Vec3        `json:"position"`
	Handle     voice.Handle    `json:"handle,omitempty"`
	LoadFailed bool            `json:"load_failed,omitempty"`
	Seq        uint64          `json:"seq"`
}

// Snapshot returns an immutable copy of e.
func (e *Entry) Snapshot() EntryInfo {
	return EntryInfo{
		Emitter:    e.id,
		Source:     e.desc.Source,
		State:      e.state,
		Distance:   e.distance,
		Position:   e.position,
		Handle:     e.handle,
		LoadFailed: e.loadFailed,
		Seq:        e.seq,
	}
}
