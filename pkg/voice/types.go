// Package voice defines the boundary types between the voice scheduler and
// the world around it: the per-emitter sound [Descriptor], the per-tick
// [Candidate] records and [Listener] snapshot the scheduler consumes, and the
// [Backend] capability it drives.
//
// The package is intentionally free of any concrete audio engine. Concrete
// backends live in sub-packages (see beepvoice) and test doubles in mock.
package voice

import (
	"errors"
	"fmt"

	"github.com/MrWong99/earshot/pkg/vec"
)

// EmitterID is the stable identity of a world entity that wants to produce
// positional sound. The scheduler uses it only as a lookup key.
type EmitterID uint64

// Handle identifies a live backend voice. The zero Handle is never issued
// by a backend and means "no voice".
type Handle uint64

// Descriptor holds the immutable sound parameters of one emitter. It is
// copied by value into background jobs, so it must not contain references to
// simulation-owned state.
type Descriptor struct {
	// Source names the sound asset. Its interpretation is up to the backend
	// (a file path, or a synthetic source such as "tone:440").
	Source string `yaml:"source"`

	// Loop makes the voice repeat until it is stopped.
	Loop bool `yaml:"loop"`

	// Volume is the base gain in [0, 1] before distance attenuation.
	Volume float32 `yaml:"volume"`

	// Pitch is the base playback rate multiplier. 1.0 is unchanged.
	Pitch float32 `yaml:"pitch"`

	// MinDistance is the distance below which no attenuation is applied.
	MinDistance float64 `yaml:"min_distance"`

	// MaxDistance is the audible range. Emitters farther than this from the
	// listener are never candidates for a voice.
	MaxDistance float64 `yaml:"max_distance"`
}

// Validate reports whether d describes a playable sound.
func (d Descriptor) Validate() error {
	var errs []error
	if d.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if d.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("max_distance %.2f must be positive", d.MaxDistance))
	}
	if d.MinDistance < 0 || d.MinDistance > d.MaxDistance {
		errs = append(errs, fmt.Errorf("min_distance %.2f is out of range [0, %.2f]", d.MinDistance, d.MaxDistance))
	}
	if d.Volume < 0 {
		errs = append(errs, fmt.Errorf("volume %.2f must not be negative", d.Volume))
	}
	if d.Pitch <= 0 {
		errs = append(errs, fmt.Errorf("pitch %.2f must be positive", d.Pitch))
	}
	return errors.Join(errs...)
}

// Candidate is one emitter's record for the current tick, produced by the
// caller's entity query before the scheduler runs.
type Candidate struct {
	// Emitter identifies the owning world entity.
	Emitter EmitterID

	// Position and Velocity are in world space.
	Position vec.Vec3
	Velocity vec.Vec3

	// Descriptor is the emitter's sound. It is only read when the emitter is
	// first tracked; later changes are ignored for the lifetime of the entry.
	Descriptor Descriptor

	// Alive is false once the owning entity has been destroyed. Tracked
	// entries for dead emitters are dropped on the same tick.
	Alive bool
}

// CandidateSource enumerates the current tick's candidates. Implementations
// append to dst and return the extended slice so the caller can reuse one
// buffer across ticks.
type CandidateSource interface {
	Candidates(dst []Candidate) []Candidate
}

// CandidateFunc adapts a plain function to [CandidateSource].
type CandidateFunc func(dst []Candidate) []Candidate

// Candidates implements [CandidateSource].
func (f CandidateFunc) Candidates(dst []Candidate) []Candidate {
	return f(dst)
}
