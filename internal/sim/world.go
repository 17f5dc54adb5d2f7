// Package sim is a small deterministic world that feeds the scheduler:
// an orbiting listener and a population of wandering sound emitters that
// randomly despawn and respawn.
//
// World implements [voice.CandidateSource], [voice.ListenerFeed] and the
// scheduler's Attacher hook. It is not safe for concurrent use; the tick loop
// calls Advance, then hands the world to the scheduler, on one goroutine.
package sim

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

// ListenerSpec describes the listener's circular path around the origin.
type ListenerSpec struct {
	OrbitRadius float64
	OrbitSpeed  float64 // radians per second
	Height      float64
}

// EmitterSpec describes a group of identical emitters.
type EmitterSpec struct {
	Name       string
	Count      int
	Descriptor voice.Descriptor
	// Speed is the wander speed in world units per second.
	Speed float64
	// DespawnChance is the probability per second that an emitter vanishes.
	DespawnChance float64
}

type emitter struct {
	id    voice.EmitterID
	spec  int
	pos   vec.Vec3
	vel   vec.Vec3
	alive bool
}

// World is the simulated scene.
type World struct {
	rng      *rand.Rand
	bounds   float64
	listener ListenerSpec
	specs    []EmitterSpec

	emitters []emitter
	nextID   voice.EmitterID
	elapsed  float64

	voices   map[voice.EmitterID]voice.Handle
	despawns uint64
}

// New builds a world of half-width bounds populated from specs. The same seed
// always produces the same scene.
func New(seed uint64, bounds float64, listener ListenerSpec, specs []EmitterSpec) *World {
	if bounds <= 0 {
		bounds = 100
	}
	w := &World{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		bounds:   bounds,
		listener: listener,
		specs:    specs,
		voices:   make(map[voice.EmitterID]voice.Handle),
	}
	for i, s := range specs {
		for range s.Count {
			w.emitters = append(w.emitters, w.spawn(i))
		}
	}
	return w
}

func (w *World) spawn(spec int) emitter {
	w.nextID++
	e := emitter{
		id:    w.nextID,
		spec:  spec,
		pos:   vec.New(w.coord(), 0, w.coord()),
		alive: true,
	}
	e.vel = w.heading(w.specs[spec].Speed)
	return e
}

func (w *World) coord() float64 { return (w.rng.Float64()*2 - 1) * w.bounds }

func (w *World) heading(speed float64) vec.Vec3 {
	a := w.rng.Float64() * 2 * math.Pi
	return vec.New(math.Cos(a)*speed, 0, math.Sin(a)*speed)
}

// Advance moves the world forward by dt. Emitters that despawned on the
// previous step are replaced by fresh ones with new identities.
func (w *World) Advance(dt time.Duration) {
	sec := dt.Seconds()
	w.elapsed += sec

	for i := range w.emitters {
		e := &w.emitters[i]
		if !e.alive {
			*e = w.spawn(e.spec)
			continue
		}
		spec := w.specs[e.spec]
		if spec.DespawnChance > 0 && w.rng.Float64() < spec.DespawnChance*sec {
			e.alive = false
			w.despawns++
			continue
		}
		e.pos = e.pos.Add(e.vel.Scale(sec))
		// Bounce off the walls and occasionally change direction.
		if math.Abs(e.pos.X) > w.bounds {
			e.vel.X = -e.vel.X
			e.pos.X = math.Copysign(w.bounds, e.pos.X)
		}
		if math.Abs(e.pos.Z) > w.bounds {
			e.vel.Z = -e.vel.Z
			e.pos.Z = math.Copysign(w.bounds, e.pos.Z)
		}
		if w.rng.Float64() < 0.1*sec {
			e.vel = w.heading(spec.Speed)
		}
	}
}

// Current implements [voice.ListenerFeed].
func (w *World) Current() voice.Listener {
	l := w.listener
	a := l.OrbitSpeed * w.elapsed
	pos := vec.New(l.OrbitRadius*math.Cos(a), l.Height, l.OrbitRadius*math.Sin(a))
	vel := vec.New(-l.OrbitRadius*l.OrbitSpeed*math.Sin(a), 0, l.OrbitRadius*l.OrbitSpeed*math.Cos(a))

	// Face the center of the orbit; on the axis face -Z.
	fwd := vec.New(-pos.X, 0, -pos.Z).Normalize()
	if fwd.IsZero() {
		fwd = vec.New(0, 0, -1)
	}
	return voice.Listener{Position: pos, Velocity: vel, Forward: fwd, Up: vec.New(0, 1, 0)}
}

// Candidates implements [voice.CandidateSource].
func (w *World) Candidates(dst []voice.Candidate) []voice.Candidate {
	for i := range w.emitters {
		e := &w.emitters[i]
		dst = append(dst, voice.Candidate{
			Emitter:    e.id,
			Position:   e.pos,
			Velocity:   e.vel,
			Descriptor: w.specs[e.spec].Descriptor,
			Alive:      e.alive,
		})
	}
	return dst
}

// AttachVoice records that id now owns voice h.
func (w *World) AttachVoice(id voice.EmitterID, h voice.Handle) { w.voices[id] = h }

// DetachVoice forgets id's voice.
func (w *World) DetachVoice(id voice.EmitterID) { delete(w.voices, id) }

// Voiced returns the number of emitters currently holding a voice.
func (w *World) Voiced() int { return len(w.voices) }

// Population returns the number of emitter slots.
func (w *World) Population() int { return len(w.emitters) }

// Despawns returns how many emitters have vanished so far.
func (w *World) Despawns() uint64 { return w.despawns }
