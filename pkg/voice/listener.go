package voice

import "github.com/MrWong99/earshot/pkg/vec"

// Listener is the reference point (typically the camera) that distances and
// attenuation are computed against. The scheduler reads it once per tick.
type Listener struct {
	Position vec.Vec3
	Velocity vec.Vec3

	// Forward and Up describe the orientation. When either is zero the
	// listener is treated as axis-aligned and [Listener.Local] only translates.
	Forward vec.Vec3
	Up      vec.Vec3
}

// basis returns the listener's right, up and forward unit vectors, and false
// if no usable orientation is set.
func (l Listener) basis() (right, up, fwd vec.Vec3, ok bool) {
	if l.Forward.IsZero() || l.Up.IsZero() {
		return vec.Zero, vec.Zero, vec.Zero, false
	}
	fwd = l.Forward.Normalize()
	right = fwd.Cross(l.Up).Normalize()
	if right.IsZero() {
		// Forward and Up are parallel.
		return vec.Zero, vec.Zero, vec.Zero, false
	}
	up = right.Cross(fwd)
	return right, up, fwd, true
}

// Local maps a world-space point into listener space: +X right, +Y up and
// -Z forward.
func (l Listener) Local(p vec.Vec3) vec.Vec3 {
	return l.rotate(p.Sub(l.Position))
}

// LocalVelocity maps a world-space emitter velocity into a listener-space
// velocity relative to the listener's own motion.
func (l Listener) LocalVelocity(v vec.Vec3) vec.Vec3 {
	return l.rotate(v.Sub(l.Velocity))
}

func (l Listener) rotate(d vec.Vec3) vec.Vec3 {
	right, up, fwd, ok := l.basis()
	if !ok {
		return d
	}
	return vec.Vec3{X: d.Dot(right), Y: d.Dot(up), Z: -d.Dot(fwd)}
}

// ListenerFeed supplies the listener snapshot for a tick.
type ListenerFeed interface {
	Current() Listener
}

// StaticListener is a [ListenerFeed] that always returns itself.
type StaticListener Listener

// Current implements [ListenerFeed].
func (s StaticListener) Current() Listener {
	return Listener(s)
}

// ListenerFunc adapts a function to [ListenerFeed].
type ListenerFunc func() Listener

// Current implements [ListenerFeed].
func (f ListenerFunc) Current() Listener {
	return f()
}
