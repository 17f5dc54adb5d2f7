package voice

import (
	"context"
	"errors"

	"github.com/MrWong99/earshot/pkg/vec"
)

var (
	// ErrUnknownHandle is returned when an operation names a voice the
	// backend does not know (never created, or already destroyed).
	ErrUnknownHandle = errors.New("voice: unknown handle")

	// ErrUnsupportedSource is returned by [Backend.Create] when the
	// descriptor's source cannot be resolved to a playable sound.
	ErrUnsupportedSource = errors.New("voice: unsupported source")
)

// Backend is the audio engine capability driven by the scheduler. A backend
// instance is constructed explicitly and passed to the scheduler; there is no
// process-wide default.
//
// Create, Play, Stop and Destroy may block (I/O, device calls) and are only
// ever called from the background worker. The property setters must be cheap
// and non-blocking, because the scheduler calls them directly from the
// simulation goroutine every tick for each active voice.
//
// Implementations must be safe for concurrent use by one background goroutine
// and one simulation goroutine.
type Backend interface {
	// Create allocates a voice for d. The voice starts stopped.
	Create(ctx context.Context, d Descriptor) (Handle, error)

	// Play starts or resumes playback.
	Play(h Handle) error

	// Stop halts playback. The voice remains allocated until Destroy.
	Stop(h Handle) error

	// Destroy releases the voice. The handle is invalid afterwards.
	Destroy(h Handle) error

	// SetPosition sets the listener-relative position.
	SetPosition(h Handle, p vec.Vec3)

	// SetVelocity sets the listener-relative velocity.
	SetVelocity(h Handle, v vec.Vec3)

	// SetVolume sets the effective gain in [0, 1].
	SetVolume(h Handle, v float32)

	// SetPitch sets the effective playback rate multiplier.
	SetPitch(h Handle, p float32)
}
