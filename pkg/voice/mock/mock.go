// Package mock provides an in-memory implementation of [voice.Backend] for
// unit tests.
//
// The mock is safe for concurrent use. It records every call so tests can
// assert on call counts and arguments, and it exposes exported fields that
// control return values.
//
// Typical usage:
//
//	backend := &mock.Backend{}
//	backend.CreateErr = errors.New("decode failed") // make every load fail
//	...
//	if n := backend.DestroyCount(h); n != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Backend = (*Backend)(nil)

// VoiceState is the mock's view of one created voice.
type VoiceState struct {
	Descriptor voice.Descriptor
	Playing    bool
	Destroyed  bool
	Position   vec.Vec3
	Velocity   vec.Vec3
	Volume     float32
	Pitch      float32

	// Destroys counts Destroy calls for this handle; anything other than 0
	// or 1 is a double free.
	Destroys int
}

// Backend is a mock implementation of [voice.Backend].
// Set the exported error fields before use; inspect the counters after.
type Backend struct {
	mu sync.Mutex

	// CreateErr, when non-nil, is returned by every Create call.
	CreateErr error

	// CreateHook, when non-nil, is called at the start of Create with the
	// descriptor. Returning a non-nil error fails that call. Tests use it to
	// block the worker or fail selected sources.
	CreateHook func(d voice.Descriptor) error

	// PlayErr, StopErr and DestroyErr are returned by the respective calls.
	PlayErr    error
	StopErr    error
	DestroyErr error

	CallCountCreate      int
	CallCountPlay        int
	CallCountStop        int
	CallCountDestroy     int
	CallCountSetPosition int
	CallCountSetVelocity int
	CallCountSetVolume   int
	CallCountSetPitch    int

	next   voice.Handle
	voices map[voice.Handle]*VoiceState
	order  []voice.Handle
}

// Create implements [voice.Backend].
func (b *Backend) Create(_ context.Context, d voice.Descriptor) (voice.Handle, error) {
	b.mu.Lock()
	b.CallCountCreate++
	hook := b.CreateHook
	err := b.CreateErr
	b.mu.Unlock()

	if hook != nil {
		if herr := hook(d); herr != nil {
			return 0, herr
		}
	}
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.voices == nil {
		b.voices = make(map[voice.Handle]*VoiceState)
	}
	b.next++
	h := b.next
	b.voices[h] = &VoiceState{Descriptor: d, Volume: d.Volume, Pitch: d.Pitch}
	b.order = append(b.order, h)
	return h, nil
}

// Play implements [voice.Backend].
func (b *Backend) Play(h voice.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountPlay++
	if b.PlayErr != nil {
		return b.PlayErr
	}
	v, ok := b.voices[h]
	if !ok || v.Destroyed {
		return voice.ErrUnknownHandle
	}
	v.Playing = true
	return nil
}

// Stop implements [voice.Backend].
func (b *Backend) Stop(h voice.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountStop++
	if b.StopErr != nil {
		return b.StopErr
	}
	v, ok := b.voices[h]
	if !ok || v.Destroyed {
		return voice.ErrUnknownHandle
	}
	v.Playing = false
	return nil
}

// Destroy implements [voice.Backend]. The destroy is counted even when
// DestroyErr is set, so double frees remain visible.
func (b *Backend) Destroy(h voice.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountDestroy++
	v, ok := b.voices[h]
	if ok {
		v.Destroys++
	}
	if b.DestroyErr != nil {
		return b.DestroyErr
	}
	if !ok || v.Destroyed {
		return voice.ErrUnknownHandle
	}
	v.Destroyed = true
	v.Playing = false
	return nil
}

// SetPosition implements [voice.Backend].
func (b *Backend) SetPosition(h voice.Handle, p vec.Vec3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountSetPosition++
	if v, ok := b.voices[h]; ok {
		v.Position = p
	}
}

// SetVelocity implements [voice.Backend].
func (b *Backend) SetVelocity(h voice.Handle, vel vec.Vec3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountSetVelocity++
	if v, ok := b.voices[h]; ok {
		v.Velocity = vel
	}
}

// SetVolume implements [voice.Backend].
func (b *Backend) SetVolume(h voice.Handle, vol float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountSetVolume++
	if v, ok := b.voices[h]; ok {
		v.Volume = vol
	}
}

// SetPitch implements [voice.Backend].
func (b *Backend) SetPitch(h voice.Handle, p float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountSetPitch++
	if v, ok := b.voices[h]; ok {
		v.Pitch = p
	}
}

// Voice returns a copy of the recorded state for h and whether it exists.
func (b *Backend) Voice(h voice.Handle) (VoiceState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.voices[h]
	if !ok {
		return VoiceState{}, false
	}
	return *v, true
}

// DestroyCount returns how many times Destroy was called for h.
func (b *Backend) DestroyCount(h voice.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.voices[h]; ok {
		return v.Destroys
	}
	return 0
}

// Handles returns every handle ever created, in creation order.
func (b *Backend) Handles() []voice.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]voice.Handle, len(b.order))
	copy(out, b.order)
	return out
}

// Live returns the number of created voices that have not been destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, v := range b.voices {
		if !v.Destroyed {
			n++
		}
	}
	return n
}

// CreatedSources returns the descriptor sources passed to successful Create
// calls, in order.
func (b *Backend) CreatedSources() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.order))
	for _, h := range b.order {
		out = append(out, b.voices[h].Descriptor.Source)
	}
	return out
}

// Creates returns CallCountCreate under the lock.
func (b *Backend) Creates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CallCountCreate
}
