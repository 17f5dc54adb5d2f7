// Package beepvoice implements [voice.Backend] on top of the gopxl/beep audio
// library.
//
// Every voice is a small streamer chain added to one shared [beep.Mixer]:
//
//	buffer ─► Ctrl (play/stop) ─► Resampler (pitch, doppler) ─► Volume ─► Pan ─► mixer
//
// The mixer can be played on the system speaker (see [Backend.OpenSpeaker])
// or pulled manually through [Backend.Streamer], which is what tests and the
// "none" output do.
package beepvoice

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Backend = (*Backend)(nil)

const (
	// DefaultSampleRate is the mixer rate used when none is configured.
	DefaultSampleRate = beep.SampleRate(48000)

	// resampleQuality is the interpolation quality for pitch shifting.
	resampleQuality = 4

	// speedOfSound is used for the doppler factor, in world units per second.
	speedOfSound = 343.0

	// minRatio keeps the resampler away from zero or negative ratios, which
	// beep rejects.
	minRatio = 0.05
)

// chain is the per-voice streamer pipeline plus the parameters that feed it.
type chain struct {
	ctrl      *beep.Ctrl
	resampler *beep.Resampler
	volume    *effects.Volume
	pan       *effects.Pan

	pitch    float64
	position vec.Vec3
	velocity vec.Vec3
}

// Option configures a [Backend].
type Option func(*Backend)

// WithSampleRate sets the mixer sample rate. Decoded assets are resampled to
// this rate.
func WithSampleRate(sr beep.SampleRate) Option {
	return func(b *Backend) {
		if sr > 0 {
			b.sr = sr
		}
	}
}

// WithLocker sets the lock that guards the streamer chains. When the mixer is
// played on the speaker this must be [SpeakerLocker]; [Backend.OpenSpeaker]
// installs it automatically.
func WithLocker(l sync.Locker) Option {
	return func(b *Backend) {
		if l != nil {
			b.lock = l
		}
	}
}

// WithLoader replaces the default asset loader.
func WithLoader(l *Loader) Option {
	return func(b *Backend) {
		if l != nil {
			b.loader = l
		}
	}
}

// Backend is a beep-based [voice.Backend]. It is safe for concurrent use.
type Backend struct {
	sr     beep.SampleRate
	loader *Loader
	mixer  *beep.Mixer

	// lock guards the mixer and every chain's streamer fields.
	lock sync.Locker

	// mu guards next and voices. It is never held together with lock.
	mu     sync.Mutex
	next   voice.Handle
	voices map[voice.Handle]*chain

	speakerOpen bool
}

// New creates a Backend. Without options the backend mixes at
// [DefaultSampleRate], loads relative file sources from the working
// directory and guards its chains with a private mutex.
func New(opts ...Option) *Backend {
	b := &Backend{
		sr:     DefaultSampleRate,
		mixer:  &beep.Mixer{},
		lock:   &sync.Mutex{},
		voices: make(map[voice.Handle]*chain),
	}
	for _, o := range opts {
		o(b)
	}
	if b.loader == nil {
		b.loader = NewLoader(b.sr, nil)
	}
	return b
}

// SampleRate returns the mixer sample rate.
func (b *Backend) SampleRate() beep.SampleRate { return b.sr }

// Streamer returns the mixer all voices are added to. Pull from it while
// holding no locks; it takes the backend lock itself.
func (b *Backend) Streamer() beep.Streamer { return lockedStreamer{b: b} }

// lockedStreamer streams the mixer under the backend lock so manual pulls
// observe the same exclusion the speaker provides.
type lockedStreamer struct{ b *Backend }

func (s lockedStreamer) Stream(samples [][2]float64) (int, bool) {
	s.b.lock.Lock()
	defer s.b.lock.Unlock()
	return s.b.mixer.Stream(samples)
}

func (s lockedStreamer) Err() error { return nil }

// Create implements [voice.Backend]. It decodes (or fetches from cache) the
// descriptor's source and adds a paused chain to the mixer.
func (b *Backend) Create(ctx context.Context, d voice.Descriptor) (voice.Handle, error) {
	buf, err := b.loader.Load(ctx, d.Source)
	if err != nil {
		return 0, fmt.Errorf("beepvoice: create %q: %w", d.Source, err)
	}

	var src beep.Streamer = buf.Streamer(0, buf.Len())
	if d.Loop {
		src = beep.Loop(-1, buf.Streamer(0, buf.Len()))
	}

	c := &chain{pitch: float64(d.Pitch)}
	c.ctrl = &beep.Ctrl{Streamer: src, Paused: true}
	c.resampler = beep.ResampleRatio(resampleQuality, c.ratio(), c.ctrl)
	c.volume = &effects.Volume{Streamer: c.resampler, Base: 2}
	setGain(c.volume, d.Volume)
	c.pan = &effects.Pan{Streamer: c.volume}

	b.lock.Lock()
	b.mixer.Add(c.pan)
	b.lock.Unlock()

	b.mu.Lock()
	b.next++
	h := b.next
	b.voices[h] = c
	b.mu.Unlock()
	return h, nil
}

// Play implements [voice.Backend].
func (b *Backend) Play(h voice.Handle) error {
	c, err := b.chain(h)
	if err != nil {
		return fmt.Errorf("beepvoice: play: %w", err)
	}
	b.lock.Lock()
	c.ctrl.Paused = false
	b.lock.Unlock()
	return nil
}

// Stop implements [voice.Backend].
func (b *Backend) Stop(h voice.Handle) error {
	c, err := b.chain(h)
	if err != nil {
		return fmt.Errorf("beepvoice: stop: %w", err)
	}
	b.lock.Lock()
	c.ctrl.Paused = true
	b.lock.Unlock()
	return nil
}

// Destroy implements [voice.Backend]. The chain's source is cut so the mixer
// drops it on its next pull.
func (b *Backend) Destroy(h voice.Handle) error {
	b.mu.Lock()
	c, ok := b.voices[h]
	delete(b.voices, h)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("beepvoice: destroy: %w", voice.ErrUnknownHandle)
	}
	b.lock.Lock()
	c.ctrl.Streamer = nil
	b.lock.Unlock()
	return nil
}

// SetPosition implements [voice.Backend]. p is listener-relative; its x
// component relative to the distance drives the stereo pan.
func (b *Backend) SetPosition(h voice.Handle, p vec.Vec3) {
	c, err := b.chain(h)
	if err != nil {
		return
	}
	b.lock.Lock()
	c.position = p
	c.pan.Pan = panFor(p)
	c.resampler.SetRatio(c.ratio())
	b.lock.Unlock()
}

// SetVelocity implements [voice.Backend]. The velocity feeds a doppler shift
// on top of the pitch.
func (b *Backend) SetVelocity(h voice.Handle, v vec.Vec3) {
	c, err := b.chain(h)
	if err != nil {
		return
	}
	b.lock.Lock()
	c.velocity = v
	c.resampler.SetRatio(c.ratio())
	b.lock.Unlock()
}

// SetVolume implements [voice.Backend].
func (b *Backend) SetVolume(h voice.Handle, v float32) {
	c, err := b.chain(h)
	if err != nil {
		return
	}
	b.lock.Lock()
	setGain(c.volume, v)
	b.lock.Unlock()
}

// SetPitch implements [voice.Backend].
func (b *Backend) SetPitch(h voice.Handle, p float32) {
	c, err := b.chain(h)
	if err != nil {
		return
	}
	b.lock.Lock()
	c.pitch = float64(p)
	c.resampler.SetRatio(c.ratio())
	b.lock.Unlock()
}

// Len returns the number of allocated voices.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.voices)
}

func (b *Backend) chain(h voice.Handle) (*chain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.voices[h]
	if !ok {
		return nil, voice.ErrUnknownHandle
	}
	return c, nil
}

// ratio is the resampling ratio: pitch times the doppler factor for motion
// along the line of sight. Positive radial velocity means receding.
func (c *chain) ratio() float64 {
	r := c.pitch
	if r <= 0 {
		r = 1
	}
	if dist := c.position.Len(); dist > 0 {
		radial := c.velocity.Dot(c.position) / dist
		radial = min(max(radial, -speedOfSound/2), speedOfSound/2)
		r *= speedOfSound / (speedOfSound + radial)
	}
	return max(r, minRatio)
}

// panFor maps a listener-space position to a pan in [-1, 1].
func panFor(p vec.Vec3) float64 {
	d := p.Len()
	if d == 0 {
		return 0
	}
	return min(max(p.X/d, -1), 1)
}

// setGain converts a linear gain to the log2 volume effects.Volume expects.
func setGain(v *effects.Volume, gain float32) {
	if gain <= 0 {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(float64(gain))
}
