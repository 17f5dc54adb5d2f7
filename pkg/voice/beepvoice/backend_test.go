package beepvoice

import (
	"context"
	"errors"
	"math"
	"testing"
	"testing/fstest"

	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

const testRate = 8000

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	return New(WithSampleRate(testRate))
}

// peak pulls n frames from the mixer and returns the largest absolute sample
// on each channel.
func peak(t *testing.T, b *Backend, n int) (left, right float64) {
	t.Helper()
	buf := make([][2]float64, n)
	got, ok := b.Streamer().Stream(buf)
	if !ok || got != n {
		t.Fatalf("mixer Stream = (%d, %v), want (%d, true)", got, ok, n)
	}
	for _, s := range buf {
		left = max(left, math.Abs(s[0]))
		right = max(right, math.Abs(s[1]))
	}
	return left, right
}

func toneDescriptor() voice.Descriptor {
	return voice.Descriptor{Source: "tone:440", Loop: true, Volume: 1, Pitch: 1, MaxDistance: 10}
}

func TestBackend_CreateStartsStopped(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	h, err := b.Create(context.Background(), toneDescriptor())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h == 0 {
		t.Fatal("Create returned the zero handle")
	}
	if l, r := peak(t, b, 256); l != 0 || r != 0 {
		t.Errorf("stopped voice produced audio: peak %v/%v", l, r)
	}

	if err := b.Play(h); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if l, _ := peak(t, b, 256); l == 0 {
		t.Error("playing voice produced silence")
	}

	if err := b.Stop(h); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if l, r := peak(t, b, 256); l != 0 || r != 0 {
		t.Errorf("stopped voice produced audio: peak %v/%v", l, r)
	}
}

func TestBackend_SetVolumeZeroSilences(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	h, err := b.Create(context.Background(), toneDescriptor())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = b.Play(h)
	b.SetVolume(h, 0)
	if l, r := peak(t, b, 256); l != 0 || r != 0 {
		t.Errorf("muted voice produced audio: peak %v/%v", l, r)
	}
}

func TestBackend_PanFollowsPosition(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	h, err := b.Create(context.Background(), toneDescriptor())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = b.Play(h)

	// Hard right.
	b.SetPosition(h, vec.New(5, 0, 0))
	l, r := peak(t, b, 512)
	if l > 1e-9 || r == 0 {
		t.Errorf("hard right pan: left=%v right=%v, want left silent", l, r)
	}

	// Hard left.
	b.SetPosition(h, vec.New(-5, 0, 0))
	l, r = peak(t, b, 512)
	if r > 1e-9 || l == 0 {
		t.Errorf("hard left pan: left=%v right=%v, want right silent", l, r)
	}
}

func TestBackend_DestroyInvalidatesHandle(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	h, err := b.Create(context.Background(), toneDescriptor())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := b.Destroy(h); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len after destroy = %d, want 0", b.Len())
	}
	if err := b.Destroy(h); !errors.Is(err, voice.ErrUnknownHandle) {
		t.Errorf("second Destroy error = %v, want ErrUnknownHandle", err)
	}
	if err := b.Play(h); !errors.Is(err, voice.ErrUnknownHandle) {
		t.Errorf("Play after destroy error = %v, want ErrUnknownHandle", err)
	}

	// Setters on a dead handle are silently ignored.
	b.SetPitch(h, 2)
	b.SetVelocity(h, vec.New(1, 0, 0))
}

func TestBackend_CreateRejectsUnknownSource(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	for _, src := range []string{"noise:1", "tone:abc", "tone:-3", "clip.flac"} {
		if _, err := b.Create(context.Background(), voice.Descriptor{Source: src, Pitch: 1}); !errors.Is(err, voice.ErrUnsupportedSource) {
			t.Errorf("Create(%q) error = %v, want ErrUnsupportedSource", src, err)
		}
	}
}

func TestLoader_CachesBySource(t *testing.T) {
	t.Parallel()
	l := NewLoader(testRate, fstest.MapFS{})

	a, err := l.Load(context.Background(), "square:220")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := l.Load(context.Background(), "square:220")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a != c {
		t.Error("second Load did not return the cached buffer")
	}
	if a.Len() != testRate {
		t.Errorf("tone length = %d frames, want %d", a.Len(), testRate)
	}
	if l.Cached() != 1 {
		t.Errorf("Cached = %d, want 1", l.Cached())
	}
}

func TestLoader_MissingFile(t *testing.T) {
	t.Parallel()
	l := NewLoader(testRate, fstest.MapFS{})
	if _, err := l.Load(context.Background(), "sounds/missing.wav"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoader_CorruptFileIsUnsupported(t *testing.T) {
	t.Parallel()
	l := NewLoader(testRate, fstest.MapFS{
		"sounds/broken.wav": &fstest.MapFile{Data: []byte("definitely not RIFF data")},
	})
	_, err := l.Load(context.Background(), "sounds/broken.wav")
	if !errors.Is(err, voice.ErrUnsupportedSource) {
		t.Errorf("Load error = %v, want ErrUnsupportedSource", err)
	}
	if l.Cached() != 0 {
		t.Errorf("Cached = %d, want 0 after a failed decode", l.Cached())
	}
}

func TestLoader_CancelledContext(t *testing.T) {
	t.Parallel()
	l := NewLoader(testRate, fstest.MapFS{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "tone:100"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want context.Canceled", err)
	}
}

func TestChainRatio_Doppler(t *testing.T) {
	t.Parallel()

	c := &chain{pitch: 1, position: vec.New(0, 0, -10)}
	if got := c.ratio(); got != 1 {
		t.Errorf("stationary ratio = %v, want 1", got)
	}

	// Moving away along the line of sight lowers the pitch.
	c.velocity = vec.New(0, 0, -20)
	if got := c.ratio(); got >= 1 {
		t.Errorf("receding ratio = %v, want < 1", got)
	}

	// Approaching raises it.
	c.velocity = vec.New(0, 0, 20)
	if got := c.ratio(); got <= 1 {
		t.Errorf("approaching ratio = %v, want > 1", got)
	}
}
