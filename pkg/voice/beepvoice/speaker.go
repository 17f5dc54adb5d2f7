package beepvoice

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gopxl/beep/speaker"
)

// SpeakerLocker adapts the global speaker lock to [sync.Locker].
type SpeakerLocker struct{}

// Lock implements [sync.Locker].
func (SpeakerLocker) Lock() { speaker.Lock() }

// Unlock implements [sync.Locker].
func (SpeakerLocker) Unlock() { speaker.Unlock() }

// OpenSpeaker initialises the system speaker at the backend's sample rate and
// starts playing the mixer. From then on the chains are guarded by the
// speaker lock. buffer is the device buffer length; larger values trade
// latency for fewer underruns.
//
// OpenSpeaker must be called before the first Create.
func (b *Backend) OpenSpeaker(buffer time.Duration) error {
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	if err := speaker.Init(b.sr, b.sr.N(buffer)); err != nil {
		return fmt.Errorf("beepvoice: init speaker: %w", err)
	}
	b.lock = SpeakerLocker{}
	b.speakerOpen = true
	speaker.Play(b.mixer)
	slog.Info("beepvoice: speaker opened", "sample_rate", int(b.sr), "buffer", buffer)
	return nil
}

// Close stops playback. Voices still allocated are dropped with the mixer.
func (b *Backend) Close() error {
	if !b.speakerOpen {
		b.lock.Lock()
		b.mixer.Clear()
		b.lock.Unlock()
		return nil
	}
	speaker.Clear()
	speaker.Close()
	b.speakerOpen = false
	return nil
}
