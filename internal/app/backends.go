package app

import (
	"io/fs"
	"os"

	"github.com/gopxl/beep"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/pkg/voice"
	"github.com/MrWong99/earshot/pkg/voice/beepvoice"
)

// DefaultRegistry returns a registry holding the backends that ship with
// earshot: "beep" and "null".
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()
	r.RegisterBackend("beep", newBeepBackend)
	r.RegisterBackend("null", func(config.BackendConfig) (voice.Backend, func() error, error) {
		return &voice.Discard{}, nil, nil
	})
	return r
}

// newBeepBackend builds the beep mixer backend and, for the speaker output,
// opens the audio device.
func newBeepBackend(cfg config.BackendConfig) (voice.Backend, func() error, error) {
	sr := beep.SampleRate(cfg.SampleRate)
	var assets fs.FS
	if cfg.AssetDir != "" {
		assets = os.DirFS(cfg.AssetDir)
	}
	b := beepvoice.New(
		beepvoice.WithSampleRate(sr),
		beepvoice.WithLoader(beepvoice.NewLoader(sr, assets)),
	)
	if cfg.Output == config.OutputSpeaker {
		if err := b.OpenSpeaker(cfg.Buffer); err != nil {
			return nil, nil, err
		}
	}
	return b, b.Close, nil
}
