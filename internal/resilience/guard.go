package resilience

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/MrWong99/earshot/pkg/vec"
	"github.com/MrWong99/earshot/pkg/voice"
)

var _ voice.Backend = (*GuardedBackend)(nil)

// GuardedBackend routes voice creation through a [CircuitBreaker]. Only
// Create is guarded: it is the call that decodes and allocates, and the one
// whose failures pile up. Play, Stop and Destroy always reach the inner
// backend so existing voices can still be released while the breaker is
// open.
type GuardedBackend struct {
	inner   voice.Backend
	breaker *CircuitBreaker
}

// NewGuardedBackend wraps inner with breaker.
func NewGuardedBackend(inner voice.Backend, breaker *CircuitBreaker) *GuardedBackend {
	return &GuardedBackend{inner: inner, breaker: breaker}
}

// Breaker returns the breaker guarding Create.
func (g *GuardedBackend) Breaker() *CircuitBreaker { return g.breaker }

// Create implements [voice.Backend]. Source errors do not count against the
// breaker: a bad asset path is a content problem, not backend health.
func (g *GuardedBackend) Create(ctx context.Context, d voice.Descriptor) (voice.Handle, error) {
	var (
		h         voice.Handle
		sourceErr error
	)
	err := g.breaker.Execute(func() error {
		var err error
		h, err = g.inner.Create(ctx, d)
		if isContentError(err) {
			sourceErr = err
			return nil
		}
		return err
	})
	if sourceErr != nil {
		return 0, sourceErr
	}
	if err != nil {
		return 0, fmt.Errorf("resilience: create %q: %w", d.Source, err)
	}
	return h, nil
}

func (g *GuardedBackend) Play(h voice.Handle) error              { return g.inner.Play(h) }
func (g *GuardedBackend) Stop(h voice.Handle) error              { return g.inner.Stop(h) }
func (g *GuardedBackend) Destroy(h voice.Handle) error           { return g.inner.Destroy(h) }
func (g *GuardedBackend) SetPosition(h voice.Handle, p vec.Vec3) { g.inner.SetPosition(h, p) }
func (g *GuardedBackend) SetVelocity(h voice.Handle, v vec.Vec3) { g.inner.SetVelocity(h, v) }
func (g *GuardedBackend) SetVolume(h voice.Handle, v float32)    { g.inner.SetVolume(h, v) }
func (g *GuardedBackend) SetPitch(h voice.Handle, p float32)     { g.inner.SetPitch(h, p) }

func isContentError(err error) bool {
	return errors.Is(err, voice.ErrUnsupportedSource) || errors.Is(err, fs.ErrNotExist)
}
