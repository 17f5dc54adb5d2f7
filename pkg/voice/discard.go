package voice

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/vec"
)

var _ Backend = (*Discard)(nil)

// Discard is a Backend that allocates handles and renders nothing. It is
// useful for headless runs and for measuring scheduler overhead in
// isolation. The zero value is ready to use.
type Discard struct {
	mu   sync.Mutex
	next Handle
	live map[Handle]struct{}
}

// Create implements [Backend].
func (d *Discard) Create(ctx context.Context, _ Descriptor) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live == nil {
		d.live = make(map[Handle]struct{})
	}
	d.next++
	d.live[d.next] = struct{}{}
	return d.next, nil
}

// Play implements [Backend].
func (d *Discard) Play(h Handle) error { return d.check(h) }

// Stop implements [Backend].
func (d *Discard) Stop(h Handle) error { return d.check(h) }

// Destroy implements [Backend].
func (d *Discard) Destroy(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[h]; !ok {
		return ErrUnknownHandle
	}
	delete(d.live, h)
	return nil
}

func (d *Discard) SetPosition(Handle, vec.Vec3) {}
func (d *Discard) SetVelocity(Handle, vec.Vec3) {}
func (d *Discard) SetVolume(Handle, float32)    {}
func (d *Discard) SetPitch(Handle, float32)     {}

// Len returns the number of live voices.
func (d *Discard) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Discard) check(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[h]; !ok {
		return ErrUnknownHandle
	}
	return nil
}
