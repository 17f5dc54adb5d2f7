package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/earshot/pkg/voice"
)

// ErrBackendNotRegistered is returned by [Registry.CreateBackend] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// BackendFactory builds a voice backend from its configuration. The returned
// close function releases device resources and may be nil.
type BackendFactory func(BackendConfig) (voice.Backend, func() error, error)

// Registry maps backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]BackendFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]BackendFactory)}
}

// RegisterBackend registers a backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// CreateBackend instantiates the backend registered under cfg.Name.
// Returns [ErrBackendNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateBackend(cfg BackendConfig) (voice.Backend, func() error, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Name)
	}
	b, closeFn, err := factory(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("config: create backend %q: %w", cfg.Name, err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return b, closeFn, nil
}

// Backends returns the registered backend names in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
