package registry

import (
	"sync/atomic"

	"github.com/mistcore/mist-core/internal/config"
)

// CapabilitiesStore holds the most recently loaded capabilities snapshot
// and is kept current by config.Loader.Watch. Resolver calls read the
// snapshot atomically so a hot reload never races an in-flight resolve.
type CapabilitiesStore struct {
	current atomic.Pointer[config.Capabilities]
	loader  *config.Loader
}

// NewCapabilitiesStore loads path once and wires up a hot-reload watch so
// subsequent edits to the descriptor file are picked up without a restart.
func NewCapabilitiesStore(path string) (*CapabilitiesStore, error) {
	loader, err := config.NewLoader(path)
	if err != nil {
		return nil, err
	}
	caps, err := loader.Current()
	if err != nil {
		return nil, err
	}
	s := &CapabilitiesStore{loader: loader}
	s.current.Store(caps)
	loader.Watch(func(updated *config.Capabilities) {
		s.current.Store(updated)
	})
	return s, nil
}

// Snapshot returns the capabilities currently in effect.
func (s *CapabilitiesStore) Snapshot() *config.Capabilities {
	return s.current.Load()
}
