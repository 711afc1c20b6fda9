package supervisor

import (
	"github.com/mistcore/mist-core/internal/shm"
)

// StatePage wraps the 1-byte MstSTATE@ page for a single stream.
type StatePage struct {
	page *shm.Page
}

// CreateStatePage maps (creating if necessary) the state page for name,
// initializing it to OFF on first creation.
func CreateStatePage(store *shm.Store, name string) (*StatePage, error) {
	p, err := store.Create(shm.StreamStatePageName(name), 1)
	if err != nil {
		return nil, err
	}
	return &StatePage{page: p}, nil
}

// OpenStatePage maps an existing state page for read access, returning
// NotFoundError (surfaced by the caller as StateOff per getStreamStatus's
// "page absent means OFF" rule) when the page does not exist yet.
func OpenStatePage(store *shm.Store, name string) (*StatePage, error) {
	p, err := store.Open(shm.StreamStatePageName(name), 1)
	if err != nil {
		return nil, err
	}
	return &StatePage{page: p}, nil
}

// Get returns the current state byte.
func (s *StatePage) Get() State {
	return State(s.page.Mapped[0])
}

// Set stores a new state byte. The caller is responsible for only issuing
// legal transitions (CanTransition); Set itself does not validate, since
// the angel loop sometimes needs to force INVALID from any state on crash.
func (s *StatePage) Set(state State) {
	s.page.Mapped[0] = byte(state)
}

// Close unmaps the page.
func (s *StatePage) Close() error {
	return s.page.Close()
}

// ReadState resolves the current status of name the same way
// Util::getStreamStatus does: a missing page reports StateOff rather than
// an error, since "no state page" and "stream off" are the same fact from
// a caller's point of view.
func ReadState(store *shm.Store, name string) State {
	p, err := OpenStatePage(store, name)
	if err != nil {
		return StateOff
	}
	defer p.Close()
	return p.Get()
}
