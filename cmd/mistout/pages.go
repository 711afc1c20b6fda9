package main

import (
	"sync"

	"github.com/mistcore/mist-core/internal/bus"
	"github.com/mistcore/mist-core/internal/shm"
)

// trackIndexSource maps (trackID, key) to a mapped DataPage by consulting
// each track's MstTrkIdx@ page for the page that currently holds key, the
// real-store implementation of reader.PageSource (the package's own tests
// use an in-memory fake; this one backs an actual running output).
type trackIndexSource struct {
	store      *shm.Store
	streamName string

	mu      sync.Mutex
	indexes map[uint32]*bus.TrackIndex
	pages   map[[2]uint32]*bus.DataPage // (trackID, firstKey) -> page
}

func newTrackIndexSource(store *shm.Store, streamName string) *trackIndexSource {
	return &trackIndexSource{
		store:      store,
		streamName: streamName,
		indexes:    map[uint32]*bus.TrackIndex{},
		pages:      map[[2]uint32]*bus.DataPage{},
	}
}

func (s *trackIndexSource) trackIndex(trackID uint32) (*bus.TrackIndex, error) {
	if idx, ok := s.indexes[trackID]; ok {
		return idx, nil
	}
	p, err := s.store.Open(shm.TrackIndexPageName(s.streamName, trackID), shm.TrackIndexEntrySize)
	if err != nil {
		return nil, err
	}
	idx := bus.NewTrackIndex(p)
	s.indexes[trackID] = idx
	return idx, nil
}

// PageForKey implements reader.PageSource.
func (s *trackIndexSource) PageForKey(trackID, key uint32) (*bus.DataPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.trackIndex(trackID)
	if err != nil {
		return nil, err
	}
	_, entry, err := idx.FindPageForKey(key)
	if err != nil {
		return nil, err
	}

	cacheKey := [2]uint32{trackID, entry.FirstKey}
	if page, ok := s.pages[cacheKey]; ok {
		return page, nil
	}

	p, err := s.store.Open(shm.TrackDataPageName(s.streamName, trackID, entry.FirstKey), 1)
	if err != nil {
		return nil, err
	}
	page := bus.NewDataPage(p, trackID, entry.FirstKey)
	s.pages[cacheKey] = page
	return page, nil
}
