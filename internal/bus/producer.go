package bus

import (
	"time"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
)

// minRetainedFragments bounds how aggressively the producer evicts: even a
// stream with no viewers keeps at least this many fragments so a viewer
// attaching mid-crash-recovery still gets a usable initial seek point
// (§4.6 eviction invariant).
const minRetainedFragments = 2

// TrackWriter owns the live data pages, index, and current append cursor
// for one track of one stream. It is the only writer; everything else only
// reads the pages it exposes.
type TrackWriter struct {
	store      *shm.Store
	streamName string
	trackID    uint32

	index      *TrackIndex
	current    *DataPage
	curOffset  int
	curBytes   int
	curParts   int
	curStartMS int64
	keyCount   uint32
	nextKey    uint32

	lastKeyByteOffset uint64
	lastKeyPartCount  uint64
}

// NewTrackWriter creates (or reopens) the track index page and a fresh
// current data page starting at key 0.
func NewTrackWriter(store *shm.Store, streamName string, trackID uint32) (*TrackWriter, error) {
	idxPage, err := store.Create(shm.TrackIndexPageName(streamName, trackID), shm.DefaultStreamPageSize)
	if err != nil {
		return nil, err
	}
	tw := &TrackWriter{
		store:      store,
		streamName: streamName,
		trackID:    trackID,
		index:      NewTrackIndex(idxPage),
	}
	if err := tw.openNextPage(); err != nil {
		return nil, err
	}
	return tw, nil
}

func (tw *TrackWriter) openNextPage() error {
	p, err := tw.store.Create(shm.TrackDataPageName(tw.streamName, tw.trackID, tw.nextKey), shm.DefaultDataPageSize)
	if err != nil {
		return err
	}
	tw.current = NewDataPage(p, tw.trackID, tw.nextKey)
	tw.curOffset = 0
	tw.curBytes = 0
	tw.curParts = 0
	tw.curStartMS = 0
	tw.keyCount = 0
	// reserve the index slot now with a single key, grown in place as more
	// keys land on this page; a producer crash mid-page leaves a valid
	// (if short) entry rather than no entry at all.
	return tw.index.Append(TrackIndexEntry{FirstKey: tw.nextKey, KeyCount: 1})
}

// Append writes pkt to the current page, flipping to a new page first if
// pkt starts a new key and the flip policy says the current page is full
// enough (§4.4 "Page flip policy": pages only flip at keyframe boundaries
// so every page starts on a key).
func (tw *TrackWriter) Append(pkt Packet, now time.Time) error {
	if pkt.IsKeyframe() {
		if tw.curBytes > 0 && PageFlipPolicy(tw.curBytes, pkt.TimeMS-tw.curStartMS) {
			if err := tw.openNextPage(); err != nil {
				return err
			}
		}
		// this key begins exactly where the page cursor sits right now,
		// whether that's page-relative offset 0 (just flipped) or mid-page.
		tw.lastKeyByteOffset = uint64(tw.curOffset)
		tw.lastKeyPartCount = uint64(tw.curParts)
		tw.keyCount++
		tw.nextKey = tw.current.FirstKey + tw.keyCount
		slot, err := tw.index.SlotForFirstKey(tw.current.FirstKey)
		if err != nil {
			return err
		}
		if err := tw.index.GrowKeyCount(slot, tw.keyCount); err != nil {
			return err
		}
		if tw.curBytes == 0 {
			tw.curStartMS = pkt.TimeMS
		}
	}

	next, err := tw.current.Append(tw.curOffset, pkt)
	if coreerrors.IsNotReady(err) {
		if err := tw.openNextPage(); err != nil {
			return err
		}
		next, err = tw.current.Append(tw.curOffset, pkt)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	tw.curOffset = next
	tw.curBytes += len(pkt.Payload)
	tw.curParts++
	return nil
}

// KeyBoundary returns the page-relative byte offset and part count at
// which the key most recently started by Append began. Callers record
// these on that Key's ByteSize/PartCount fields so a reader seeking to it
// later can resume from the right offset instead of assuming it is its
// page's first key.
func (tw *TrackWriter) KeyBoundary() (byteOffset uint64, partCount uint64) {
	return tw.lastKeyByteOffset, tw.lastKeyPartCount
}

// Evict drops the oldest retained page and its index entry, provided doing
// so leaves at least minRetainedFragments entries and no live slot still
// needs the oldest key (the caller passes the minimum next-expected key
// across all attached viewer slots for this track).
func (tw *TrackWriter) Evict(minNeededKey uint32) error {
	entries := tw.index.Entries()
	if len(entries) <= minRetainedFragments {
		return nil
	}
	oldest := entries[0]
	if minNeededKey < oldest.FirstKey+oldest.KeyCount {
		return nil // a viewer still needs this page
	}
	if err := tw.index.EvictOldest(); err != nil {
		return err
	}
	return tw.store.Remove(shm.TrackDataPageName(tw.streamName, tw.trackID, oldest.FirstKey))
}

// PrefetchHint computes the lowest next-expected key across slots for the
// given trackID, used as the minNeededKey for Evict. Returns ok=false if no
// slot currently references this track (an input-only or fully idle
// stream), in which case the caller should fall back to keeping only
// minRetainedFragments.
func PrefetchHint(slots []Slot, trackID uint32) (key uint32, ok bool) {
	found := false
	var min uint32
	for _, s := range slots {
		for _, h := range s.Hints {
			if h.TrackID != trackID {
				continue
			}
			if !found || h.NextKey < min {
				min = h.NextKey
				found = true
			}
		}
	}
	return min, found
}

// Close unmaps the writer's index and current data pages without removing
// their backing files; readers may still be attached.
func (tw *TrackWriter) Close() error {
	var err error
	if tw.current != nil {
		err = tw.current.page.Close()
	}
	if tw.index != nil {
		if cerr := tw.index.page.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
