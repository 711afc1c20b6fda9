package bus

import (
	"encoding/binary"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
)

// TrackIndexEntrySize is the on-disk size of one MstTrkIdx@ entry: a
// uint32 firstKey and a uint32 keyCount, little-endian.
const TrackIndexEntrySize = shm.TrackIndexEntrySize

// TrackIndexEntry names the data page holding keys [firstKey, firstKey+keyCount)
// for a track. A zero KeyCount marks a free (reusable) slot.
type TrackIndexEntry struct {
	FirstKey uint32
	KeyCount uint32
}

// Empty reports whether the slot holds no live page.
func (e TrackIndexEntry) Empty() bool { return e.KeyCount == 0 }

// TrackIndex wraps an MstTrkIdx@ page: a flat, fixed-size table of
// TrackIndexEntry, ordered oldest-to-newest by FirstKey. Readers walk it to
// translate a desired key number into a page name (§4.5 prepareNext); the
// producer appends a new entry on page flip and, on eviction, shifts the
// later entries down one slot and zeroes the last slot. The entry count is not stored separately: readers scan until
// they hit the first Empty entry, so KeyCount must always be written last
// within an entry (§4.4 "index publish").
type TrackIndex struct {
	page *shm.Page
}

// NewTrackIndex wraps an already-mapped track index page.
func NewTrackIndex(p *shm.Page) *TrackIndex { return &TrackIndex{page: p} }

func (t *TrackIndex) slotCount() int { return len(t.page.Mapped) / TrackIndexEntrySize }

// Entry reads the slot at i.
func (t *TrackIndex) Entry(i int) (TrackIndexEntry, error) {
	if i < 0 || i >= t.slotCount() {
		return TrackIndexEntry{}, coreerrors.NewNotFound("bus.TrackIndex.Entry", nil)
	}
	off := i * TrackIndexEntrySize
	buf := t.page.Mapped[off : off+TrackIndexEntrySize]
	return TrackIndexEntry{
		FirstKey: binary.LittleEndian.Uint32(buf[0:4]),
		KeyCount: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// Entries returns all live (non-empty) entries in slot order.
func (t *TrackIndex) Entries() []TrackIndexEntry {
	out := make([]TrackIndexEntry, 0, t.slotCount())
	for i := 0; i < t.slotCount(); i++ {
		e, _ := t.Entry(i)
		if e.Empty() {
			break
		}
		out = append(out, e)
	}
	return out
}

// Append writes a new entry into the first empty slot. FirstKey is written
// before KeyCount so a concurrent reader never observes a nonzero KeyCount
// with a stale FirstKey.
func (t *TrackIndex) Append(entry TrackIndexEntry) error {
	if entry.KeyCount == 0 {
		return coreerrors.NewFatal("bus.TrackIndex.Append zero KeyCount", nil)
	}
	for i := 0; i < t.slotCount(); i++ {
		e, _ := t.Entry(i)
		if e.Empty() {
			off := i * TrackIndexEntrySize
			buf := t.page.Mapped[off : off+TrackIndexEntrySize]
			binary.LittleEndian.PutUint32(buf[0:4], entry.FirstKey)
			binary.LittleEndian.PutUint32(buf[4:8], entry.KeyCount)
			return nil
		}
	}
	return coreerrors.NewNotReady("bus.TrackIndex.Append", "FULL", nil)
}

// GrowKeyCount updates the KeyCount of the entry at slot i for in-place
// growth of the current live page (more keys land on the same page between
// flips).
func (t *TrackIndex) GrowKeyCount(i int, keyCount uint32) error {
	if i < 0 || i >= t.slotCount() {
		return coreerrors.NewNotFound("bus.TrackIndex.GrowKeyCount", nil)
	}
	off := i * TrackIndexEntrySize
	binary.LittleEndian.PutUint32(t.page.Mapped[off+4:off+8], keyCount)
	return nil
}

// EvictOldest clears slot 0 and shifts all subsequent entries down by one,
// zeroing the vacated tail slot. The producer holds the input lock across
// this call so no reader observes a partially shifted table (§4.6 eviction
// invariant: a reader never sees a cleared slot it still maps).
func (t *TrackIndex) EvictOldest() error {
	n := t.slotCount()
	if n == 0 {
		return nil
	}
	first, _ := t.Entry(0)
	if first.Empty() {
		return coreerrors.NewNotFound("bus.TrackIndex.EvictOldest", nil)
	}
	for i := 0; i < n-1; i++ {
		next, _ := t.Entry(i + 1)
		off := i * TrackIndexEntrySize
		buf := t.page.Mapped[off : off+TrackIndexEntrySize]
		binary.LittleEndian.PutUint32(buf[0:4], next.FirstKey)
		binary.LittleEndian.PutUint32(buf[4:8], next.KeyCount)
		if next.Empty() {
			break
		}
	}
	lastOff := (n - 1) * TrackIndexEntrySize
	clear(t.page.Mapped[lastOff : lastOff+TrackIndexEntrySize])
	return nil
}

// SlotForFirstKey returns the index of the entry whose FirstKey matches,
// used by the producer to relocate its current-page slot after an eviction
// has shifted every later slot down by one.
func (t *TrackIndex) SlotForFirstKey(firstKey uint32) (int, error) {
	for i := 0; i < t.slotCount(); i++ {
		e, _ := t.Entry(i)
		if e.Empty() {
			break
		}
		if e.FirstKey == firstKey {
			return i, nil
		}
	}
	return -1, coreerrors.NewNotFound("bus.TrackIndex.SlotForFirstKey", nil)
}

// FindPageForKey returns the index of the entry whose range contains key,
// or NotFoundError if key predates the oldest retained entry or is beyond
// the newest.
func (t *TrackIndex) FindPageForKey(key uint32) (int, TrackIndexEntry, error) {
	entries := t.Entries()
	for i, e := range entries {
		if key >= e.FirstKey && key < e.FirstKey+e.KeyCount {
			return i, e, nil
		}
	}
	return -1, TrackIndexEntry{}, coreerrors.NewNotFound("bus.TrackIndex.FindPageForKey", nil)
}
