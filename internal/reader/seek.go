package reader

import (
	"github.com/mistcore/mist-core/internal/bus"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// TrackCursor is one selected track's read position: the key it is
// currently reading from, and the byte offset of the next packet on that
// key's data page.
type TrackCursor struct {
	TrackID uint32
	Key     uint32
	Offset  int
}

// extraKeepAwayZero is the reader's zeroed extraKeepAway accumulator; the
// teacher's sleep-based pacing loop grows it every playbackSleep call, but
// this core keeps no such accumulator (pacing.go has none), so seek math
// only ever needs the zero case.
const extraKeepAwayZero = 0

// KeyForTime returns the key number of the latest key in trk whose time is
// <= target, or false if trk has no keys at or before target.
func KeyForTime(trk bus.Track, target int64) (uint32, bool) {
	found := false
	var key uint32
	for _, k := range trk.Keys {
		if k.TimeMS > target {
			break
		}
		key = k.Number
		found = true
	}
	return key, found
}

// OffsetForKey returns the page-relative byte offset trk recorded for key
// (Key.ByteSize), so a cursor landing on a key that isn't its page's first
// still resumes from the right spot instead of byte 0.
func OffsetForKey(trk bus.Track, key uint32) int {
	for _, k := range trk.Keys {
		if k.Number == key {
			return int(k.ByteSize)
		}
	}
	return 0
}

// SnapToKeyframe rounds target down to the time of the latest key in trk at
// or before target (§4.5 Seek "snap to its keyframe" when the main track is
// video).
func SnapToKeyframe(trk bus.Track, target int64) int64 {
	var pos int64
	for _, k := range trk.Keys {
		if k.TimeMS > target {
			break
		}
		pos = k.TimeMS
	}
	return pos
}

// Seek locates, for each track in meta named by cursors' TrackID, the key
// at or before target and resets the cursor to the start of that key,
// using the key's recorded ByteSize so landing mid-page (not on the
// page's first key) still resumes from the correct byte offset. A track
// whose last timestamp is still short of target is dropped from cursors
// (mirrors the teacher's selectedTracks.erase on an impossible seek) and
// returned in the second slice.
func Seek(meta bus.StreamMeta, cursors []TrackCursor, target int64) (ok []TrackCursor, dropped []uint32) {
	for _, c := range cursors {
		trk, found := findTrack(meta, c.TrackID)
		if !found {
			dropped = append(dropped, c.TrackID)
			continue
		}
		if trk.LastMS < target {
			dropped = append(dropped, c.TrackID)
			continue
		}
		key, found := KeyForTime(trk, target)
		if !found {
			dropped = append(dropped, c.TrackID)
			continue
		}
		ok = append(ok, TrackCursor{TrackID: c.TrackID, Key: key, Offset: OffsetForKey(trk, key)})
	}
	return ok, dropped
}

// InitialSeek computes the initial playback position (§4.5 "Initial
// seek"): 0 for VoD; for live, the newest keyframe of mainTrackID at or
// after 5000ms such that every selected track has data at least
// needsLookAhead+minKeepAway beyond it, falling back to the earliest key
// when nothing qualifies. Keys before 5000ms are never chosen by the
// coverage search. minKeepAway is taken per-track from
// bus.Track.MinKeepAway.
func InitialSeek(meta bus.StreamMeta, mainTrackID uint32, selected []uint32, needsLookAheadMS int64) (int64, error) {
	if !meta.VoD {
		return initialSeekLive(meta, mainTrackID, selected, needsLookAheadMS)
	}
	return 0, nil
}

func initialSeekLive(meta bus.StreamMeta, mainTrackID uint32, selected []uint32, needsLookAheadMS int64) (int64, error) {
	main, found := findTrack(meta, mainTrackID)
	if !found || len(main.Keys) == 0 {
		return 0, coreerrors.NewNotReady("reader.InitialSeek", "NO_MAIN_TRACK", nil)
	}

	var fallback int64
	if len(main.Keys) > 0 {
		fallback = main.Keys[0].TimeMS
	}

	for i := len(main.Keys) - 1; i >= 0; i-- {
		seekPos := main.Keys[i].TimeMS
		if seekPos < 5000 {
			continue
		}
		if allTracksReadyAt(meta, selected, mainTrackID, seekPos, needsLookAheadMS) {
			return seekPos, nil
		}
	}
	return fallback, nil
}

func allTracksReadyAt(meta bus.StreamMeta, selected []uint32, mainTrackID uint32, seekPos, needsLookAheadMS int64) bool {
	for _, id := range selected {
		trk, found := findTrack(meta, id)
		if !found {
			continue
		}
		if trk.LastMS < seekPos+needsLookAheadMS+extraKeepAwayZero+trk.MinKeepAway {
			return false
		}
		if id == mainTrackID {
			continue
		}
		if trk.LastMS == trk.FirstMS {
			continue // point-track, ignore
		}
	}
	return true
}

func findTrack(meta bus.StreamMeta, id uint32) (bus.Track, bool) {
	for _, t := range meta.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return bus.Track{}, false
}

// ValidateKeyAlignment reports whether the key number the reader expects to
// be emitting (expectedKey) still matches the source track's key number
// for emittedTimeMS (§4.5 "Key alignment validation"). A mismatch means the
// producer has since evicted or renumbered keys and the reader must
// re-initial-seek: call InitialSeek then Seek again, which recomputes
// Offset from the new key's ByteSize rather than assuming byte 0.
func ValidateKeyAlignment(trk bus.Track, emittedTimeMS int64, expectedKey uint32) bool {
	key, found := KeyForTime(trk, emittedTimeMS)
	return found && key == expectedKey
}
