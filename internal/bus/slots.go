package bus

import (
	"encoding/binary"
	"time"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
	"github.com/oklog/ulid/v2"
)

// slotSize is the on-disk size of one user/slot entry: a 16-byte ULID
// claim tag, an 8-byte heartbeat (unix ms), a 4-byte host crc, a 1-byte
// session class, and 8 (trackID uint32, nextKey uint32) pairs giving the
// producer a per-output hint of what each viewer is about to need next
// (§3 Session, §4.6 "live-point prefetch"). slotSize reserves 8 bytes for
// the crc, so the last 4 bytes of each slot are unused.
const (
	maxHintedTracks = 8
	slotSize        = 16 + 8 + 8 + 1 + maxHintedTracks*8
)

// SlotHint is one track's next-expected-key hint for a single slot.
type SlotHint struct {
	TrackID uint32
	NextKey uint32
}

// Slot is a decoded MstUsers@ entry.
type Slot struct {
	Claim       ulid.ULID
	HeartbeatMS int64
	HostCRC     uint32
	Class       SessionClass
	Hints       [maxHintedTracks]SlotHint
}

func (s Slot) free() bool { return s.Claim == (ulid.ULID{}) }

// SlotPage wraps an MstUsers@ page: a fixed-size array of viewer slots. The
// producer scans it each prepareNext pass to decide which pages are safe to
// evict (§4.6) and where the live point should be for newly attached
// viewers.
type SlotPage struct {
	page *shm.Page
}

// NewSlotPage wraps an already-mapped slot page.
func NewSlotPage(p *shm.Page) *SlotPage { return &SlotPage{page: p} }

func (sp *SlotPage) count() int { return len(sp.page.Mapped) / slotSize }

// Claim finds a free slot, stamps it with a fresh ULID using the monotonic
// entropy source seeded from now, and returns its index. NotReadyError is
// returned if the page is full, meaning the stream has hit its configured
// viewer cap.
func (sp *SlotPage) Claim(now time.Time, hostCRC uint32, class SessionClass) (int, ulid.ULID, error) {
	for i := 0; i < sp.count(); i++ {
		s, _ := sp.readSlot(i)
		if s.free() {
			id := ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(ulidEntropy(now), 0))
			s = Slot{Claim: id, HeartbeatMS: now.UnixMilli(), HostCRC: hostCRC, Class: class}
			sp.writeSlot(i, s)
			return i, id, nil
		}
	}
	return -1, ulid.ULID{}, coreerrors.NewNotReady("bus.SlotPage.Claim", "FULL", nil)
}

// Release zeroes the slot, making it available for reuse. Safe to call on
// an already-free slot.
func (sp *SlotPage) Release(i int) error {
	if i < 0 || i >= sp.count() {
		return coreerrors.NewNotFound("bus.SlotPage.Release", nil)
	}
	off := i * slotSize
	clear(sp.page.Mapped[off : off+slotSize])
	return nil
}

// Heartbeat refreshes the slot's liveness timestamp and hint table. Called
// by the output's serve loop once per heartbeat interval (§4.6).
func (sp *SlotPage) Heartbeat(i int, now time.Time, hints []SlotHint) error {
	s, err := sp.readSlot(i)
	if err != nil {
		return err
	}
	if s.free() {
		return coreerrors.NewNotFound("bus.SlotPage.Heartbeat stale slot", nil)
	}
	s.HeartbeatMS = now.UnixMilli()
	var arr [maxHintedTracks]SlotHint
	copy(arr[:], hints)
	s.Hints = arr
	sp.writeSlot(i, s)
	return nil
}

// Slots returns all currently claimed slots, for the producer's eviction
// and prefetch scan.
func (sp *SlotPage) Slots() []Slot {
	out := make([]Slot, 0, sp.count())
	for i := 0; i < sp.count(); i++ {
		s, _ := sp.readSlot(i)
		if !s.free() {
			out = append(out, s)
		}
	}
	return out
}

// Stale reports the slots whose heartbeat is older than cutoff, relative to
// now, so the producer can reclaim abandoned viewer slots (a crashed reader
// never calls Release).
func (sp *SlotPage) Stale(now time.Time, cutoff time.Duration) []int {
	var idx []int
	for i := 0; i < sp.count(); i++ {
		s, _ := sp.readSlot(i)
		if s.free() {
			continue
		}
		if now.Sub(time.UnixMilli(s.HeartbeatMS)) > cutoff {
			idx = append(idx, i)
		}
	}
	return idx
}

func (sp *SlotPage) readSlot(i int) (Slot, error) {
	if i < 0 || i >= sp.count() {
		return Slot{}, coreerrors.NewNotFound("bus.SlotPage.readSlot", nil)
	}
	off := i * slotSize
	buf := sp.page.Mapped[off : off+slotSize]

	var s Slot
	copy(s.Claim[:], buf[0:16])
	s.HeartbeatMS = int64(binary.LittleEndian.Uint64(buf[16:24]))
	s.HostCRC = binary.LittleEndian.Uint32(buf[24:28])
	s.Class = SessionClass(buf[28])
	for h := 0; h < maxHintedTracks; h++ {
		base := 29 + h*8
		s.Hints[h] = SlotHint{
			TrackID: binary.LittleEndian.Uint32(buf[base : base+4]),
			NextKey: binary.LittleEndian.Uint32(buf[base+4 : base+8]),
		}
	}
	return s, nil
}

func (sp *SlotPage) writeSlot(i int, s Slot) {
	off := i * slotSize
	buf := sp.page.Mapped[off : off+slotSize]
	copy(buf[0:16], s.Claim[:])
	binary.LittleEndian.PutUint64(buf[16:24], uint64(s.HeartbeatMS))
	binary.LittleEndian.PutUint32(buf[24:28], s.HostCRC)
	buf[28] = byte(s.Class)
	for h := 0; h < maxHintedTracks; h++ {
		base := 29 + h*8
		binary.LittleEndian.PutUint32(buf[base:base+4], s.Hints[h].TrackID)
		binary.LittleEndian.PutUint32(buf[base+4:base+8], s.Hints[h].NextKey)
	}
}

// ulidEntropy returns a deterministic-per-call entropy source seeded from
// now, matching the pattern used anywhere this core needs a ULID without
// importing crypto/rand per call.
func ulidEntropy(now time.Time) *ulidReader { return &ulidReader{seed: uint64(now.UnixNano())} }

// ulidReader is a tiny splitmix64-based io.Reader so Slot claims get
// unique, sortable-by-time IDs without a dependency on crypto/rand in a hot
// per-viewer path.
type ulidReader struct{ seed uint64 }

func (r *ulidReader) Read(p []byte) (int, error) {
	for i := range p {
		r.seed += 0x9E3779B97F4A7C15
		z := r.seed
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		z = z ^ (z >> 31)
		p[i] = byte(z)
	}
	return len(p), nil
}
