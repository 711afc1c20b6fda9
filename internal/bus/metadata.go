package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/mistcore/mist-core/internal/bufpool"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
)

// StreamMeta is the full decoded payload of an MstMeta@ page: the track
// list plus the fragment table used by segmented outputs (§3 Stream, §3
// Fragment).
type StreamMeta struct {
	Tracks    []Track
	Fragments map[uint32][]Fragment // keyed by track ID
	VoD       bool
}

// metaHeaderSize is the 4-byte length prefix written ahead of the gob
// payload so a reader knows exactly how many bytes to decode without
// scanning for a terminator.
const metaHeaderSize = 4

// MetadataPage wraps an MstMeta@ page. Every read and write must be taken
// under the stream's MstLive@ semaphore (§5 "Metadata publish"): the
// critical section is a bounded memcpy in and out of the page, with
// gob encode/decode happening outside the lock so a slow reader never
// holds the writer up.
type MetadataPage struct {
	page *shm.Page
	sem  *shm.Semaphore
}

// NewMetadataPage wraps an already-mapped metadata page and its paired
// MstLive semaphore.
func NewMetadataPage(p *shm.Page, sem *shm.Semaphore) *MetadataPage {
	return &MetadataPage{page: p, sem: sem}
}

// Publish encodes meta and copies it into the page under the live lock.
// NotReadyError is returned if the encoded payload exceeds the page's
// capacity; callers should grow the page (a fresh MstMeta@ page cannot be
// resized in place, so this means recreating it and re-registering with
// any open readers via the stream's reconfigure path).
func (m *MetadataPage) Publish(meta StreamMeta) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return coreerrors.NewFatal("bus.MetadataPage.Publish encode", err)
	}
	payload := buf.Bytes()
	if metaHeaderSize+len(payload) > len(m.page.Mapped) {
		return coreerrors.NewNotReady("bus.MetadataPage.Publish", "TOO_LARGE", nil)
	}

	if err := m.sem.Wait(); err != nil {
		return coreerrors.NewFatal("bus.MetadataPage.Publish lock", err)
	}
	defer m.sem.Post()

	putUint32(m.page.Mapped[:metaHeaderSize], uint32(len(payload)))
	copy(m.page.Mapped[metaHeaderSize:], payload)
	return nil
}

// Read copies the current payload out from under the live lock and decodes
// it outside the critical section.
func (m *MetadataPage) Read() (StreamMeta, error) {
	if err := m.sem.Wait(); err != nil {
		return StreamMeta{}, coreerrors.NewFatal("bus.MetadataPage.Read lock", err)
	}
	n := getUint32(m.page.Mapped[:metaHeaderSize])
	if metaHeaderSize+int(n) > len(m.page.Mapped) {
		m.sem.Post()
		return StreamMeta{}, coreerrors.NewCorruption("bus.MetadataPage.Read", 0, nil)
	}
	raw := bufpool.Get(int(n))
	copy(raw, m.page.Mapped[metaHeaderSize:metaHeaderSize+int(n)])
	m.sem.Post()
	defer bufpool.Put(raw)

	if n == 0 {
		return StreamMeta{}, coreerrors.NewNotFound("bus.MetadataPage.Read", nil)
	}

	var meta StreamMeta
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&meta); err != nil {
		return StreamMeta{}, coreerrors.NewCorruption("bus.MetadataPage.Read decode", 0, err)
	}
	return meta, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
