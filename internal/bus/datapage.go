package bus

import (
	"encoding/binary"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
)

// Packet wire layout on a data page, back-to-back, little-endian:
//
//	uint32 payloadLen | int64 timeMS | int64 offsetMS | uint8 flags | payload
//
// A payloadLen of 0x00000000 is the live-payload sentinel (§4.4 "Append
// discipline"): a writer always leaves one trailing sentinel after its
// last packet, and overwrites that sentinel in place when it appends the
// next packet, so a page never has a torn trailing record visible to a
// concurrent reader.
const packetHeaderSize = 4 + 8 + 8 + 1

// PageFlipTargetBytes, PageFlipMinDurationMS, and PageFlipTargetDurationMS
// are the §4.4 "Page flip policy" thresholds.
const (
	PageFlipTargetBytes      = 8 << 20
	PageFlipMinDurationMS    = 1000
	PageFlipTargetDurationMS = 5000
)

// DataPage wraps a single MstData@ page for append (producer) or sequential
// read (consumer) access.
type DataPage struct {
	page     *shm.Page
	TrackID  uint32
	FirstKey uint32
}

// NewDataPage wraps an already-mapped page.
func NewDataPage(p *shm.Page, trackID, firstKey uint32) *DataPage {
	return &DataPage{page: p, TrackID: trackID, FirstKey: firstKey}
}

// Bytes exposes the underlying mapped region (used by eviction/copy paths).
func (d *DataPage) Bytes() []byte { return d.page.Mapped }

// Append writes pkt at offset, overwriting the sentinel that must be
// present there, and writes a fresh sentinel immediately after. Returns the
// offset of the newly written sentinel (where the next Append must land)
// and NotReadyError if the page does not have room for both the packet and
// a trailing sentinel.
func (d *DataPage) Append(offset int, pkt Packet) (nextOffset int, err error) {
	need := packetHeaderSize + len(pkt.Payload) + 4 // +4 for the new trailing sentinel
	if offset+need > len(d.page.Mapped) {
		return offset, coreerrors.NewNotReady("bus.DataPage.Append", "FULL", nil)
	}

	buf := d.page.Mapped
	binary.LittleEndian.PutUint64(buf[offset+4:], uint64(pkt.TimeMS))
	binary.LittleEndian.PutUint64(buf[offset+12:], uint64(pkt.OffsetMS))
	buf[offset+20] = byte(pkt.Flags)
	copy(buf[offset+packetHeaderSize:], pkt.Payload)

	next := offset + packetHeaderSize + len(pkt.Payload)
	binary.LittleEndian.PutUint32(buf[next:], 0) // fresh sentinel
	// The length overwrites the old sentinel last, so the record only
	// becomes visible once its body and the new sentinel are in place.
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(pkt.Payload)))
	return next, nil
}

// ReadAt decodes the packet record starting at offset. ok is false and err
// is nil when offset holds the zero sentinel (end of live data on this
// page); callers treat that as "consult the track index for a successor
// page" per §4.5 prepareNext.
func (d *DataPage) ReadAt(offset int) (pkt Packet, next int, ok bool, err error) {
	buf := d.page.Mapped
	if offset+4 > len(buf) {
		return Packet{}, offset, false, coreerrors.NewCorruption("bus.DataPage.ReadAt", d.TrackID, nil)
	}
	payloadLen := binary.LittleEndian.Uint32(buf[offset:])
	if payloadLen == 0 {
		return Packet{}, offset, false, nil
	}
	if offset+packetHeaderSize+int(payloadLen) > len(buf) {
		return Packet{}, offset, false, coreerrors.NewCorruption("bus.DataPage.ReadAt truncated record", d.TrackID, nil)
	}

	timeMS := int64(binary.LittleEndian.Uint64(buf[offset+4:]))
	offsetMS := int64(binary.LittleEndian.Uint64(buf[offset+12:]))
	flags := PacketFlags(buf[offset+20])
	payload := buf[offset+packetHeaderSize : offset+packetHeaderSize+int(payloadLen)]

	pkt = Packet{TrackID: d.TrackID, TimeMS: timeMS, OffsetMS: offsetMS, Flags: flags, Payload: payload}
	return pkt, offset + packetHeaderSize + int(payloadLen), true, nil
}

// PageFlipPolicy reports whether the current page should be closed at the
// next keyframe boundary, per §4.4: size over target with duration over the
// minimum, or duration alone over the target.
func PageFlipPolicy(accumulatedBytes int, durationMS int64) bool {
	if accumulatedBytes > PageFlipTargetBytes && durationMS > PageFlipMinDurationMS {
		return true
	}
	return durationMS > PageFlipTargetDurationMS
}
