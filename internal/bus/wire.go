package bus

import (
	"encoding/binary"
	"io"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// WireRecordHeaderSize is the size of a flat Packet record's header as
// written by EncodePacketRecord: uint32 trackID, uint32 payloadLen, int64
// timeMS, int64 offsetMS, uint8 flags.
//
// This is the core's boundary framing for packets crossing outside the
// shared-memory bus entirely (an input's ingest source, an output's sink);
// it is deliberately separate from DataPage's own on-page layout so the
// two can evolve independently; the on-page header has no leading trackID
// and is 4 bytes shorter.
const WireRecordHeaderSize = 4 + 4 + 8 + 8 + 1

// EncodePacketRecord appends pkt's flat wire encoding to buf and returns
// the grown slice.
func EncodePacketRecord(buf []byte, pkt Packet) []byte {
	var header [WireRecordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], pkt.TrackID)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(pkt.Payload)))
	binary.LittleEndian.PutUint64(header[8:16], uint64(pkt.TimeMS))
	binary.LittleEndian.PutUint64(header[16:24], uint64(pkt.OffsetMS))
	header[24] = byte(pkt.Flags)
	buf = append(buf, header[:]...)
	buf = append(buf, pkt.Payload...)
	return buf
}

// DecodePacketRecord reads one flat-encoded packet from r. It returns
// io.EOF unmodified when r is exhausted between records so callers can
// loop until EOF the usual way.
func DecodePacketRecord(r io.Reader) (Packet, error) {
	var header [WireRecordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Packet{}, io.EOF
		}
		return Packet{}, coreerrors.NewFatal("bus.DecodePacketRecord header", err)
	}
	trackID := binary.LittleEndian.Uint32(header[0:4])
	payloadLen := binary.LittleEndian.Uint32(header[4:8])
	timeMS := int64(binary.LittleEndian.Uint64(header[8:16]))
	offsetMS := int64(binary.LittleEndian.Uint64(header[16:24]))
	flags := PacketFlags(header[24])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, coreerrors.NewFatal("bus.DecodePacketRecord payload", err)
	}
	return Packet{TrackID: trackID, TimeMS: timeMS, OffsetMS: offsetMS, Flags: flags, Payload: payload}, nil
}
