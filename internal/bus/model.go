// Package bus implements the Packet Bus (§3, §4.4): the live ring of data
// pages per track, the key-to-page index, the metadata page, and the
// per-client slot page, plus the producer-side append/evict/prefetch logic.
package bus

// TrackKind classifies the media carried by a Track.
type TrackKind int

const (
	KindVideo TrackKind = iota
	KindAudio
	KindSubtitle
	KindMeta
)

func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	case KindMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Track is a numbered media stream within a Stream (§3 Track).
type Track struct {
	ID          uint32
	Kind        TrackKind
	Codec       string
	Init        []byte
	FPS         float64
	Rate        uint32 // sampling rate (audio) or timescale
	Channels    int
	SampleSize  int
	Language    string // 3-letter tag
	FirstMS     int64
	LastMS      int64
	MinKeepAway int64 // ms, producer-controlled safety margin
	Keys        []Key
	Parts       []Part
}

// Key is a keyframe boundary (§3 Key). PartCount and ByteSize are relative
// to the start of this key's containing data page, not the track overall:
// a data page resets both counters to 0 when it opens (producer.go's
// openNextPage), so a key that isn't its page's first key still records
// the exact part/byte offset a reader must resume from.
type Key struct {
	Number    uint32
	TimeMS    int64
	PartCount uint64 // parts written to this key's page before this key began
	ByteSize  uint64 // bytes written to this key's page before this key began
}

// Part is one packet's footprint within a track's dense part sequence,
// used to derive a key's cumulative counters incrementally as packets
// arrive.
type Part struct {
	TimeMS int64
	Size   uint32
}

// Fragment groups contiguous Keys into a target segment duration for
// segmented containers (§3 Fragment).
type Fragment struct {
	StartKey   uint32
	DurationMS int64
}

// PacketFlags are per-packet flags.
type PacketFlags uint8

const (
	FlagKeyframe PacketFlags = 1 << iota
)

// Packet is a self-describing record for one Track (§3 Packet).
type Packet struct {
	TrackID  uint32
	TimeMS   int64
	OffsetMS int64 // optional decoding offset (B-frame reordering)
	Payload  []byte
	Flags    PacketFlags
}

// IsKeyframe reports whether the packet starts a new Key.
func (p Packet) IsKeyframe() bool { return p.Flags&FlagKeyframe != 0 }

// SessionClass is the §3 Session classification.
type SessionClass int

const (
	SessionUnset SessionClass = iota
	SessionInput
	SessionOutput
	SessionViewer
)

// Session is a logical viewer identified by (host, stream, connector, crc)
// (§3 Session). The full accounting lifecycle lives in internal/stats;
// this is the bus-facing identity the producer's slot prefetch and the
// reader's heartbeat both reference.
type Session struct {
	Host      string
	Stream    string
	Connector string
	CRC       uint32
	Class     SessionClass
}
