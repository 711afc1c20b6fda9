package stats

import (
	"encoding/binary"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// Exchange row layout published periodically by every input/output process
// to the MstStatistics page (§4.1, §4.6): a connection id, the
// (host, stream, connector, crc) tuple, a wall-clock "now", the producer's
// "lastSecond" media position, cumulative connected seconds, and cumulative
// up/down bytes. A trailing control byte carries the record state; only
// 126/127 ("disconnecting, this is the final record", §4.6) are
// interpreted. The byte is not a publish counter: the aggregator folds in
// every record it reads and cannot tell a fresh record from a stale one.
const (
	hostFieldSize      = 39 // max "255.255.255.255:65535"-ish + slack, NUL-padded
	streamFieldSize    = 101
	connectorFieldSize = 16

	// ExchangeRowSize is the fixed width of one statistics exchange row.
	ExchangeRowSize = 8 /*connID*/ + hostFieldSize + streamFieldSize + connectorFieldSize +
		4 /*crc*/ + 8*5 /*now,lastSecond,connectedSec,up,down*/ + 1 /*control*/
)

// Control-field sentinel values (§4.6).
const (
	ControlDisconnectingA byte = 126
	ControlDisconnectingB byte = 127
)

// ExchangeRecord is the decoded form of one statistics exchange row.
type ExchangeRecord struct {
	ConnID        ConnID
	Host          string
	Stream        string
	Connector     string
	CRC           uint32
	Now           int64 // unix seconds, wall clock of the writer
	LastSecond    int64 // media position the connection last requested
	ConnectedSec  int64 // cumulative time connected, seconds
	Up            int64 // cumulative bytes sent by the writer (uploaded to the peer)
	Down          int64 // cumulative bytes received by the writer
	Control       byte
	Disconnecting bool
}

// Index returns this record's SessIndex.
func (r ExchangeRecord) Index() SessIndex {
	return SessIndex{Host: r.Host, Stream: r.Stream, Connector: r.Connector, CRC: r.CRC}
}

func putFixedString(buf []byte, s string) {
	clear(buf)
	copy(buf, s)
}

func getFixedString(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

// EncodeExchangeRecord marshals r into a fixed-width row suitable for
// shm.RelAcc.Append/WriteRow.
func EncodeExchangeRecord(r ExchangeRecord) []byte {
	buf := make([]byte, ExchangeRowSize)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.ConnID))
	off += 8
	putFixedString(buf[off:off+hostFieldSize], r.Host)
	off += hostFieldSize
	putFixedString(buf[off:off+streamFieldSize], r.Stream)
	off += streamFieldSize
	putFixedString(buf[off:off+connectorFieldSize], r.Connector)
	off += connectorFieldSize
	binary.LittleEndian.PutUint32(buf[off:], r.CRC)
	off += 4
	for _, v := range []int64{r.Now, r.LastSecond, r.ConnectedSec, r.Up, r.Down} {
		binary.LittleEndian.PutUint64(buf[off:], uint64(v))
		off += 8
	}
	control := r.Control
	if r.Disconnecting && control != ControlDisconnectingA && control != ControlDisconnectingB {
		control = ControlDisconnectingA
	}
	buf[off] = control
	return buf
}

// DecodeExchangeRecord unmarshals a fixed-width row written by
// EncodeExchangeRecord. Returns a Fatal error if the row is the wrong size
// (a corrupt page layout, never a normal runtime condition).
func DecodeExchangeRecord(row []byte) (ExchangeRecord, error) {
	if len(row) != ExchangeRowSize {
		return ExchangeRecord{}, coreerrors.NewFatal("stats.DecodeExchangeRecord wrong row size", nil)
	}
	var r ExchangeRecord
	off := 0
	r.ConnID = ConnID(binary.LittleEndian.Uint64(row[off:]))
	off += 8
	r.Host = getFixedString(row[off : off+hostFieldSize])
	off += hostFieldSize
	r.Stream = getFixedString(row[off : off+streamFieldSize])
	off += streamFieldSize
	r.Connector = getFixedString(row[off : off+connectorFieldSize])
	off += connectorFieldSize
	r.CRC = binary.LittleEndian.Uint32(row[off:])
	off += 4
	vals := make([]int64, 5)
	for i := range vals {
		vals[i] = int64(binary.LittleEndian.Uint64(row[off:]))
		off += 8
	}
	r.Now, r.LastSecond, r.ConnectedSec, r.Up, r.Down = vals[0], vals[1], vals[2], vals[3], vals[4]
	r.Control = row[off]
	r.Disconnecting = r.Control == ControlDisconnectingA || r.Control == ControlDisconnectingB
	return r, nil
}
