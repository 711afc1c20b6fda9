// Package stats implements Session Statistics (§4.6): the per-connection
// exchange record every input/output process publishes once a second, the
// 1 Hz aggregator that folds those records into per-session and per-stream
// totals, and the queries (clients/totals/active_streams) the controller
// exposes over them.
//
// A Session is the logical viewer identified by (host, stream, connector,
// crc), stable across reconnects (§3 Session); a single OS-level connection
// only ever belongs to one Session at a time, but the Session it belongs to
// can change mid-flight if the connection's exchange record's tuple changes
// (a reconnect that picks the same tuple merges into the prior Session
// instead of starting a new one).
package stats

import "github.com/mistcore/mist-core/internal/bus"

// Tunables from §4.6 / original_source's controller_statistics.cpp, carried
// bit-exact.
const (
	// CountableBytes is the cumulative byte threshold at which a session is
	// first classified and counted into its stream's totals.
	CountableBytes = 128 * 1024

	// StatCutoff is how long a sample stays in a session's log before
	// eviction; once evicted it is folded into wipedUp/wipedDown so the
	// cumulative counters never regress.
	StatCutoff = 600 // seconds

	// StatsDelay is the inactivity window after which an output/viewer
	// session is retired.
	StatsDelay = 10 // seconds

	// StatsInputDelay is the (longer) inactivity window for input sessions,
	// which ping less eagerly than viewer connections.
	StatsInputDelay = 20 // seconds
)

// ConnID identifies one OS-level connection's exchange record within the
// statistics exchange page. It is not stable across reconnects — SessIndex
// is.
type ConnID uint64

// SessIndex is the (host, stream, connector, crc) tuple that identifies a
// logical Session across reconnects (§3 Session, §4.6 "Session index").
type SessIndex struct {
	Host      string
	Stream    string
	Connector string
	CRC       uint32
}

// classifyConnector maps a connector name to its bus.SessionClass.
// Classification only ever happens once per Session (on first crossing
// CountableBytes) and is keyed off the literal connector string, per the
// supplemented feature from controller_statistics.cpp.
func classifyConnector(connector string) bus.SessionClass {
	switch connector {
	case "INPUT":
		return bus.SessionInput
	case "OUTPUT":
		return bus.SessionOutput
	default:
		return bus.SessionViewer
	}
}
