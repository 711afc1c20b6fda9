package stats

import (
	"sync"

	"github.com/mistcore/mist-core/internal/bus"
	"github.com/mistcore/mist-core/internal/logger"
)

// AccessLogFunc records one retired session as a single access-log line
// (§4.6 "logs a single access record"). The controller wires this to its
// log writer; tests can pass nil to skip logging.
type AccessLogFunc func(idx SessIndex, durationSec, up, down int64, connID ConnID)

// Aggregator folds exchange records from every input/output process into a
// session index and per-stream totals, at 1 Hz (§4.6). It is the
// controller-side singleton; one Aggregator per running controller
// process, driven by Tick on a time.Ticker.
type Aggregator struct {
	mu            sync.Mutex
	sessions      map[SessIndex]*Session
	connToSession map[ConnID]SessIndex
	streamTotals  map[string]*Totals
	onAccess      AccessLogFunc
}

// NewAggregator returns an empty Aggregator. onAccess may be nil.
func NewAggregator(onAccess AccessLogFunc) *Aggregator {
	return &Aggregator{
		sessions:      make(map[SessIndex]*Session),
		connToSession: make(map[ConnID]SessIndex),
		streamTotals:  make(map[string]*Totals),
		onAccess:      onAccess,
	}
}

func (a *Aggregator) totalsFor(stream string) *Totals {
	t, ok := a.streamTotals[stream]
	if !ok {
		t = &Totals{}
		a.streamTotals[stream] = t
	}
	return t
}

// ParseRecord folds one freshly published exchange record into the session
// index, reindexing the owning connection's session if the record's tuple
// changed since the last record this connection id published (§4.6
// "Session index", original's parseStatistics). The controller calls it for
// every row of the statistics exchange page on each 1 Hz pass, before Tick.
func (a *Aggregator) ParseRecord(r ExchangeRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := r.Index()
	if prevIdx, ok := a.connToSession[r.ConnID]; ok && prevIdx != idx {
		prevSess := a.sessions[prevIdx]
		newSess, ok := a.sessions[idx]
		if !ok {
			newSess = NewSession()
			a.sessions[idx] = newSess
		}
		if prevSess.Class() != bus.SessionUnset {
			logger.Logger().Info("switching active session", "conn", r.ConnID, "from", prevIdx, "to", idx)
		} else {
			logger.Logger().Debug("switching inactive session", "conn", r.ConnID, "from", prevIdx, "to", idx)
		}
		prevSess.SwitchOverTo(newSess, r.ConnID)
		if !prevSess.HasData() {
			delete(a.sessions, prevIdx)
		}
	}
	a.connToSession[r.ConnID] = idx

	sess, ok := a.sessions[idx]
	if !ok {
		sess = NewSession()
		a.sessions[idx] = sess
	}
	sess.Update(r.ConnID, r, a.totalsFor(idx.Stream))

	if r.Disconnecting {
		sess.Finish(r.ConnID)
		delete(a.connToSession, r.ConnID)
	}
}

// Tick runs one pass of the 1 Hz sweep at wall-clock second now: pings
// every session against its class's inactivity deadline, wipes samples
// older than StatCutoff, and removes sessions left with no data (§4.6
// "Inactivity retirement").
func (a *Aggregator) Tick(now int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now - StatCutoff
	disconnectOut := now - StatsDelay
	disconnectIn := now - StatsInputDelay

	var toDelete []SessIndex
	for idx, sess := range a.sessions {
		dPoint := disconnectOut
		if sess.Class() == bus.SessionInput {
			dPoint = disconnectIn
		}
		sess.Ping(idx, dPoint, a.totalsFor(idx.Stream), func(i SessIndex, dur, up, down int64) {
			if a.onAccess != nil {
				a.onAccess(i, dur, up, down, 0)
			}
		})
		sess.WipeOld(cutoff)
		if !sess.HasData() {
			toDelete = append(toDelete, idx)
		}
	}
	for _, idx := range toDelete {
		delete(a.sessions, idx)
	}
}

// StreamTotals returns a snapshot copy of the counters for stream, or a zero
// Totals if nothing has ever reported for it.
func (a *Aggregator) StreamTotals(stream string) Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.streamTotals[stream]; ok {
		return *t
	}
	return Totals{}
}

// Streams returns every stream name the aggregator has counters for.
func (a *Aggregator) Streams() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.streamTotals))
	for s := range a.streamTotals {
		out = append(out, s)
	}
	return out
}

// snapshot returns the (idx, *Session) pairs live at call time; queries.go
// builds its results from this under the same lock to keep a query
// consistent with a single instant.
func (a *Aggregator) snapshot() map[SessIndex]*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[SessIndex]*Session, len(a.sessions))
	for idx, s := range a.sessions {
		out[idx] = s
	}
	return out
}
