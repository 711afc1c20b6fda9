package stats

import (
	"sort"

	"github.com/mistcore/mist-core/internal/bus"
)

// sample is one published point in a connection's log, keyed by wall-clock
// second in the log it lives in.
type sample struct {
	t            int64
	lastSecond   int64
	connectedSec int64
	up           int64
	down         int64
}

// connLog holds one connection's samples, newest last. Samples are appended
// in arrival order (the writer's "now" is expected to be nondecreasing but
// is not required to be, matching the original's map-keyed-by-time
// storage).
type connLog struct {
	samples []sample
}

func (l *connLog) update(r ExchangeRecord) {
	l.samples = append(l.samples, sample{
		t: r.Now, lastSecond: r.LastSecond, connectedSec: r.ConnectedSec,
		up: r.Up, down: r.Down,
	})
}

func (l *connLog) last() (sample, bool) {
	if len(l.samples) == 0 {
		return sample{}, false
	}
	return l.samples[len(l.samples)-1], true
}

func (l *connLog) first() (sample, bool) {
	if len(l.samples) == 0 {
		return sample{}, false
	}
	return l.samples[0], true
}

// at returns the most recent sample with t <= target, or ok=false if the
// log has no such sample (§4.6 sample lookup is always "latest at or
// before").
func (l *connLog) at(target int64) (sample, bool) {
	// samples are append-ordered and expected nondecreasing; the binary
	// search relies on that order and has no linear-scan fallback.
	idx := sort.Search(len(l.samples), func(i int) bool { return l.samples[i].t > target })
	if idx == 0 {
		return sample{}, false
	}
	return l.samples[idx-1], true
}

func (l *connLog) hasDataFor(t int64) bool {
	if len(l.samples) == 0 {
		return false
	}
	return t >= l.samples[0].t
}

// evictBefore drops samples strictly older than cutoff, keeping at least
// one sample (the caller folds the dropped tail into wipedUp/wipedDown
// before calling, for the "current" log only — archived logs evict fully,
// see Session.WipeOld).
func (l *connLog) evictBefore(cutoff int64, keepLast bool) (droppedUp, droppedDown int64, droppedAll bool) {
	keep := 0
	for keep < len(l.samples) {
		if keepLast && len(l.samples)-keep <= 1 {
			break
		}
		if l.samples[keep].t >= cutoff {
			break
		}
		if len(l.samples)-keep == 1 {
			droppedUp += l.samples[keep].up
			droppedDown += l.samples[keep].down
		}
		keep++
	}
	droppedAll = keep == len(l.samples)
	l.samples = l.samples[keep:]
	return
}

// Session is the logical viewer accounting record for one SessIndex (§3
// Session, §4.6). It aggregates one or more connection logs (a viewer can
// hold several sockets, e.g. reconnects attributed to the same tuple) into
// cumulative counters that survive log eviction via wipedUp/wipedDown.
type Session struct {
	curConns map[ConnID]*connLog
	oldConns []*connLog

	firstSec    int64 // earliest sample timestamp currently retained, or 0 if none
	lastSec     int64 // latest sample timestamp ever observed
	firstActive int64 // firstSec at the moment this session became tracked
	tracked     bool

	wipedUp   int64
	wipedDown int64

	class bus.SessionClass
}

// NewSession returns an empty, untracked Session.
func NewSession() *Session {
	return &Session{curConns: make(map[ConnID]*connLog)}
}

func (s *Session) connLog(id ConnID) *connLog {
	l, ok := s.curConns[id]
	if !ok {
		l = &connLog{}
		s.curConns[id] = l
	}
	return l
}

// Update folds a freshly published exchange record for connection id into
// this session, tracking cumulative up/down deltas and classifying the
// session on first crossing CountableBytes (§4.6 statSession::update).
// totals receives the per-stream counter increments this update triggers;
// pass nil to skip classification bookkeeping (e.g. in tests).
func (s *Session) Update(id ConnID, r ExchangeRecord, totals *Totals) {
	prevUp, prevDown := s.GetUp(), s.GetDown()

	s.connLog(id).update(r)

	if s.firstSec == 0 || r.Now < s.firstSec {
		s.firstSec = r.Now
	}
	if r.Now > s.lastSec {
		s.lastSec = r.Now
		if !s.tracked {
			s.tracked = true
			s.firstActive = s.firstSec
		}
	}

	currUp, currDown := s.GetUp(), s.GetDown()
	if currUp+currDown < CountableBytes {
		return
	}
	if s.class == bus.SessionUnset {
		s.class = classifyConnector(r.Connector)
		if totals != nil {
			totals.countSession(s.class)
		}
	}
	if totals == nil {
		return
	}
	if prevUp+prevDown < CountableBytes {
		totals.addBytes(currUp, currDown)
	} else {
		totals.addBytes(currUp-prevUp, currDown-prevDown)
	}
}

// Class reports this session's classification ({unset, input, output,
// viewer}), set exactly once on the first crossing of CountableBytes.
func (s *Session) Class() bus.SessionClass { return s.class }

// Tracked reports whether this session currently holds live (unwiped-out)
// activity; Ping clears it on inactivity retirement.
func (s *Session) Tracked() bool { return s.tracked }

// WipeOld archives samples older than cutoff out of every connection log,
// folding the last dropped sample of a fully-evicted log into
// wipedUp/wipedDown so cumulative counters never regress even after the
// underlying samples are gone (§4.6, original's statSession::wipeOld).
func (s *Session) WipeOld(cutoff int64) {
	if s.firstSec > cutoff {
		return
	}
	s.firstSec = 0
	for i := 0; i < len(s.oldConns); {
		l := s.oldConns[i]
		up, down, all := l.evictBefore(cutoff, false)
		s.wipedUp += up
		s.wipedDown += down
		if all {
			s.oldConns = append(s.oldConns[:i], s.oldConns[i+1:]...)
			continue
		}
		if first, ok := l.first(); ok && (s.firstSec == 0 || first.t < s.firstSec) {
			s.firstSec = first.t
		}
		i++
	}
	for _, l := range s.curConns {
		// current connections always keep their last sample so a still-live
		// socket never looks dataless mid-poll.
		l.evictBefore(cutoff, true)
		if first, ok := l.first(); ok && (s.firstSec == 0 || first.t < s.firstSec) {
			s.firstSec = first.t
		}
	}
}

// Ping checks this session against the inactivity deadline for its class
// and, if it has gone silent, retires it: decrements the matching "current"
// stream counter, logs a single access record via logAccess, and resets the
// session to an untracked state: its bounds, wiped counters, archived logs
// and class are cleared, while the logs of current connections are kept.
// Returns true if the session was retired by this call.
func (s *Session) Ping(idx SessIndex, disconnectPoint int64, totals *Totals, logAccess func(idx SessIndex, durationSec, up, down int64)) bool {
	if !s.tracked {
		return false
	}
	if s.lastSec >= disconnectPoint {
		return false
	}
	if totals != nil {
		totals.uncountSession(s.class)
	}
	duration := s.lastSec - s.firstActive
	if duration < 1 {
		duration = 1
	}
	if logAccess != nil {
		logAccess(idx, duration, s.GetUp(), s.GetDown())
	}
	s.tracked = false
	s.firstActive = 0
	s.firstSec = 0
	s.lastSec = 0
	s.wipedUp = 0
	s.wipedDown = 0
	s.oldConns = nil
	s.class = bus.SessionUnset
	return true
}

// Finish archives connection id's log (e.g. on a socket-level close) into
// oldConns, keeping its accumulated samples available to WipeOld/queries
// without it still counting as "current".
func (s *Session) Finish(id ConnID) {
	if l, ok := s.curConns[id]; ok {
		s.oldConns = append(s.oldConns, l)
		delete(s.curConns, id)
	}
}

// SwitchOverTo moves connection id's log from s into dest, re-deriving both
// sessions' firstSec/lastSec bounds (§4.6 "reindexes its session", original
// statSession::switchOverTo). Used when a reconnect's exchange record
// carries a different SessIndex tuple than the one its connection id was
// previously attributed to.
func (s *Session) SwitchOverTo(dest *Session, id ConnID) {
	l, ok := s.curConns[id]
	if !ok {
		return
	}
	if first, okF := l.first(); okF {
		if dest.firstSec == 0 || first.t < dest.firstSec {
			dest.firstSec = first.t
		}
	}
	if last, okL := l.last(); okL && last.t > dest.lastSec {
		dest.lastSec = last.t
	}
	dest.curConns[id] = l
	delete(s.curConns, id)

	if len(l.samples) == 0 {
		return
	}
	s.firstSec, s.lastSec = 0, 0
	for _, old := range s.oldConns {
		if first, okF := old.first(); okF && (s.firstSec == 0 || first.t < s.firstSec) {
			s.firstSec = first.t
		}
		if last, okL := old.last(); okL && last.t > s.lastSec {
			s.lastSec = last.t
		}
	}
	for _, cur := range s.curConns {
		if first, okF := cur.first(); okF && (s.firstSec == 0 || first.t < s.firstSec) {
			s.firstSec = first.t
		}
		if last, okL := cur.last(); okL && last.t > s.lastSec {
			s.lastSec = last.t
		}
	}
}

// HasData reports whether this session still retains any sample, current
// or archived. A session with none is eligible for removal from the
// session index.
func (s *Session) HasData() bool {
	if s.firstSec == 0 && s.lastSec == 0 {
		return false
	}
	for _, l := range s.oldConns {
		if len(l.samples) > 0 {
			return true
		}
	}
	for _, l := range s.curConns {
		if len(l.samples) > 0 {
			return true
		}
	}
	return false
}

// GetStart returns the earliest retained sample timestamp.
func (s *Session) GetStart() int64 { return s.firstSec }

// GetEnd returns the most recent sample timestamp ever observed.
func (s *Session) GetEnd() int64 { return s.lastSec }

// GetUp returns cumulative uploaded bytes across every log plus wipedUp.
func (s *Session) GetUp() int64 {
	return s.cumulative(func(sm sample) int64 { return sm.up }) + s.wipedUp
}

// GetDown returns cumulative downloaded bytes across every log plus wipedDown.
func (s *Session) GetDown() int64 {
	return s.cumulative(func(sm sample) int64 { return sm.down }) + s.wipedDown
}

func (s *Session) cumulative(pick func(sample) int64) int64 {
	var total int64
	for _, l := range s.oldConns {
		if last, ok := l.last(); ok {
			total += pick(last)
		}
	}
	for _, l := range s.curConns {
		if last, ok := l.last(); ok {
			total += pick(last)
		}
	}
	return total
}

// GetUpAt / GetDownAt return cumulative bytes as of timestamp t, using each
// log's latest sample at or before t (§4.6 getUp(t)/getDown(t)).
func (s *Session) GetUpAt(t int64) int64 {
	return s.cumulativeAt(t, func(sm sample) int64 { return sm.up }) + s.wipedUp
}

func (s *Session) GetDownAt(t int64) int64 {
	return s.cumulativeAt(t, func(sm sample) int64 { return sm.down }) + s.wipedDown
}

func (s *Session) cumulativeAt(t int64, pick func(sample) int64) int64 {
	var total int64
	for _, l := range s.oldConns {
		if sm, ok := l.at(t); ok {
			total += pick(sm)
		}
	}
	for _, l := range s.curConns {
		if sm, ok := l.at(t); ok {
			total += pick(sm)
		}
	}
	return total
}

// GetBpsUp / GetBpsDown return a short-window (5s) throughput estimate as
// of timestamp t (§4.6, original getBpsUp/getBpsDown).
func (s *Session) GetBpsUp(t int64) int64   { return s.bpsAt(t, s.GetUpAt) }
func (s *Session) GetBpsDown(t int64) int64 { return s.bpsAt(t, s.GetDownAt) }

func (s *Session) bpsAt(t int64, get func(int64) int64) int64 {
	aTime := t - 5
	if aTime < s.firstSec {
		aTime = s.firstSec
	}
	if t <= aTime {
		return 0
	}
	return (get(t) - get(aTime)) / (t - aTime)
}

// HasDataFor reports whether any log has a sample covering timestamp t.
func (s *Session) HasDataFor(t int64) bool {
	if s.lastSec < t || s.firstSec > t {
		return false
	}
	for _, l := range s.oldConns {
		if l.hasDataFor(t) {
			return true
		}
	}
	for _, l := range s.curConns {
		if l.hasDataFor(t) {
			return true
		}
	}
	return false
}

// IsViewerOn reports whether this session should count as an active viewer
// at timestamp t (§8 "Session transitions to viewer classification...").
func (s *Session) IsViewerOn(t int64) bool {
	return s.GetUpAt(t)+s.GetDownAt(t) > CountableBytes
}
