package stats

import (
	"sort"

	"github.com/mistcore/mist-core/internal/bus"
)

// ClientField is a bitmask selecting which fields a Clients query returns,
// mirroring the original's STAT_CLI_* bitfield (§4.6 "clients: ... a
// bitmask of fields").
type ClientField uint16

const (
	ClientHost ClientField = 1 << iota
	ClientStream
	ClientConnector
	ClientConnTime
	ClientPosition
	ClientDown
	ClientUp
	ClientBpsDown
	ClientBpsUp
	ClientCRC

	ClientAll ClientField = 0xFFFF
)

// ClientRecord is one session row returned by Clients.
type ClientRecord struct {
	Host      string
	Stream    string
	Connector string
	CRC       uint32
	ConnTime  int64
	Position  int64
	Down      int64
	Up        int64
	BpsDown   int64
	BpsUp     int64
}

// Clients lists every session with data at timestamp t, each field zeroed
// unless requested in fields (§4.6 "clients" query).
func (a *Aggregator) Clients(t int64, fields ClientField) []ClientRecord {
	snap := a.snapshot()
	out := make([]ClientRecord, 0, len(snap))
	for idx, sess := range snap {
		if !sess.HasDataFor(t) {
			continue
		}
		var rec ClientRecord
		if fields&ClientHost != 0 {
			rec.Host = idx.Host
		}
		if fields&ClientStream != 0 {
			rec.Stream = idx.Stream
		}
		if fields&ClientConnector != 0 {
			rec.Connector = idx.Connector
		}
		if fields&ClientCRC != 0 {
			rec.CRC = idx.CRC
		}
		if fields&ClientConnTime != 0 {
			rec.ConnTime = t - sess.GetStart()
		}
		if fields&ClientDown != 0 {
			rec.Down = sess.GetDownAt(t)
		}
		if fields&ClientUp != 0 {
			rec.Up = sess.GetUpAt(t)
		}
		if fields&ClientBpsDown != 0 {
			rec.BpsDown = sess.GetBpsDown(t)
		}
		if fields&ClientBpsUp != 0 {
			rec.BpsUp = sess.GetBpsUp(t)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stream != out[j].Stream {
			return out[i].Stream < out[j].Stream
		}
		return out[i].Host < out[j].Host
	})
	return out
}

// TotalsPoint is one second of the aggregate series returned by Totals.
type TotalsPoint struct {
	T       int64
	Clients int64
	Inputs  int64
	Outputs int64
	BpsDown int64
	BpsUp   int64
}

// TotalsRun is a run-length-compressed span of equal TotalsPoint values
// (§4.6 "totals... runs of equal step size are compressed into (count,
// step) pairs").
type TotalsRun struct {
	Point TotalsPoint // the T field holds the run's starting timestamp
	Count int64
	Step  int64
}

// Totals computes the per-second aggregate of clients/inputs/outputs/bps
// over [start, end] (inclusive), then run-length compresses consecutive
// seconds whose non-timestamp fields are identical.
func (a *Aggregator) Totals(start, end int64) []TotalsRun {
	snap := a.snapshot()
	var points []TotalsPoint
	for t := start; t <= end; t++ {
		var p TotalsPoint
		p.T = t
		for _, sess := range snap {
			if !sess.HasDataFor(t) {
				continue
			}
			switch sess.Class() {
			case bus.SessionInput:
				p.Inputs++
			case bus.SessionOutput:
				p.Outputs++
			case bus.SessionViewer:
				p.Clients++
			}
			p.BpsDown += sess.GetBpsDown(t)
			p.BpsUp += sess.GetBpsUp(t)
		}
		points = append(points, p)
	}
	return compressRuns(points)
}

// compressRuns folds consecutive one-second points with identical values
// into (count, step) runs. Since points are always exactly one second
// apart, every run's step is 1; only the count varies.
func compressRuns(points []TotalsPoint) []TotalsRun {
	var runs []TotalsRun
	for _, p := range points {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			sameValues := last.Point.Clients == p.Clients && last.Point.Inputs == p.Inputs &&
				last.Point.Outputs == p.Outputs && last.Point.BpsDown == p.BpsDown &&
				last.Point.BpsUp == p.BpsUp
			if sameValues {
				last.Count++
				continue
			}
		}
		runs = append(runs, TotalsRun{Point: p, Count: 1, Step: 1})
	}
	return runs
}

// ActiveStreams returns the names of streams with at least one session
// classified as a viewer that is currently viewer-on at the given moment
// (§4.6 "active_streams" — distinct from raw byte-threshold crossing,
// which INPUT/OUTPUT sessions also reach without making a stream "active"
// in the viewer-facing sense).
func (a *Aggregator) ActiveStreams(now int64) []string {
	snap := a.snapshot()
	seen := make(map[string]bool)
	for idx, sess := range snap {
		if sess.Class() == bus.SessionViewer && sess.IsViewerOn(now) {
			seen[idx.Stream] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
