package stats

import "github.com/mistcore/mist-core/internal/bus"

// Totals is one stream's server-wide counters (§4.6 "Stream totals",
// original's streamTotals struct). Cumulative counters only ever grow;
// "curr*" counters track sessions presently in that class and are
// decremented by Ping on retirement.
type Totals struct {
	UpBytes   int64
	DownBytes int64

	Inputs  int64 // cumulative count of input sessions ever seen
	Outputs int64
	Viewers int64

	CurrIns   int64 // sessions currently classified input
	CurrOuts  int64
	CurrViews int64
}

// countSession increments the cumulative and current counters for class,
// called exactly once per Session on its first classification.
func (t *Totals) countSession(class bus.SessionClass) {
	switch class {
	case bus.SessionInput:
		t.Inputs++
		t.CurrIns++
	case bus.SessionOutput:
		t.Outputs++
		t.CurrOuts++
	case bus.SessionViewer:
		t.Viewers++
		t.CurrViews++
	}
}

// uncountSession decrements the current counter for class on session
// retirement, floored at zero (a session can never have been double
// counted, but the original guards this defensively too).
func (t *Totals) uncountSession(class bus.SessionClass) {
	switch class {
	case bus.SessionInput:
		if t.CurrIns > 0 {
			t.CurrIns--
		}
	case bus.SessionOutput:
		if t.CurrOuts > 0 {
			t.CurrOuts--
		}
	case bus.SessionViewer:
		if t.CurrViews > 0 {
			t.CurrViews--
		}
	}
}

func (t *Totals) addBytes(up, down int64) {
	t.UpBytes += up
	t.DownBytes += down
}
