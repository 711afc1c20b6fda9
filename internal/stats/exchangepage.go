package stats

import (
	"github.com/mistcore/mist-core/internal/shm"
)

// ExchangePage wraps the MstStatistics page as an append-only table of
// ExchangeRecord rows (§4.6): every input, output, and viewer-tracking
// process claims one row at startup and republishes into it periodically
// thereafter (mistout once a second, mistin every 5 seconds), while
// the controller is the sole reader, draining the full table into its
// Aggregator on every Tick.
type ExchangePage struct {
	rel *shm.RelAcc
}

// OpenExchangePage creates (or reopens) the MstStatistics page sized for
// capacity rows and wraps it as an ExchangePage.
func OpenExchangePage(store *shm.Store, capacity int) (*ExchangePage, error) {
	size := 8 + capacity*ExchangeRowSize
	p, err := store.Create(shm.StatisticsPageName(), size)
	if err != nil {
		return nil, err
	}
	rel, err := shm.NewRelAcc(p, ExchangeRowSize)
	if err != nil {
		return nil, err
	}
	return &ExchangePage{rel: rel}, nil
}

// Claim appends a fresh row for a new session and returns its row index,
// which the caller must reuse for every subsequent Publish of the same
// session for the lifetime of the process.
func (e *ExchangePage) Claim(r ExchangeRecord) (int, error) {
	row := e.rel.Count()
	if err := e.rel.Append(EncodeExchangeRecord(r)); err != nil {
		return -1, err
	}
	return row, nil
}

// Publish republishes r into an already-claimed row (§4.6 "published at
// 1Hz").
func (e *ExchangePage) Publish(row int, r ExchangeRecord) error {
	return e.rel.WriteRow(row, EncodeExchangeRecord(r))
}

// ReadAll decodes every published row, skipping any row that fails to
// decode (a torn read against a row mid-write loses at most one second's
// sample, never crashes the controller).
func (e *ExchangePage) ReadAll() []ExchangeRecord {
	n := e.rel.Count()
	out := make([]ExchangeRecord, 0, n)
	for i := 0; i < n; i++ {
		row, err := e.rel.Row(i)
		if err != nil {
			continue
		}
		r, err := DecodeExchangeRecord(row)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}
