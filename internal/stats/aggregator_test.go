package stats

import "testing"

func TestAggregatorParseRecordCreatesSession(t *testing.T) {
	t.Parallel()
	a := NewAggregator(nil)
	a.ParseRecord(rec(1, 100, CountableBytes+1, 0))

	tot := a.StreamTotals("live1")
	if tot.CurrOuts != 1 {
		t.Fatalf("CurrOuts = %d, want 1", tot.CurrOuts)
	}
}

func TestAggregatorReconnectSameTupleMergesSession(t *testing.T) {
	t.Parallel()
	a := NewAggregator(nil)

	// An output reconnects under the same (host, stream, connector, crc);
	// its new connection id's samples attach to the existing session
	// instead of starting a second one (§8 scenario 5).
	a.ParseRecord(rec(1, 100, CountableBytes+1, 0))
	a.ParseRecord(rec(2, 101, CountableBytes+2000, 0))

	if n := len(a.snapshot()); n != 1 {
		t.Fatalf("expected exactly 1 session for the shared tuple, got %d", n)
	}
	tot := a.StreamTotals("live1")
	if tot.CurrOuts != 1 {
		t.Fatalf("CurrOuts = %d, want 1 (no double count across reconnect)", tot.CurrOuts)
	}
}

func TestAggregatorConnIDReindexedOnTupleChange(t *testing.T) {
	t.Parallel()
	a := NewAggregator(nil)

	// Connection id 1 first reports under crc=0, then the same connection
	// id's later record carries a different crc (e.g. a new push session
	// reusing the id) — the aggregator must reindex it into a fresh
	// session rather than keep folding samples into the old one.
	a.ParseRecord(rec(1, 100, CountableBytes+1, 0))
	r2 := rec(1, 101, CountableBytes+2000, 0)
	r2.CRC = 99
	a.ParseRecord(r2)

	if n := len(a.snapshot()); n != 1 {
		t.Fatalf("expected exactly 1 live session (old one had no data left), got %d", n)
	}
	tot := a.StreamTotals("live1")
	if tot.CurrOuts != 2 {
		t.Fatalf("CurrOuts = %d, want 2 (two distinct sessIndex tuples each classified once)", tot.CurrOuts)
	}
}

func TestAggregatorTickRetiresInactiveSession(t *testing.T) {
	t.Parallel()
	var loggedUp int64 = -1
	a := NewAggregator(func(idx SessIndex, dur, up, down int64, _ ConnID) {
		loggedUp = up
	})
	a.ParseRecord(rec(1, 100, CountableBytes+1, 0))

	a.Tick(100 + StatsDelay + 1)

	if loggedUp != CountableBytes+1 {
		t.Fatalf("expected access log to fire with up=%d, got %d", CountableBytes+1, loggedUp)
	}
	tot := a.StreamTotals("live1")
	if tot.CurrOuts != 0 {
		t.Fatalf("CurrOuts after retirement = %d, want 0", tot.CurrOuts)
	}
}

func TestAggregatorTickWipesOldSessions(t *testing.T) {
	t.Parallel()
	a := NewAggregator(nil)
	a.ParseRecord(rec(1, 100, 10, 10)) // never crosses CountableBytes

	a.Tick(100 + StatCutoff + 1)
	if len(a.snapshot()) != 0 {
		t.Fatalf("expected session with no countable data to be wiped entirely")
	}
}
