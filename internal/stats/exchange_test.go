package stats

import "testing"

func TestExchangeRecordRoundTrip(t *testing.T) {
	t.Parallel()
	r := ExchangeRecord{
		ConnID:       42,
		Host:         "10.0.0.1",
		Stream:       "live1",
		Connector:    "OUTPUT",
		CRC:          0xdeadbeef,
		Now:          1700000000,
		LastSecond:   1699999990,
		ConnectedSec: 120,
		Up:           4096,
		Down:         2048,
	}

	row := EncodeExchangeRecord(r)
	if len(row) != ExchangeRowSize {
		t.Fatalf("row size = %d, want %d", len(row), ExchangeRowSize)
	}

	got, err := DecodeExchangeRecord(row)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != r {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestExchangeRecordDisconnectingSentinel(t *testing.T) {
	t.Parallel()
	r := ExchangeRecord{ConnID: 1, Stream: "live1", Disconnecting: true}
	row := EncodeExchangeRecord(r)
	got, err := DecodeExchangeRecord(row)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Disconnecting {
		t.Fatalf("expected Disconnecting to round-trip true")
	}
	if got.Control != ControlDisconnectingA {
		t.Fatalf("Control = %d, want %d", got.Control, ControlDisconnectingA)
	}
}

func TestDecodeExchangeRecordWrongSize(t *testing.T) {
	t.Parallel()
	if _, err := DecodeExchangeRecord(make([]byte, ExchangeRowSize-1)); err == nil {
		t.Fatalf("expected error for short row")
	}
}

func TestExchangeRecordIndex(t *testing.T) {
	t.Parallel()
	r := ExchangeRecord{Host: "h", Stream: "s", Connector: "c", CRC: 7}
	want := SessIndex{Host: "h", Stream: "s", Connector: "c", CRC: 7}
	if got := r.Index(); got != want {
		t.Fatalf("Index() = %+v, want %+v", got, want)
	}
}
