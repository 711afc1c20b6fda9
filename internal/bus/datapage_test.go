package bus

import (
	"testing"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
)

func newTestDataPage(t *testing.T, size int) (*shm.Store, *DataPage) {
	t.Helper()
	s, err := shm.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s.Create(shm.TrackDataPageName("live", 1, 0), size)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s, NewDataPage(p, 1, 0)
}

func TestDataPageAppendAndReadAt(t *testing.T) {
	t.Parallel()
	_, d := newTestDataPage(t, 4096)

	pkt := Packet{TrackID: 1, TimeMS: 1000, Flags: FlagKeyframe, Payload: []byte("hello")}
	next, err := d.Append(0, pkt)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, after, ok, err := d.ReadAt(0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Payload) != "hello" || got.TimeMS != 1000 || !got.IsKeyframe() {
		t.Fatalf("unexpected decoded packet: %+v", got)
	}
	if after != next {
		t.Fatalf("ReadAt next offset %d != Append next offset %d", after, next)
	}

	_, _, ok, err = d.ReadAt(next)
	if err != nil {
		t.Fatalf("ReadAt sentinel: %v", err)
	}
	if ok {
		t.Fatalf("expected sentinel read to report ok=false")
	}
}

func TestDataPageAppendSequence(t *testing.T) {
	t.Parallel()
	_, d := newTestDataPage(t, 4096)

	offset := 0
	var err error
	for i := 0; i < 3; i++ {
		offset, err = d.Append(offset, Packet{TrackID: 1, TimeMS: int64(i), Payload: []byte{byte(i)}})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	offset = 0
	for i := 0; i < 3; i++ {
		pkt, next, ok, err := d.ReadAt(offset)
		if err != nil || !ok {
			t.Fatalf("ReadAt %d: ok=%v err=%v", i, ok, err)
		}
		if len(pkt.Payload) != 1 || pkt.Payload[0] != byte(i) {
			t.Fatalf("packet %d payload mismatch: %v", i, pkt.Payload)
		}
		offset = next
	}
}

func TestDataPageAppendFullReturnsNotReady(t *testing.T) {
	t.Parallel()
	_, d := newTestDataPage(t, 32)

	_, err := d.Append(0, Packet{TrackID: 1, Payload: make([]byte, 64)})
	if !coreerrors.IsNotReady(err) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
}

func TestPageFlipPolicy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		bytes int
		durMS int64
		want  bool
	}{
		{"small and short", 1024, 500, false},
		{"over size under min duration", PageFlipTargetBytes + 1, 500, false},
		{"over size and over min duration", PageFlipTargetBytes + 1, PageFlipMinDurationMS + 1, true},
		{"long duration alone", 1024, PageFlipTargetDurationMS + 1, true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := PageFlipPolicy(c.bytes, c.durMS); got != c.want {
				t.Fatalf("PageFlipPolicy(%d, %d) = %v, want %v", c.bytes, c.durMS, got, c.want)
			}
		})
	}
}
