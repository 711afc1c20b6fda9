package reader

import (
	"testing"

	"github.com/mistcore/mist-core/internal/bus"
	"github.com/mistcore/mist-core/internal/shm"
)

// fakePageSource maps (trackID) to a single in-memory DataPage for tests;
// key is ignored since these tests only exercise single-page sequences.
type fakePageSource struct {
	pages map[uint32]*bus.DataPage
}

func (f *fakePageSource) PageForKey(trackID, key uint32) (*bus.DataPage, error) {
	p, ok := f.pages[trackID]
	if !ok {
		return nil, shmNotFound()
	}
	return p, nil
}

func shmNotFound() error {
	s, _ := shm.NewStore("")
	_, err := s.Open("definitely-missing-page", 1)
	return err
}

func newFakeDataPage(t *testing.T, trackID uint32, pkts []bus.Packet) *bus.DataPage {
	t.Helper()
	s, err := shm.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s.Create(shm.TrackDataPageName("live", trackID, 0), 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dp := bus.NewDataPage(p, trackID, 0)
	offset := 0
	for _, pkt := range pkts {
		offset, err = dp.Append(offset, pkt)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return dp
}

func TestCursorsPrepareNextOrdersByTimeThenTrack(t *testing.T) {
	t.Parallel()
	track1 := newFakeDataPage(t, 1, []bus.Packet{
		{TrackID: 1, TimeMS: 0, Flags: bus.FlagKeyframe, Payload: []byte("v0")},
		{TrackID: 1, TimeMS: 40, Payload: []byte("v1")},
	})
	track2 := newFakeDataPage(t, 2, []bus.Packet{
		{TrackID: 2, TimeMS: 0, Flags: bus.FlagKeyframe, Payload: []byte("a0")},
		{TrackID: 2, TimeMS: 20, Payload: []byte("a1")},
	})

	src := &fakePageSource{pages: map[uint32]*bus.DataPage{1: track1, 2: track2}}
	cursors := NewCursors(src, []TrackCursor{{TrackID: 1}, {TrackID: 2}})

	var order []uint32
	for i := 0; i < 4; i++ {
		pkt, ok, err := cursors.PrepareNext()
		if err != nil {
			t.Fatalf("PrepareNext %d: %v", i, err)
		}
		if !ok {
			break
		}
		order = append(order, pkt.TrackID)
	}

	// time 0 ties between track 1 and 2: track 1 wins. Then time 20 (track2),
	// then time 40 (track1).
	want := []uint32{1, 2, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestCursorsDropTrackRemovesFromSelection(t *testing.T) {
	t.Parallel()
	track1 := newFakeDataPage(t, 1, []bus.Packet{{TrackID: 1, TimeMS: 0, Flags: bus.FlagKeyframe, Payload: []byte("a")}})
	src := &fakePageSource{pages: map[uint32]*bus.DataPage{1: track1}}
	cursors := NewCursors(src, []TrackCursor{{TrackID: 1}, {TrackID: 99}})

	cursors.DropTrack(99)
	sel := cursors.Selected()
	if len(sel) != 1 || sel[0] != 1 {
		t.Fatalf("expected only track 1 selected, got %v", sel)
	}
}
