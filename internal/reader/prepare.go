package reader

import (
	"container/heap"

	"github.com/mistcore/mist-core/internal/bus"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// candidate is one track's next-packet candidate in the priority set,
// ordered by (time, trackId) per §4.5 prepareNext.
type candidate struct {
	trackID uint32
	timeMS  int64
	offset  int
}

// priorityQueue orders candidates by (time, trackId), lower trackId
// winning equal timestamps.
type priorityQueue []candidate

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].timeMS != q[j].timeMS {
		return q[i].timeMS < q[j].timeMS
	}
	return q[i].trackID < q[j].trackID
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(candidate)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// PageSource resolves a (trackID, key) to the DataPage holding it, mapping
// a successor page on demand when the current one is exhausted.
type PageSource interface {
	PageForKey(trackID, key uint32) (*bus.DataPage, error)
}

// Cursors tracks, per selected track, the current page/offset/key. It
// drives prepareNext and is mutated in place as packets are emitted.
type Cursors struct {
	pages   PageSource
	cursors map[uint32]*TrackCursor
	queue   priorityQueue
	primed  bool
}

// NewCursors builds a Cursors set from an initial Seek result.
func NewCursors(pages PageSource, initial []TrackCursor) *Cursors {
	c := &Cursors{pages: pages, cursors: map[uint32]*TrackCursor{}}
	for _, tc := range initial {
		tc := tc
		c.cursors[tc.TrackID] = &tc
	}
	return c
}

// DropTrack removes a track from future prepareNext consideration (§4.5
// "Drop-track"): an irrecoverable per-track anomaly never aborts the
// connection, only that track.
func (c *Cursors) DropTrack(trackID uint32) {
	delete(c.cursors, trackID)
}

// Selected reports the still-live track IDs.
func (c *Cursors) Selected() []uint32 {
	out := make([]uint32, 0, len(c.cursors))
	for id := range c.cursors {
		out = append(out, id)
	}
	return out
}

func (c *Cursors) fill() error {
	c.queue = c.queue[:0]
	for id, cur := range c.cursors {
		page, err := c.pages.PageForKey(id, cur.Key)
		if err != nil {
			if coreerrors.IsNotFound(err) {
				c.DropTrack(id)
				continue
			}
			return err
		}
		pkt, _, ok, err := page.ReadAt(cur.Offset)
		if err != nil {
			if coreerrors.IsCorruption(err) {
				c.DropTrack(id)
				continue
			}
			return err
		}
		if !ok {
			// sentinel: this page is exhausted for now, nothing to emit yet
			continue
		}
		c.queue = append(c.queue, candidate{trackID: id, timeMS: pkt.TimeMS, offset: cur.Offset})
	}
	heap.Init(&c.queue)
	c.primed = true
	return nil
}

// PrepareNext returns the next packet to emit across all selected tracks,
// ordered by (time, trackId), advancing that track's cursor past it. ok is
// false when no selected track currently has data ready (live exhaustion,
// not end-of-stream).
func (c *Cursors) PrepareNext() (pkt bus.Packet, ok bool, err error) {
	if !c.primed || len(c.queue) == 0 {
		if err := c.fill(); err != nil {
			return bus.Packet{}, false, err
		}
	}
	if len(c.queue) == 0 {
		return bus.Packet{}, false, nil
	}

	top := heap.Pop(&c.queue).(candidate)
	cur, live := c.cursors[top.trackID]
	if !live {
		return c.PrepareNext()
	}
	page, err := c.pages.PageForKey(top.trackID, cur.Key)
	if err != nil {
		c.DropTrack(top.trackID)
		return c.PrepareNext()
	}
	emitted, next, ok, err := page.ReadAt(cur.Offset)
	if err != nil || !ok {
		c.DropTrack(top.trackID)
		return c.PrepareNext()
	}

	cur.Offset = next
	if emitted.IsKeyframe() {
		cur.Key++
	}

	// refill this track's candidate for the next round
	if np, nerr := c.pages.PageForKey(top.trackID, cur.Key); nerr == nil {
		if npkt, _, nok, _ := np.ReadAt(cur.Offset); nok {
			heap.Push(&c.queue, candidate{trackID: top.trackID, timeMS: npkt.TimeMS, offset: cur.Offset})
		}
	}

	return emitted, true, nil
}
