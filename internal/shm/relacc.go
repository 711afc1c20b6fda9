package shm

import (
	"encoding/binary"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// RelAcc is an append-only relational accessor: a fixed-width row of
// fixed-width fields, written sequentially into a page and read back by
// row index. It backs the statistics exchange page (one row per active
// session) and the access log page (one row per connection event); both
// need many independent processes appending rows concurrently under a
// single writer-at-a-time contract without a database.
//
// Layout: an 8-byte header (uint32 rowSize, uint32 rowCount) followed by
// rowCount*rowSize bytes. rowCount is written last on every append so a
// concurrent reader never observes a partially written row as counted.
type RelAcc struct {
	page     *Page
	rowSize  int
	capacity int
}

const relAccHeaderSize = 8

// NewRelAcc wraps an existing page as a relational accessor with the given
// fixed row size. The page must already be sized to hold the header plus at
// least one row.
func NewRelAcc(p *Page, rowSize int) (*RelAcc, error) {
	if rowSize <= 0 {
		return nil, coreerrors.NewFatal("shm.NewRelAcc", nil)
	}
	if len(p.Mapped) < relAccHeaderSize+rowSize {
		return nil, coreerrors.NewFatal("shm.NewRelAcc page too small for "+p.Name, nil)
	}
	capacity := (len(p.Mapped) - relAccHeaderSize) / rowSize
	r := &RelAcc{page: p, rowSize: rowSize, capacity: capacity}
	if binary.LittleEndian.Uint32(p.Mapped[0:4]) == 0 {
		binary.LittleEndian.PutUint32(p.Mapped[0:4], uint32(rowSize))
	}
	return r, nil
}

// RowSize returns the fixed per-row width in bytes.
func (r *RelAcc) RowSize() int { return r.rowSize }

// Count returns the number of rows currently visible to readers.
func (r *RelAcc) Count() int {
	return int(binary.LittleEndian.Uint32(r.page.Mapped[4:8]))
}

// Capacity returns the maximum number of rows the backing page can hold.
func (r *RelAcc) Capacity() int { return r.capacity }

func (r *RelAcc) rowOffset(row int) int {
	return relAccHeaderSize + row*r.rowSize
}

// Row returns a slice view of the given row's bytes. The slice aliases the
// mapped page; callers must not retain it past the next Append that could
// overwrite it via wraparound (RelAcc never wraps on its own, and no
// caller in this module implements wraparound on top of it).
func (r *RelAcc) Row(row int) ([]byte, error) {
	if row < 0 || row >= r.Count() {
		return nil, coreerrors.NewNotFound("shm.RelAcc.Row", nil)
	}
	off := r.rowOffset(row)
	return r.page.Mapped[off : off+r.rowSize], nil
}

// Append writes row at the next free index and publishes the new count.
// Returns NotReadyError if the page is full; the caller (stats totals
// compaction, access log rotation) is responsible for reclaiming space.
func (r *RelAcc) Append(row []byte) error {
	if len(row) != r.rowSize {
		return coreerrors.NewFatal("shm.RelAcc.Append wrong row size", nil)
	}
	count := r.Count()
	if count >= r.capacity {
		return coreerrors.NewNotReady("shm.RelAcc.Append", "FULL", nil)
	}
	off := r.rowOffset(count)
	copy(r.page.Mapped[off:off+r.rowSize], row)
	binary.LittleEndian.PutUint32(r.page.Mapped[4:8], uint32(count+1))
	return nil
}

// WriteRow overwrites an already-published row in place (used to update a
// session's running byte counters without appending a new row per packet).
func (r *RelAcc) WriteRow(row int, data []byte) error {
	if len(data) != r.rowSize {
		return coreerrors.NewFatal("shm.RelAcc.WriteRow wrong row size", nil)
	}
	if row < 0 || row >= r.Count() {
		return coreerrors.NewNotFound("shm.RelAcc.WriteRow", nil)
	}
	off := r.rowOffset(row)
	copy(r.page.Mapped[off:off+r.rowSize], data)
	return nil
}

// Reset truncates the accessor back to zero rows without resizing the page.
func (r *RelAcc) Reset() {
	binary.LittleEndian.PutUint32(r.page.Mapped[4:8], 0)
}
