package shm

import (
	"encoding/binary"
	"testing"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

func newTestRelAcc(t *testing.T, rowSize, rows int) (*Store, *RelAcc) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s.Create(StatisticsPageName(), relAccHeaderSize+rowSize*rows)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r, err := NewRelAcc(p, rowSize)
	if err != nil {
		t.Fatalf("NewRelAcc: %v", err)
	}
	return s, r
}

func TestRelAccAppendAndRead(t *testing.T) {
	t.Parallel()
	_, r := newTestRelAcc(t, 8, 4)

	if r.Count() != 0 {
		t.Fatalf("expected empty accessor, got count=%d", r.Count())
	}

	row := make([]byte, 8)
	binary.LittleEndian.PutUint64(row, 42)
	if err := r.Append(row); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected count=1, got %d", r.Count())
	}

	got, err := r.Row(0)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if binary.LittleEndian.Uint64(got) != 42 {
		t.Fatalf("unexpected row contents: %v", got)
	}
}

func TestRelAccFullReturnsNotReady(t *testing.T) {
	t.Parallel()
	_, r := newTestRelAcc(t, 4, 2)

	row := make([]byte, 4)
	if err := r.Append(row); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if err := r.Append(row); err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	err := r.Append(row)
	if !coreerrors.IsNotReady(err) {
		t.Fatalf("expected NotReadyError once full, got %v", err)
	}
}

func TestRelAccRowOutOfRangeIsNotFound(t *testing.T) {
	t.Parallel()
	_, r := newTestRelAcc(t, 4, 2)
	_, err := r.Row(0)
	if !coreerrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unpublished row, got %v", err)
	}
}

func TestRelAccWriteRowUpdatesInPlace(t *testing.T) {
	t.Parallel()
	_, r := newTestRelAcc(t, 8, 2)

	row := make([]byte, 8)
	binary.LittleEndian.PutUint64(row, 1)
	if err := r.Append(row); err != nil {
		t.Fatalf("Append: %v", err)
	}

	updated := make([]byte, 8)
	binary.LittleEndian.PutUint64(updated, 99)
	if err := r.WriteRow(0, updated); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}

	got, err := r.Row(0)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if binary.LittleEndian.Uint64(got) != 99 {
		t.Fatalf("expected updated value, got %v", got)
	}
	if r.Count() != 1 {
		t.Fatalf("WriteRow should not change count, got %d", r.Count())
	}
}

func TestRelAccReset(t *testing.T) {
	t.Parallel()
	_, r := newTestRelAcc(t, 4, 2)
	if err := r.Append(make([]byte, 4)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	r.Reset()
	if r.Count() != 0 {
		t.Fatalf("expected count=0 after Reset, got %d", r.Count())
	}
}
