package bus

import (
	"testing"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/shm"
)

func newTestMetadataPage(t *testing.T) *MetadataPage {
	t.Helper()
	s, err := shm.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s.Create(shm.StreamMetaPageName("live"), shm.DefaultStreamPageSize)
	if err != nil {
		t.Fatalf("Create page: %v", err)
	}
	sem, err := s.OpenSemaphore(shm.SemLiveName("live"))
	if err != nil {
		t.Fatalf("OpenSemaphore: %v", err)
	}
	return NewMetadataPage(p, sem)
}

func TestMetadataPagePublishAndRead(t *testing.T) {
	t.Parallel()
	m := newTestMetadataPage(t)

	meta := StreamMeta{
		Tracks: []Track{{ID: 1, Kind: KindVideo, Codec: "h264", FPS: 30}},
	}
	if err := m.Publish(meta); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := m.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Tracks) != 1 || got.Tracks[0].Codec != "h264" {
		t.Fatalf("unexpected round-tripped metadata: %+v", got)
	}
}

func TestMetadataPageReadEmptyIsNotFound(t *testing.T) {
	t.Parallel()
	m := newTestMetadataPage(t)
	_, err := m.Read()
	if !coreerrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError on empty page, got %v", err)
	}
}

func TestMetadataPagePublishTooLarge(t *testing.T) {
	t.Parallel()
	s, err := shm.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s.Create(shm.StreamMetaPageName("live"), 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sem, err := s.OpenSemaphore(shm.SemLiveName("live"))
	if err != nil {
		t.Fatalf("OpenSemaphore: %v", err)
	}
	m := NewMetadataPage(p, sem)

	meta := StreamMeta{Tracks: []Track{{ID: 1, Init: make([]byte, 256)}}}
	err = m.Publish(meta)
	if !coreerrors.IsNotReady(err) {
		t.Fatalf("expected NotReadyError for oversized payload, got %v", err)
	}
}
