package bus

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHeaderCacheStoreAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "stream.ts")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	var hc HeaderCache
	meta := StreamMeta{Tracks: []Track{{ID: 1, Codec: "aac"}}}
	if err := hc.Store(src, meta); err != nil {
		t.Fatalf("Store: %v", err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(src, old, old); err != nil {
		t.Fatalf("Chtimes source: %v", err)
	}
	fresh := old.Add(30 * time.Second)
	if err := os.Chtimes(src+headerSuffix, fresh, fresh); err != nil {
		t.Fatalf("Chtimes header: %v", err)
	}

	got, ok, err := hc.Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if len(got.Tracks) != 1 || got.Tracks[0].Codec != "aac" {
		t.Fatalf("unexpected loaded metadata: %+v", got)
	}
}

func TestHeaderCacheStaleWithinWindowIsDiscarded(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "stream.ts")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	var hc HeaderCache
	if err := hc.Store(src, StreamMeta{}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	base := time.Now()
	if err := os.Chtimes(src, base, base); err != nil {
		t.Fatalf("Chtimes source: %v", err)
	}
	// header only 5s newer than source: inside the 15s stale window
	near := base.Add(5 * time.Second)
	if err := os.Chtimes(src+headerSuffix, near, near); err != nil {
		t.Fatalf("Chtimes header: %v", err)
	}

	_, ok, err := hc.Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatalf("expected stale header to be rejected")
	}
	if _, err := os.Stat(src + headerSuffix); !os.IsNotExist(err) {
		t.Fatalf("expected stale header file to be removed, stat err=%v", err)
	}
}

func TestHeaderCacheMissingIsNotError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "stream.ts")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	var hc HeaderCache
	_, ok, err := hc.Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatalf("expected no cache hit when header file absent")
	}
}
