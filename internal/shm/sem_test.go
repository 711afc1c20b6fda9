package shm

import (
	"testing"
	"time"
)

func TestSemaphoreWaitPostRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sem, err := s.OpenSemaphore(SemInputLockName("live+demo"))
	if err != nil {
		t.Fatalf("OpenSemaphore: %v", err)
	}
	defer sem.Abandon()

	if err := sem.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := sem.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestSemaphoreTryWaitReflectsHolder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	name := SemPullName("live+demo")
	holder, err := s.OpenSemaphore(name)
	if err != nil {
		t.Fatalf("OpenSemaphore holder: %v", err)
	}
	defer holder.Abandon()
	if err := holder.Wait(); err != nil {
		t.Fatalf("holder Wait: %v", err)
	}

	contender, err := s.OpenSemaphore(name)
	if err != nil {
		t.Fatalf("OpenSemaphore contender: %v", err)
	}
	defer contender.Abandon()

	ok, err := contender.TryWait()
	if err != nil {
		t.Fatalf("TryWait: %v", err)
	}
	if ok {
		t.Fatalf("expected TryWait to fail while holder still has the lock")
	}

	if err := holder.Post(); err != nil {
		t.Fatalf("holder Post: %v", err)
	}

	ok, err = contender.WaitTimeout(500 * time.Millisecond)
	if err != nil {
		t.Fatalf("WaitTimeout: %v", err)
	}
	if !ok {
		t.Fatalf("expected contender to acquire lock after holder released it")
	}
}

func TestSemaphoreAbandonReleasesLock(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	name := SemLiveName("live+demo")
	crashed, err := s.OpenSemaphore(name)
	if err != nil {
		t.Fatalf("OpenSemaphore crashed: %v", err)
	}
	if err := crashed.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := crashed.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	successor, err := s.OpenSemaphore(name)
	if err != nil {
		t.Fatalf("OpenSemaphore successor: %v", err)
	}
	defer successor.Abandon()
	ok, err := successor.TryWait()
	if err != nil {
		t.Fatalf("TryWait: %v", err)
	}
	if !ok {
		t.Fatalf("expected lock to be available after crashed holder abandoned it")
	}
}
