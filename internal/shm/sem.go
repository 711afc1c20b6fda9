package shm

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"golang.org/x/sys/unix"
)

// Semaphore is a named, cross-process exclusive lock used for the stream
// exclusivity lock (MstInLock@), the pull-input singularity lock
// (MstPull_), and the metadata writer/reader handshake (MstLive@). It is
// realized as an flock(2) advisory lock on a dedicated file under the
// store's base directory rather than a System-V semaphore set: flock locks
// are released automatically by the kernel if the holding process dies
// without calling Post, which is exactly the "abandon on crash" behavior
// the core needs from a crashed input or output process, without requiring
// an explicit angel-side cleanup pass over semaphore ids.
type Semaphore struct {
	Name string
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenSemaphore opens (creating if necessary) the named semaphore's backing
// lock file under s's base directory. The returned Semaphore starts
// unlocked; call Wait/TryWait to acquire and Post to release.
func (s *Store) OpenSemaphore(name string) (*Semaphore, error) {
	path := filepath.Join(s.dir, "sem_"+sanitizePageName(name))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, coreerrors.NewFatal("shm.OpenSemaphore "+name, err)
	}
	return &Semaphore{Name: name, path: path, f: f}, nil
}

// Wait blocks until the lock is acquired.
func (s *Semaphore) Wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Flock(int(s.f.Fd()), unix.LOCK_EX); err != nil {
		return coreerrors.NewFatal("shm.Semaphore.Wait "+s.Name, err)
	}
	return nil
}

// TryWait attempts a non-blocking acquire, returning false without error if
// another process currently holds the lock.
func (s *Semaphore) TryWait() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := unix.Flock(int(s.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, coreerrors.NewFatal("shm.Semaphore.TryWait "+s.Name, err)
}

// WaitTimeout polls for the lock to become available for up to d, every
// 10ms. A poll loop rather than a blocking primitive avoids requiring a
// second helper goroutine per wait.
func (s *Semaphore) WaitTimeout(d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	const pollInterval = 10 * time.Millisecond
	for {
		ok, err := s.TryWait()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}

// Post releases the lock.
func (s *Semaphore) Post() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Flock(int(s.f.Fd()), unix.LOCK_UN); err != nil {
		return coreerrors.NewFatal("shm.Semaphore.Post "+s.Name, err)
	}
	return nil
}

// Abandon closes the semaphore's file descriptor, which releases any lock
// the current process holds even if it never called Post. A forked worker
// calls this right before exec so the child does not inherit a duplicate
// reference to the parent's lock.
func (s *Semaphore) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return coreerrors.NewFatal("shm.Semaphore.Abandon "+s.Name, err)
	}
	return nil
}
