package shm

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"golang.org/x/sys/unix"
)

// Store roots every named page under a single base directory. All processes
// in a deployment must be given the same base directory (conventionally
// Util::getTmpFolder()'s equivalent, §6 TMP/TEMP/TMPDIR resolution) for pages
// to actually be shared.
type Store struct {
	dir string
}

var (
	defaultStore   *Store
	defaultStoreMu sync.Mutex
)

// NewStore creates (if needed) and returns a Store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, coreerrors.NewFatal("shm.NewStore", err)
	}
	return &Store{dir: dir}, nil
}

// SetDefault installs s as the package-level default store used by the
// single-argument Map/Create helpers below.
func SetDefault(s *Store) {
	defaultStoreMu.Lock()
	defer defaultStoreMu.Unlock()
	defaultStore = s
}

// Default returns the package-level default store, creating one rooted at
// TmpFolder() if none has been installed yet.
func Default() *Store {
	defaultStoreMu.Lock()
	defer defaultStoreMu.Unlock()
	if defaultStore != nil {
		return defaultStore
	}
	s, err := NewStore(TmpFolder())
	if err != nil {
		// TmpFolder() creation failures are only possible under a read-only
		// filesystem; fall back to an in-process-only store rooted at "."
		s = &Store{dir: "."}
	}
	defaultStore = s
	return s
}

// TmpFolder resolves the scratch directory per §6: TMP, then TEMP, then
// TMPDIR, falling back to /tmp/mist.
func TmpFolder() string {
	for _, ev := range []string{"TMP", "TEMP", "TMPDIR"} {
		if v := os.Getenv(ev); v != "" {
			return filepath.Join(v, "mist")
		}
	}
	return "/tmp/mist"
}

// sanitizePageName converts a page name (which may contain '@' and other
// shared-memory-friendly characters) into a filesystem-safe file name.
func sanitizePageName(name string) string {
	r := strings.NewReplacer("@", "_", "/", "_", string(os.PathSeparator), "_")
	return r.Replace(name)
}

// Page is a named, size-bounded region of shared memory backed by a
// MAP_SHARED mmap'd regular file. The zero value is not usable; obtain one
// via Store.Create or Store.Open.
type Page struct {
	Name   string
	Mapped []byte
	f      *os.File
	mu     sync.Mutex
	closed bool
}

// Create maps or creates a page of exactly size bytes. If the backing file
// already exists with a different size, it is resized to match.
func (s *Store) Create(name string, size int) (*Page, error) {
	path := filepath.Join(s.dir, sanitizePageName(name))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, coreerrors.NewFatal("shm.Create open "+name, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, coreerrors.NewFatal("shm.Create truncate "+name, err)
	}
	return mapFile(name, f, size)
}

// Open maps an existing page for read (and, if the caller intends to write,
// read-write) access. It returns NotFoundError if the page does not exist or
// is smaller than minSize.
func (s *Store) Open(name string, minSize int) (*Page, error) {
	path := filepath.Join(s.dir, sanitizePageName(name))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.NewNotFound("shm.Open "+name, err)
		}
		return nil, coreerrors.NewFatal("shm.Open "+name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, coreerrors.NewFatal("shm.Open stat "+name, err)
	}
	if int(info.Size()) < minSize {
		f.Close()
		return nil, coreerrors.NewNotFound("shm.Open "+name+" too small", nil)
	}
	return mapFile(name, f, int(info.Size()))
}

func mapFile(name string, f *os.File, size int) (*Page, error) {
	if size == 0 {
		return &Page{Name: name, Mapped: nil, f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, coreerrors.NewFatal("shm.mapFile mmap "+name, err)
	}
	return &Page{Name: name, Mapped: data, f: f}, nil
}

// Sync flushes dirty pages to the backing file (msync). Readers do not need
// to call this for correctness within a single host's page cache, but it
// bounds how stale a crash-killed process's last writes can be.
func (p *Page) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.Mapped == nil {
		return nil
	}
	return unix.Msync(p.Mapped, unix.MS_ASYNC)
}

// Close unmaps the page and closes the backing file descriptor. The
// contents remain on disk (and thus visible to other mapped processes)
// until every mapper has closed it and the file is removed.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.Mapped != nil {
		err = unix.Munmap(p.Mapped)
		p.Mapped = nil
	}
	if p.f != nil {
		if cerr := p.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Remove deletes the backing file after unmapping. Used by the producer
// when a stream's metadata/index/data pages are torn down on SHUTDOWN.
func (s *Store) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, sanitizePageName(name)))
}
