package bus

import (
	"bytes"
	"encoding/gob"
	"os"
	"time"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// headerStaleWindow is how much newer than its source a cached header file
// must be before it is trusted: same-second mtimes are not enough,
// since a source and a freshly regenerated header can land in the same
// wall-clock second on a fast filesystem.
const headerStaleWindow = 15 * time.Second

// headerSuffix matches the on-disk header cache file extension.
const headerSuffix = ".dtsh"

// HeaderCache persists a decoded StreamMeta next to its source file so a
// restarted input does not have to re-scan the whole source to rebuild the
// track/key table on every boot.
type HeaderCache struct{}

// Load reads the cached header for sourcePath if present and not stale
// relative to sourcePath's modification time. A cache is stale (and
// discarded) unless its mtime is at least headerStaleWindow later than the
// source's.
func (HeaderCache) Load(sourcePath string) (StreamMeta, bool, error) {
	headerPath := sourcePath + headerSuffix

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return StreamMeta{}, false, nil
		}
		return StreamMeta{}, false, coreerrors.NewFatal("bus.HeaderCache.Load stat source", err)
	}

	hdrInfo, err := os.Stat(headerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return StreamMeta{}, false, nil
		}
		return StreamMeta{}, false, coreerrors.NewFatal("bus.HeaderCache.Load stat header", err)
	}

	if hdrInfo.ModTime().Before(srcInfo.ModTime().Add(headerStaleWindow)) {
		_ = os.Remove(headerPath)
		return StreamMeta{}, false, nil
	}

	raw, err := os.ReadFile(headerPath)
	if err != nil {
		return StreamMeta{}, false, coreerrors.NewFatal("bus.HeaderCache.Load read", err)
	}
	var meta StreamMeta
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&meta); err != nil {
		_ = os.Remove(headerPath)
		return StreamMeta{}, false, nil
	}
	return meta, true, nil
}

// Store writes meta to sourcePath's header cache file, replacing any
// existing one.
func (HeaderCache) Store(sourcePath string, meta StreamMeta) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return coreerrors.NewFatal("bus.HeaderCache.Store encode", err)
	}
	if err := os.WriteFile(sourcePath+headerSuffix, buf.Bytes(), 0o644); err != nil {
		return coreerrors.NewFatal("bus.HeaderCache.Store write", err)
	}
	return nil
}
