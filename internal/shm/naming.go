// Package shm implements the core's Shared Memory Substrate (§4.1): fixed
// name pages and named semaphores that every input, output, and controller
// process shares to exchange packet data, indices, metadata, and liveness
// without a central broker. Pages are realized as MAP_SHARED mmap'd regular
// files under a runtime base directory (rather than anonymous POSIX shm
// segments, so a single-host deployment needs nothing beyond a writable
// directory); semaphores are realized as flock(2) advisory locks on
// dedicated files in the same directory, so a crashed holder's lock is
// released by the kernel without angel-side cleanup. The naming and payload
// contracts below are
// bit-exact with the templates in §4.1 so operators can reason about running
// processes from the page names alone.
package shm

import "fmt"

// Name templates, matching §4.1 exactly (the '@' separators and prefixes are
// part of the interop contract, not stylistic choices).
const (
	tmplCapabilities = "MstCapa"
	tmplStreamConfig = "MstCnf@%s"
	tmplStreamState  = "MstSTATE@%s"
	tmplStreamMeta   = "MstMeta@%s"
	tmplTrackIndex   = "MstTrkIdx@%s@%d"
	tmplTrackData    = "MstData@%s@%d@%d"
	tmplUserSlots    = "MstUsers@%s"
	tmplStatistics   = "MstStatistics"

	tmplSemInputLock = "MstInLock@%s"
	tmplSemPull      = "MstPull_%s"
	tmplSemLive      = "MstLive@%s"
)

// Default page sizes (§3, §4.1).
const (
	DefaultConfigPageSize = 64 * 1024       // "≤default config"
	DefaultStreamPageSize = 4 * 1024 * 1024 // metadata page
	DefaultDataPageSize   = 8 * 1024 * 1024 // ≈8MB target per §3 Data Page
	TrackIndexEntrySize   = 8               // (firstKey uint32, keyCount uint32)
)

// CapabilitiesPageName returns the name of the capabilities snapshot page.
func CapabilitiesPageName() string { return tmplCapabilities }

// StreamConfigPageName returns the per-basename stream configuration page name.
func StreamConfigPageName(baseName string) string {
	return fmt.Sprintf(tmplStreamConfig, baseName)
}

// StreamStatePageName returns the 1-byte stream-state page name for the full
// (possibly wildcarded) stream name.
func StreamStatePageName(name string) string {
	return fmt.Sprintf(tmplStreamState, name)
}

// StreamMetaPageName returns the metadata page name for the full stream name.
func StreamMetaPageName(name string) string {
	return fmt.Sprintf(tmplStreamMeta, name)
}

// TrackIndexPageName returns the track index page name.
func TrackIndexPageName(name string, trackID uint32) string {
	return fmt.Sprintf(tmplTrackIndex, name, trackID)
}

// TrackDataPageName returns a data page name for the given track and
// starting key number.
func TrackDataPageName(name string, trackID uint32, firstKey uint32) string {
	return fmt.Sprintf(tmplTrackData, name, trackID, firstKey)
}

// UserSlotsPageName returns the user/slot page name.
func UserSlotsPageName(name string) string {
	return fmt.Sprintf(tmplUserSlots, name)
}

// StatisticsPageName returns the statistics exchange page name.
func StatisticsPageName() string { return tmplStatistics }

// SemInputLockName returns the stream exclusivity semaphore name.
func SemInputLockName(name string) string { return fmt.Sprintf(tmplSemInputLock, name) }

// SemPullName returns the pull-input singularity semaphore name.
func SemPullName(name string) string { return fmt.Sprintf(tmplSemPull, name) }

// SemLiveName returns the metadata writer/reader semaphore name.
func SemLiveName(name string) string { return fmt.Sprintf(tmplSemLive, name) }
