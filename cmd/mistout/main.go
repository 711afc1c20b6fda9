// Command mistout is the generic output process entrypoint: it claims a
// viewer slot, drives the Output Reader state machine (§4.5) — track
// selection, initial seek, prepareNext, real-time pacing, and lookahead
// gating — and writes the selected packets out in the core's own flat wire
// framing. Encoding into an actual container or wire protocol is out of
// scope for the core (§1); a real protocol-facing output embeds this
// binary's reader logic behind its own framing instead of mistout's.
package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mistcore/mist-core/internal/bus"
	"github.com/mistcore/mist-core/internal/cli"
	"github.com/mistcore/mist-core/internal/config"
	"github.com/mistcore/mist-core/internal/logger"
	"github.com/mistcore/mist-core/internal/reader"
	"github.com/mistcore/mist-core/internal/registry"
	"github.com/mistcore/mist-core/internal/shm"
	"github.com/mistcore/mist-core/internal/stats"
)

// slotHeartbeatInterval is how often the reader loop refreshes its slot's
// liveness timestamp and per-track hints (§4.6 "live-point prefetch").
const slotHeartbeatInterval = time.Second

func main() {
	os.Exit(run())
}

func run() int {
	logger.Init()

	cfg, err := cli.Parse("mistout", os.Args[1:], []string{"--realtime", "--tracks", "--useragent", "--capabilities", "--outputname"})
	if err != nil {
		logger.Error("parsing arguments", "error", err)
		return cli.ExitPrecondition
	}
	if cfg.Stream == "" {
		logger.Error("missing required -s argument")
		return cli.ExitPrecondition
	}

	name, err := registry.SanitizeName(cfg.Stream)
	if err != nil {
		logger.Error("sanitizing stream name", "error", err)
		return cli.ExitPrecondition
	}
	log := logger.WithStream(logger.Logger(), name)

	store, err := shm.NewStore(shm.TmpFolder())
	if err != nil {
		log.Error("opening shared memory store", "error", err)
		return cli.ExitForkExec
	}

	var sink *os.File
	if cfg.Input == "" || cli.IsStdio(cfg.Input) {
		sink = os.Stdout
	} else {
		f, err := os.Create(cfg.Input)
		if err != nil {
			log.Error("opening output sink", "error", err)
			return cli.ExitPrecondition
		}
		defer f.Close()
		sink = f
	}
	w := bufio.NewWriterSize(sink, 64*1024)
	defer w.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	metaPage, err := store.Open(shm.StreamMetaPageName(name), 1)
	if err != nil {
		log.Error("opening metadata page", "error", err)
		return cli.ExitPrecondition
	}
	defer metaPage.Close()
	liveSem, err := store.OpenSemaphore(shm.SemLiveName(name))
	if err != nil {
		log.Error("opening metadata semaphore", "error", err)
		return cli.ExitForkExec
	}
	metaAccessor := bus.NewMetadataPage(metaPage, liveSem)
	meta, err := metaAccessor.Read()
	if err != nil {
		log.Error("reading stream metadata", "error", err)
		return cli.ExitPrecondition
	}

	userAgent := firstOr(cfg.Extra["useragent"], "")
	templates := loadOutputTemplates(cfg.Extra["capabilities"], cfg.Extra["outputname"], log)
	selected := selectTracks(meta, cfg.Extra["tracks"], userAgent, templates)
	if len(selected) == 0 {
		log.Error("no tracks selected")
		return cli.ExitPrecondition
	}
	mainTrackID := pickMainTrack(meta, selected)

	needsLookAheadMS := int64(0)
	if len(meta.Tracks) > 0 {
		needsLookAheadMS = 2000
	}
	seekPos, err := reader.InitialSeek(meta, mainTrackID, selected, needsLookAheadMS)
	if err != nil {
		log.Error("computing initial seek", "error", err)
		return cli.ExitPrecondition
	}

	var cursors []reader.TrackCursor
	for _, id := range selected {
		cursors = append(cursors, reader.TrackCursor{TrackID: id})
	}
	ok, dropped := reader.Seek(meta, cursors, seekPos)
	for _, id := range dropped {
		log.Warn("track dropped at initial seek", "track_id", id)
	}

	pages := newTrackIndexSource(store, name)
	cur := reader.NewCursors(pages, ok)

	slotPage, err := store.Open(shm.UserSlotsPageName(name), 1)
	if err != nil {
		log.Error("opening slot page", "error", err)
		return cli.ExitPrecondition
	}
	defer slotPage.Close()
	slots := bus.NewSlotPage(slotPage)
	slotIdx, _, err := slots.Claim(time.Now(), 0, bus.SessionViewer)
	if err != nil {
		log.Error("claiming viewer slot", "error", err)
		return cli.ExitPrecondition
	}
	defer slots.Release(slotIdx)

	realTime := 1000
	if v := firstOr(cfg.Extra["realtime"], ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			realTime = n
		}
	}
	pacer := reader.NewPacer(realTime)

	exchange, err := stats.OpenExchangePage(store, 1)
	if err != nil {
		log.Warn("opening statistics exchange page", "error", err)
	}
	statRow := -1
	if exchange != nil {
		statRow, _ = exchange.Claim(stats.ExchangeRecord{Host: "local", Stream: name, Connector: "OUTPUT", Now: time.Now().Unix()})
	}

	log.Info("output ready", "tracks", selected, "seek_ms", seekPos)

	var (
		prevTimeMS  int64 = seekPos
		bytesOut    int64
		lastHeartbt time.Time
	)

	for ctx.Err() == nil {
		pkt, ok, err := cur.PrepareNext()
		if err != nil {
			log.Error("prepareNext failed", "error", err)
			return cli.ExitForkExec
		}
		if !ok {
			needsLookAheadMS = reader.LookAhead(ctx, needsLookAheadMS, func() bool { return false }, nil)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		delta := pkt.TimeMS - prevTimeMS
		if err := pacer.WaitForTime(ctx, delta, nil); err != nil {
			break
		}
		prevTimeMS = pkt.TimeMS

		raw := bus.EncodePacketRecord(nil, pkt)
		if _, err := w.Write(raw); err != nil {
			log.Error("writing to sink", "error", err)
			return cli.ExitForkExec
		}
		bytesOut += int64(len(raw))

		if time.Since(lastHeartbt) >= slotHeartbeatInterval {
			hints := make([]bus.SlotHint, 0, len(cur.Selected()))
			for _, id := range cur.Selected() {
				hints = append(hints, bus.SlotHint{TrackID: id})
			}
			_ = slots.Heartbeat(slotIdx, time.Now(), hints)
			if exchange != nil && statRow >= 0 {
				_ = exchange.Publish(statRow, stats.ExchangeRecord{
					Host: "local", Stream: name, Connector: "OUTPUT",
					Now: time.Now().Unix(), Down: bytesOut,
				})
			}
			lastHeartbt = time.Now()
		}
	}

	w.Flush()
	log.Info("output closing", "bytes_out", bytesOut)
	return cli.ExitClean
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

func selectTracks(meta bus.StreamMeta, trackVal []string, userAgent string, templates [][]config.TemplateSlot) []uint32 {
	if len(trackVal) > 0 && trackVal[0] != "" {
		var out []uint32
		for _, kind := range []bus.TrackKind{bus.KindVideo, bus.KindAudio, bus.KindSubtitle} {
			out = append(out, reader.SelectTrack(meta.Tracks, kind, trackVal[0])...)
		}
		if len(out) > 0 {
			return out
		}
	}
	return reader.SelectDefault(meta.Tracks, userAgent, nil, templates)
}

// loadOutputTemplates reads the codec-combination templates (§4.5 "Select
// tracks" default rule) for this output binary from an optionally-supplied
// capabilities descriptor, so the default-selection algorithm can maximize
// over real combinations instead of always falling back to one track per
// kind. outputNameVal overrides the descriptor name derived from argv[0]
// (mistout's own binary, e.g. "mistout_hls" supplying "hls"), following
// boot.go's binaryPath naming convention for input binaries. Returns nil —
// triggering SelectDefault's no-templates fallback — when no capabilities
// path was given or no matching descriptor exists.
func loadOutputTemplates(capaPathVal, outputNameVal []string, log *slog.Logger) [][]config.TemplateSlot {
	capaPath := firstOr(capaPathVal, "")
	if capaPath == "" {
		return nil
	}
	loader, err := config.NewLoader(capaPath)
	if err != nil {
		log.Warn("loading capabilities descriptor for default track selection", "path", capaPath, "error", err)
		return nil
	}
	caps, err := loader.Current()
	if err != nil {
		log.Warn("decoding capabilities descriptor for default track selection", "path", capaPath, "error", err)
		return nil
	}

	name := firstOr(outputNameVal, strings.TrimPrefix(filepath.Base(os.Args[0]), "mistout"))
	name = strings.TrimPrefix(name, "_")
	for _, desc := range caps.Outputs {
		if desc.Name == name {
			return desc.Templates
		}
	}
	return nil
}

func pickMainTrack(meta bus.StreamMeta, selected []uint32) uint32 {
	for _, id := range selected {
		for _, t := range meta.Tracks {
			if t.ID == id && t.Kind == bus.KindVideo {
				return id
			}
		}
	}
	if len(selected) > 0 {
		return selected[0]
	}
	return 0
}
