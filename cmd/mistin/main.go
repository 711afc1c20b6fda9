// Command mistin is the generic input process entrypoint: it boots through
// the angel/worker loop (§4.3 Supervision) and, as the worker, owns the
// Packet Bus producer side for one stream. Demuxing an actual container or
// wire protocol is out of scope for the core (§1 "container/codec
// encoders... wire protocol framings" are external collaborators); mistin
// ingests the core's own self-describing packet framing from its source,
// whether that source is produced by a real demuxer upstream or a test
// harness.
package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mistcore/mist-core/internal/bus"
	"github.com/mistcore/mist-core/internal/cli"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/logger"
	"github.com/mistcore/mist-core/internal/registry"
	"github.com/mistcore/mist-core/internal/shm"
	"github.com/mistcore/mist-core/internal/stats"
	"github.com/mistcore/mist-core/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger.Init()

	// -worker is consumed separately from the shared surface since it is an
	// implementation detail of the angel/worker relationship, never a
	// capabilities-descriptor option a caller passes.
	isWorker, rest := extractWorkerFlag(os.Args[1:])

	cfg, err := cli.Parse("mistin", rest, nil)
	if err != nil {
		logger.Error("parsing arguments", "error", err)
		return cli.ExitPrecondition
	}
	if cfg.Stream == "" || cfg.Input == "" {
		logger.Error("missing required -s and input arguments")
		return cli.ExitPrecondition
	}

	store, err := shm.NewStore(shm.TmpFolder())
	if err != nil {
		logger.Error("opening shared memory store", "error", err)
		return cli.ExitForkExec
	}

	if !isWorker {
		return runAngel(store, cfg)
	}
	return runWorker(store, cfg)
}

// extractWorkerFlag pulls "-worker"/"--worker" out of argv before handing
// the rest to cli.Parse, since it is not part of the §6 shared surface.
func extractWorkerFlag(args []string) (bool, []string) {
	out := make([]string, 0, len(args))
	found := false
	for _, a := range args {
		if a == "-worker" || a == "--worker" {
			found = true
			continue
		}
		out = append(out, a)
	}
	return found, out
}

func runAngel(store *shm.Store, cfg *cli.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	name, err := registry.SanitizeName(cfg.Stream)
	if err != nil {
		logger.Error("sanitizing stream name", "error", err)
		return cli.ExitPrecondition
	}

	workerArgv := append([]string{os.Args[0], "--worker"}, os.Args[1:]...)
	err = supervisor.RunAngel(ctx, supervisor.AngelConfig{
		WorkerArgv: workerArgv,
		Store:      store,
		StreamName: name,
	})
	if err != nil {
		logger.Error("angel loop exited with error", "error", err)
		return cli.ExitForkExec
	}
	return cli.ExitClean
}

func runWorker(store *shm.Store, cfg *cli.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	name, err := registry.SanitizeName(cfg.Stream)
	if err != nil {
		logger.Error("sanitizing stream name", "error", err)
		return cli.ExitPrecondition
	}
	log := logger.WithStream(logger.Logger(), name)

	statePage, err := supervisor.CreateStatePage(store, name)
	if err != nil {
		log.Error("creating state page", "error", err)
		return cli.ExitForkExec
	}
	defer statePage.Close()
	statePage.Set(supervisor.StateInit)

	inputLock, err := store.OpenSemaphore(shm.SemInputLockName(name))
	if err != nil {
		log.Error("opening exclusivity semaphore", "error", err)
		return cli.ExitForkExec
	}
	held, err := inputLock.TryWait()
	if err != nil {
		log.Error("acquiring exclusivity semaphore", "error", err)
		return cli.ExitForkExec
	}
	if !held {
		log.Error("another input already owns this stream")
		return cli.ExitPrecondition
	}
	defer inputLock.Post()

	statePage.Set(supervisor.StateBoot)

	metaPage, err := store.Create(shm.StreamMetaPageName(name), shm.DefaultStreamPageSize)
	if err != nil {
		log.Error("creating metadata page", "error", err)
		return cli.ExitForkExec
	}
	defer metaPage.Close()
	liveSem, err := store.OpenSemaphore(shm.SemLiveName(name))
	if err != nil {
		log.Error("opening metadata semaphore", "error", err)
		return cli.ExitForkExec
	}
	meta := bus.NewMetadataPage(metaPage, liveSem)

	exchange, err := stats.OpenExchangePage(store, 1)
	if err != nil {
		log.Error("opening statistics exchange page", "error", err)
		return cli.ExitForkExec
	}

	var src io.ReadCloser
	if cli.IsStdio(cfg.Input) {
		src = os.Stdin
	} else {
		cache := bus.HeaderCache{}
		if cached, ok, _ := cache.Load(cfg.Input); ok {
			_ = meta.Publish(cached)
		}
		f, err := os.Open(cfg.Input)
		if err != nil {
			log.Error("opening input source", "error", err)
			return cli.ExitPrecondition
		}
		src = f
	}
	defer src.Close()

	ing := newIngest(store, name)
	defer ing.close()

	row, err := exchange.Claim(stats.ExchangeRecord{Host: "local", Stream: name, Connector: "INPUT", Now: time.Now().Unix()})
	if err != nil {
		log.Warn("claiming statistics row", "error", err)
	}

	statePage.Set(supervisor.StateReady)
	log.Info("input ready")

	done := make(chan error, 1)
	go func() { done <- ing.run(ctx, bufio.NewReaderSize(src, 64*1024), meta) }()

	statsTicker := time.NewTicker(stats.StatsInputDelay / 4 * time.Second)
	defer statsTicker.Stop()

	var runErr error
loop:
	for {
		select {
		case runErr = <-done:
			break loop
		case <-ctx.Done():
			break loop
		case now := <-statsTicker.C:
			if row >= 0 {
				_ = exchange.Publish(row, stats.ExchangeRecord{
					Host: "local", Stream: name, Connector: "INPUT",
					Now: now.Unix(), Up: ing.bytesIn(), Down: 0,
				})
			}
		}
	}

	statePage.Set(supervisor.StateShutdown)
	if !cli.IsStdio(cfg.Input) {
		cache := bus.HeaderCache{}
		_ = cache.Store(cfg.Input, ing.snapshotMeta())
	}
	statePage.Set(supervisor.StateOff)

	if runErr != nil && !coreerrors.IsFatal(runErr) {
		log.Warn("input stream ended", "error", runErr)
		return cli.ExitClean
	}
	if runErr != nil {
		log.Error("input stream failed", "error", runErr)
		return cli.ExitForkExec
	}
	return cli.ExitClean
}

// ingest owns the per-track writers and the in-memory metadata snapshot a
// worker builds up as it reads framed records from its source.
type ingest struct {
	store      *shm.Store
	streamName string
	writers    map[uint32]*bus.TrackWriter
	tracks     map[uint32]*bus.Track
	read       int64
}

func newIngest(store *shm.Store, streamName string) *ingest {
	return &ingest{
		store:      store,
		streamName: streamName,
		writers:    map[uint32]*bus.TrackWriter{},
		tracks:     map[uint32]*bus.Track{},
	}
}

func (ing *ingest) bytesIn() int64 { return ing.read }

func (ing *ingest) snapshotMeta() bus.StreamMeta {
	meta := bus.StreamMeta{}
	for _, t := range ing.tracks {
		meta.Tracks = append(meta.Tracks, *t)
	}
	return meta
}

// run reads bus.DecodePacketRecord-framed packets from r until EOF or ctx
// is canceled, appending each to its track's writer and periodically
// publishing the accumulated metadata.
func (ing *ingest) run(ctx context.Context, r *bufio.Reader, meta *bus.MetadataPage) error {
	var sincePublish int

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pkt, err := bus.DecodePacketRecord(r)
		if err != nil {
			if err == io.EOF {
				return ing.publish(meta)
			}
			return err
		}
		ing.read += int64(bus.WireRecordHeaderSize) + int64(len(pkt.Payload))

		if err := ing.append(pkt); err != nil {
			return err
		}

		sincePublish++
		if sincePublish >= 50 {
			if err := ing.publish(meta); err != nil {
				return err
			}
			sincePublish = 0
		}
	}
}

func (ing *ingest) append(pkt bus.Packet) error {
	w, ok := ing.writers[pkt.TrackID]
	if !ok {
		var err error
		w, err = bus.NewTrackWriter(ing.store, ing.streamName, pkt.TrackID)
		if err != nil {
			return err
		}
		ing.writers[pkt.TrackID] = w
		ing.tracks[pkt.TrackID] = &bus.Track{ID: pkt.TrackID, FirstMS: pkt.TimeMS}
	}
	if err := w.Append(pkt, time.Now()); err != nil {
		return err
	}

	trk := ing.tracks[pkt.TrackID]
	if trk.FirstMS == 0 {
		trk.FirstMS = pkt.TimeMS
	}
	trk.LastMS = pkt.TimeMS
	if pkt.IsKeyframe() {
		num := uint32(len(trk.Keys))
		byteOffset, partCount := w.KeyBoundary()
		trk.Keys = append(trk.Keys, bus.Key{
			Number: num, TimeMS: pkt.TimeMS,
			ByteSize: byteOffset, PartCount: partCount,
		})
	}
	return nil
}

func (ing *ingest) publish(meta *bus.MetadataPage) error {
	return meta.Publish(ing.snapshotMeta())
}

func (ing *ingest) close() {
	for _, w := range ing.writers {
		_ = w.Close()
	}
}
