// Command mistcontroller is the long-running control process: it loads the
// capabilities descriptor, boots inputs on demand through the Process
// Supervisor, drains the statistics exchange page into its Aggregator once
// a second, and serves the aggregate as Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mistcore/mist-core/internal/config"
	"github.com/mistcore/mist-core/internal/httpmw"
	"github.com/mistcore/mist-core/internal/logger"
	"github.com/mistcore/mist-core/internal/registry"
	"github.com/mistcore/mist-core/internal/shm"
	"github.com/mistcore/mist-core/internal/stats"
	"github.com/mistcore/mist-core/internal/supervisor"
)

// exchangeCapacity bounds how many concurrent sessions the statistics page
// can hold; the controller recreates the page at this size on every boot,
// sized generously since a row is cheap (see stats.ExchangeRowSize) next
// to an idle deployment's typical viewer counts.
const exchangeCapacity = 4096

func main() {
	os.Exit(run())
}

func run() int {
	capaPath := flag.String("capabilities", "capabilities.yaml", "path to the capabilities descriptor")
	listenAddr := flag.String("listen", ":4242", "address for the /metrics HTTP endpoint")
	binaryDir := flag.String("binary-dir", ".", "directory holding mistin*/mistout* binaries")
	flag.Parse()

	logger.Init()
	log := logger.Logger()

	settings := config.LoadSettings()

	store, err := shm.NewStore(shm.TmpFolder())
	if err != nil {
		log.Error("opening shared memory store", "error", err)
		return 1
	}
	shm.SetDefault(store)

	capaStore, err := registry.NewCapabilitiesStore(*capaPath)
	if err != nil {
		log.Error("loading capabilities descriptor", "path", *capaPath, "error", err)
		return 1
	}

	exchange, err := stats.OpenExchangePage(store, exchangeCapacity)
	if err != nil {
		log.Error("opening statistics exchange page", "error", err)
		return 1
	}

	aggregator := stats.NewAggregator(accessLogger(log))
	exporter := stats.NewExporter(aggregator, prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/active_streams", func(w http.ResponseWriter, r *http.Request) {
		writeLines(w, aggregator.ActiveStreams(time.Now().Unix()))
	})
	mux.HandleFunc("/start", startHandler(ctx, store, capaStore, *binaryDir, settings))
	srv := &http.Server{Addr: *listenAddr, Handler: httpmw.RequestID(mux)}

	go func() {
		log.Info("controller listening", "addr", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server exited", "error", err)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			for _, rec := range exchange.ReadAll() {
				aggregator.ParseRecord(rec)
			}
			aggregator.Tick(now.Unix())
			exporter.Collect()
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", "error", err)
	}

	caps := capaStore.Snapshot()
	log.Info("final capabilities snapshot", "inputs", len(caps.Inputs), "outputs", len(caps.Outputs))
	return 0
}

// accessLogger turns the Aggregator's per-retirement callback into a single
// structured log line per session, matching the original's single-access-
// log-emission-per-retirement rule (§4.6).
func accessLogger(log *slog.Logger) stats.AccessLogFunc {
	return func(idx stats.SessIndex, durationSec, up, down int64, _ stats.ConnID) {
		log.Info("session retired",
			"host", idx.Host, "stream", idx.Stream, "connector", idx.Connector, "crc", idx.CRC,
			"duration_sec", durationSec, "up_bytes", up, "down_bytes", down)
	}
}

func writeLines(w http.ResponseWriter, lines []string) {
	for _, l := range lines {
		_, _ = w.Write([]byte(l + "\n"))
	}
}

// startHandler triggers the §4.3 boot sequence for the stream/source named
// in the request's query string, the HTTP-facing equivalent of a pull
// request arriving at a protocol listener (out of scope for this core;
// see SPEC_FULL.md's DOMAIN STACK for what is deliberately unwired).
func startHandler(ctx context.Context, store *shm.Store, capaStore *registry.CapabilitiesStore, binaryDir string, settings config.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamName := r.URL.Query().Get("stream")
		source := r.URL.Query().Get("source")
		if streamName == "" || source == "" {
			http.Error(w, "stream and source are required", http.StatusBadRequest)
			return
		}

		opts := supervisor.BootOptions{
			Store:        store,
			Capabilities: capaStore.Snapshot(),
			BinaryDir:    binaryDir,
			IsProvider:   settings.Provider,
			DebugLevel:   settings.Debug,
		}
		if err := supervisor.StartInput(ctx, streamName, source, opts); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Logger().Info("input started", "request_id", httpmw.RequestIDFromContext(r.Context()), "stream", streamName)
		w.WriteHeader(http.StatusNoContent)
	}
}
