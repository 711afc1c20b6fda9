// Package logger provides the single process-wide structured logger used by
// every mist-core binary (controller, input, output). Per the core's design
// notes, global mutable state is restricted to a small set of process-startup
// singletons: the debug level here, plus the stream-name tag attached via
// WithStream.
package logger

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Environment variable names for log level configuration. DEBUG matches the
// core's own debug-level override (§6 Environment variables); MIST_LOG_LEVEL
// is the more conventional spelling and takes precedence when both are set.
const (
	envLogLevel      = "MIST_LOG_LEVEL"
	envDebugOverride = "DEBUG"
)

var (
	// atomicLevel implements slog.Leveler and can be changed at runtime.
	atomicLevel = &dynamicLevel{v: int64(slog.LevelInfo)}
	// global logger instance
	global   *slog.Logger
	initOnce sync.Once

	// Optional flag (users may pass -log.level=debug). If flags.Parse() hasn't
	// yet been called when Init is invoked, we still read the raw os.Args.
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")
)

// dynamicLevel is an atomic Leveler.
type dynamicLevel struct{ v int64 }

func (d *dynamicLevel) Level() slog.Level { return slog.Level(atomic.LoadInt64(&d.v)) }
func (d *dynamicLevel) set(l slog.Level)  { atomic.StoreInt64(&d.v, int64(l)) }

// Init initializes the global logger. It is safe to call multiple times; the
// first call wins except SetLevel / UseWriter which mutate state intentionally.
func Init() {
	initOnce.Do(func() {
		lvl := detectLevel()
		atomicLevel.set(lvl)
		global = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: atomicLevel}))
	})
}

// detectLevel resolves the initial log level from (precedence high→low):
//  1. command-line flag -log.level
//  2. environment variable MIST_LOG_LEVEL
//  3. environment variable DEBUG (numeric core debug level, §6)
//  4. default (info)
func detectLevel() slog.Level {
	if *flagLevel == "" {
		for _, arg := range os.Args[1:] {
			if strings.HasPrefix(arg, "-log.level=") {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) == 2 {
					*flagLevel = parts[1]
				}
			}
		}
	}
	if lvl, ok := parseLevel(strings.TrimSpace(*flagLevel)); ok {
		return lvl
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	if env := os.Getenv(envDebugOverride); env != "" {
		if lvl, ok := parseDebugNumber(env); ok {
			return lvl
		}
	}
	return slog.LevelInfo
}

// parseDebugNumber maps the core's historical numeric debug scale
// (lower = more verbose) onto slog levels.
func parseDebugNumber(s string) (slog.Level, bool) {
	switch strings.TrimSpace(s) {
	case "0", "1", "2", "3", "4":
		return slog.LevelDebug, true
	case "5", "6":
		return slog.LevelInfo, true
	case "7", "8":
		return slog.LevelWarn, true
	case "9", "10":
		return slog.LevelError, true
	}
	return 0, false
}

// parseLevel converts string to slog.Level.
func parseLevel(s string) (slog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errors.New("invalid log level: " + level)
	}
	atomicLevel.set(lvl)
	return nil
}

// Level returns the current runtime level as string.
func Level() string {
	Init()
	return atomicLevel.Level().String()
}

// UseWriter swaps the output writer (intended for tests). Retains current level.
func UseWriter(w io.Writer) {
	Init()
	global = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: atomicLevel}))
}

// Logger returns the global logger (ensures Init was called).
func Logger() *slog.Logger { Init(); return global }

// Convenience top-level logging functions.
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// WithConn attaches connection identity fields (one per output reader or
// input producer connection).
func WithConn(l *slog.Logger, connID, peerAddr string) *slog.Logger {
	return l.With("conn_id", connID, "peer_addr", peerAddr)
}

// WithStream attaches the stream-name tag. Every input and output process is
// pinned to exactly one stream for its lifetime, so this is normally applied
// once at process startup to that process's logger (the "stream name for log
// tagging" singleton described in the core's design notes).
func WithStream(l *slog.Logger, streamName string) *slog.Logger {
	return l.With("stream", streamName)
}

// WithSession attaches the session tuple used by the statistics aggregator
// (host/connector/crc) so access-log lines can be correlated by hand.
func WithSession(l *slog.Logger, host, connector string, crc uint32) *slog.Logger {
	return l.With("host", host, "connector", connector, "crc", crc)
}

// WithMessageMeta attaches per-packet metadata: its kind (e.g. "packet",
// "key", "command"), track id, and presentation timestamp in milliseconds.
func WithMessageMeta(l *slog.Logger, kind string, trackID uint32, timeMs int64) *slog.Logger {
	return l.With("msg_type", kind, "track_id", trackID, "time_ms", timeMs)
}
