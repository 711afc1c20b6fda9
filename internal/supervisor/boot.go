package supervisor

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/mistcore/mist-core/internal/config"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/logger"
	"github.com/mistcore/mist-core/internal/registry"
	"github.com/mistcore/mist-core/internal/shm"
)

// BootOptions carries the overrides and wiring a boot sequence needs:
// throughboot/alwaysStart/singular overrides (§4.3 step 2-4), the resolved
// capabilities, stream configuration values for parameter assembly, and
// the shared store both the caller and the child will map pages from.
type BootOptions struct {
	Store        *shm.Store
	Capabilities *config.Capabilities
	StreamConfig map[string]string
	Overrides    map[string]string
	IsProvider   bool
	BinaryDir    string
	DebugLevel   string
}

const (
	pollInterval = 250 * time.Millisecond
	pollAttempts = 240 // 240 * 250ms = 60s
)

// StartInput runs the §4.3 boot sequence for rawName against source. It
// returns nil once the input is confirmed alive (either already running or
// freshly started and observed to take its exclusivity lock), and an error
// classified via internal/errors otherwise.
func StartInput(ctx context.Context, rawName, source string, opts BootOptions) error {
	name, err := registry.SanitizeName(rawName)
	if err != nil {
		return err
	}

	pollForStartableState(opts.Store, name, opts.IsProvider, opts.Overrides)

	inputLock, err := opts.Store.OpenSemaphore(shm.SemInputLockName(name))
	if err != nil {
		return err
	}
	alreadyAlive, err := streamAlive(inputLock)
	if err != nil {
		return err
	}
	if alreadyAlive {
		if _, always := opts.Overrides["alwaysStart"]; !always {
			logger.Debug("stream already active, continuing", "stream", name)
			return nil
		}
	}

	expanded := registry.ExpandVariables(source, name, source, time.Now())
	desc, err := registry.ResolveInput(opts.Capabilities, expanded, opts.IsProvider)
	if err != nil {
		return err
	}
	params, err := registry.AssembleParameters(desc, opts.Overrides, opts.StreamConfig)
	if err != nil {
		return err
	}

	binaryPath := opts.BinaryDir + "/mistin" + desc.Name
	argv := BuildArgv(binaryPath, name, expanded, opts.DebugLevel, params)

	exited, err := spawnChild(ctx, argv)
	if err != nil {
		return err
	}

	ok, err := waitForLockOrExit(inputLock, pollAttempts*pollInterval, exited)
	if err != nil {
		return err
	}
	if ok {
		// We grabbed the lock ourselves by polling it as a plain mutex; give
		// it back immediately since the freshly exec'd child is the rightful
		// holder once it reaches READY.
		_ = inputLock.Post()
		return nil
	}
	return coreerrors.NewTimeout("supervisor.StartInput", pollAttempts*pollInterval, nil)
}

// pollForStartableState implements §4.3 step 2: poll the state byte at
// 250ms up to 60s while the stream is in a transitional state, breaking
// early on OFF/READY (and WAIT for a provider caller), or immediately on
// BOOT when the "throughboot" override is present.
func pollForStartableState(store *shm.Store, name string, isProvider bool, overrides map[string]string) State {
	_, throughboot := overrides["throughboot"]
	state := ReadState(store, name)
	for attempt := 0; attempt < pollAttempts; attempt++ {
		if Waitable(state, isProvider) {
			break
		}
		if state == StateBoot && throughboot {
			break
		}
		time.Sleep(pollInterval)
		state = ReadState(store, name)
	}
	return state
}

// streamAlive reports whether the input lock is currently held, mirroring
// Util::streamAlive: a successful non-blocking acquire means nobody holds
// it (so we immediately release it again), while a failed acquire means a
// live input already holds it.
func streamAlive(sem *shm.Semaphore) (bool, error) {
	acquired, err := sem.TryWait()
	if err != nil {
		return false, err
	}
	if acquired {
		if err := sem.Post(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// spawnChild forks-and-execs the input binary. Go processes cannot safely
// fork without exec, so "fork" here is exec.CommandContext starting a new
// process directly; cmd.Cancel (driven by ctx) delivers the worker's
// SIGTERM propagation (§4.3 "signals propagate via SIGTERM") instead of a
// literal angel-forwards-signal-to-child relationship.
//
// The returned channel receives cmd.Wait's result exactly once, as soon as
// the child exits (nil on a clean exit), so callers waiting on the child
// to take its exclusivity lock can race that wait against an early exit
// instead of blocking for the full poll timeout.
func spawnChild(ctx context.Context, argv []string) (<-chan error, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, coreerrors.NewFatal("supervisor.spawnChild stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, coreerrors.NewFatal("supervisor.spawnChild stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, coreerrors.NewFatal("supervisor.spawnChild start", err)
	}

	go drainPipe("stdout", argv[0], stdout)
	go drainPipe("stderr", argv[0], stderr)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	return exited, nil
}

// waitForLockOrExit polls, via streamAlive, until inputLock is held by
// another process (the child having taken its exclusivity lock), and also
// watches exited so a child that crashes immediately after exec (§4.3 step
// 5, "if not taken and the child has exited") is reported as a failure
// right away instead of blocking the caller for the full poll timeout.
func waitForLockOrExit(inputLock *shm.Semaphore, d time.Duration, exited <-chan error) (bool, error) {
	const pollInterval = 10 * time.Millisecond
	deadline := time.Now().Add(d)
	for {
		select {
		case exitErr := <-exited:
			return false, coreerrors.NewFatal("supervisor.StartInput child exited before taking lock", exitErr)
		default:
		}

		alive, err := streamAlive(inputLock)
		if err != nil {
			return false, err
		}
		if alive {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}

func drainPipe(streamName, binary string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		logger.Debug("child output", "binary", binary, "stream_fd", streamName, "line", sc.Text())
	}
}
