package supervisor

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	coreerrors "github.com/mistcore/mist-core/internal/errors"
	"github.com/mistcore/mist-core/internal/logger"
	"github.com/mistcore/mist-core/internal/shm"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// terminationGrace is how long the angel waits for a signaled worker to
// exit on its own before escalating to SIGKILL.
const terminationGrace = 8 * time.Second

// CrashHook is invoked after the worker exits abnormally and before the
// angel decides to restart it, mirroring the optional crash-hook trigger
// mentioned in §4.3 Supervision.
type CrashHook func(exitErr error, attempt int)

// AngelConfig configures RunAngel.
type AngelConfig struct {
	// WorkerArgv is the argv of the worker process to supervise (argv[0] is
	// the binary path). The worker is typically the angel's own binary
	// re-exec'd with an internal marker flag, since Go processes cannot
	// safely fork without exec.
	WorkerArgv []string
	Store      *shm.Store
	StreamName string
	OnCrash    CrashHook
}

// backoffStep is the per-crash backoff increment from §4.3 Supervision
// ("restarts with backoff starting at 0 and incrementing by 1000 ms each
// crash").
const backoffStep = 1000 * time.Millisecond

// RunAngel forks a worker, waits for it to exit, and restarts it with
// increasing backoff on any abnormal exit, until ctx is canceled. On clean
// exit (status 0) the angel itself returns nil. SIGTERM and SIGINT received
// by the angel are propagated to the current worker before the angel exits.
func RunAngel(ctx context.Context, cfg AngelConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	attempt := 0
	for {
		cmd := exec.CommandContext(ctx, cfg.WorkerArgv[0], cfg.WorkerArgv[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			return coreerrors.NewFatal("supervisor.RunAngel start", err)
		}

		waitCh := make(chan error, 1)
		go func() { waitCh <- cmd.Wait() }()

		var exitErr error
		select {
		case exitErr = <-waitCh:
		case sig := <-sigCh:
			logger.Info("angel forwarding signal to worker", "signal", sig.String(), "stream", cfg.StreamName)
			_ = cmd.Process.Signal(syscall.SIGTERM)
			exitErr = awaitExit(cmd.Process.Pid, waitCh)
			cancel()
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)
			exitErr = awaitExit(cmd.Process.Pid, waitCh)
		}

		if exitErr == nil {
			logger.Info("worker exited cleanly", "stream", cfg.StreamName)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		markInvalid(cfg.Store, cfg.StreamName)
		if cfg.OnCrash != nil {
			cfg.OnCrash(exitErr, attempt)
		}

		backoff := time.Duration(attempt-1) * backoffStep
		logger.Warn("worker exited abnormally, restarting", "stream", cfg.StreamName, "attempt", attempt, "backoff", backoff, "error", exitErr)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// awaitExit waits for the worker to report its exit after being signaled,
// escalating to SIGKILL if gopsutil still finds the process alive past
// terminationGrace — a cross-platform liveness check since pid reuse and
// zombie states make a bare os.Process.Signal(0) probe unreliable across
// platforms.
func awaitExit(pid int, waitCh chan error) error {
	select {
	case err := <-waitCh:
		return err
	case <-time.After(terminationGrace):
	}

	if proc, perr := gopsproc.NewProcess(int32(pid)); perr == nil {
		if running, _ := proc.IsRunning(); running {
			logger.Warn("worker still running past termination grace, sending SIGKILL", "pid", pid)
			_ = proc.Kill()
		}
	}
	return <-waitCh
}

func markInvalid(store *shm.Store, name string) {
	if store == nil || name == "" {
		return
	}
	sp, err := OpenStatePage(store, name)
	if err != nil {
		return
	}
	defer sp.Close()
	sp.Set(StateInvalid)
}
