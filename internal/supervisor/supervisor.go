// Package supervisor implements the single-instance daemon lifecycle
// (spec.md §4.4): exclusive lock acquisition, PID-file bookkeeping,
// coalesced concurrent Start, and bounded cooperative Stop.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cjmanca/ssmergerd/internal/logging"
)

// Worker is the cooperative unit of work the supervisor owns. Run must
// return promptly once ctx is cancelled.
type Worker interface {
	Run(ctx context.Context) error
}

// SignalRegistrar is the injectable side door for OS signal delivery
// (spec.md design notes: "an injectable side door for OS signals").
// Register must call stop exactly once, the first time a registered
// signal arrives, even if registration itself races a concurrent Stop.
type SignalRegistrar interface {
	Register(stop func())
	Unregister()
}

// State describes the daemon's on-disk identity files.
type State struct {
	PIDPath  string
	LockPath string
}

// Supervisor owns one Worker's lifecycle behind an exclusive
// single-instance lock.
type Supervisor struct {
	state    State
	worker   Worker
	logger   *logging.Logger
	registrar SignalRegistrar
	stopTimeout time.Duration

	mu       sync.Mutex
	running  bool
	starting chan struct{} // non-nil while a Start is in flight; closed when done
	startErr error

	lockFile *os.File
	cancel   context.CancelFunc
	doneCh   chan error
}

// New constructs a Supervisor. registrar may be nil (no signal
// integration, useful in tests).
func New(state State, worker Worker, logger *logging.Logger, registrar SignalRegistrar, stopTimeout time.Duration) *Supervisor {
	return &Supervisor{
		state:       state,
		worker:      worker,
		logger:      logger,
		registrar:   registrar,
		stopTimeout: stopTimeout,
	}
}

// Start acquires the exclusive lock, writes the PID file, and launches
// the worker. Concurrent Start calls coalesce: the actual startup runs
// exactly once, and every caller observes the same outcome. A repeated
// Start while already running is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.starting != nil {
		ch := s.starting
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		err := s.startErr
		s.mu.Unlock()
		return err
	}
	s.starting = make(chan struct{})
	s.mu.Unlock()

	err := s.doStart(ctx)

	s.mu.Lock()
	s.startErr = err
	if err == nil {
		s.running = true
	}
	close(s.starting)
	s.starting = nil
	s.mu.Unlock()

	return err
}

func (s *Supervisor) doStart(ctx context.Context) error {
	if err := os.MkdirAll(parentDir(s.state.LockPath), 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}

	lockFile, err := os.OpenFile(s.state.LockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		return fmt.Errorf("acquire exclusive lock %s: %w", s.state.LockPath, err)
	}
	s.lockFile = lockFile

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.state.PIDPath, []byte(pid), 0o644); err != nil {
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
		s.lockFile = nil
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan error, 1)

	go func() {
		s.doneCh <- s.worker.Run(runCtx)
	}()

	if s.registrar != nil {
		s.registrar.Register(func() {
			s.mu.Lock()
			cancel := s.cancel
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		})
	}

	return nil
}

// Stop signals cancellation to the worker and waits up to stopTimeout
// for cooperative exit. If the deadline elapses, a
// supervisor.stop_timeout event is logged and cleanup proceeds (PID and
// lock files removed) regardless of whether the worker is still
// running. Repeated Stop calls are a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.doneCh
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.awaitAndCleanup(done, true)
}

// awaitAndCleanup waits (when shouldWait is true) up to stopTimeout for
// done to deliver the worker's result, then always removes the PID/lock
// state regardless of whether the wait completed. Call with
// shouldWait=false when the caller already knows done has been drained
// (the worker exited on its own). Reports whether the wait hit
// stopTimeout rather than the worker exiting.
func (s *Supervisor) awaitAndCleanup(done chan error, shouldWait bool) bool {
	timedOut := false
	if shouldWait && done != nil {
		select {
		case <-done:
		case <-time.After(s.stopTimeout):
			timedOut = true
			if s.logger != nil {
				s.logger.Warning("supervisor.stop_timeout", "worker did not exit before stop timeout",
					logging.F("stop_timeout", s.stopTimeout.String()))
			}
		}
	}

	s.mu.Lock()
	registrar := s.registrar
	s.running = false
	if s.lockFile != nil {
		unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN)
		s.lockFile.Close()
		s.lockFile = nil
	}
	s.mu.Unlock()

	if registrar != nil {
		registrar.Unregister()
	}

	os.Remove(s.state.PIDPath)
	os.Remove(s.state.LockPath)

	return timedOut
}

// Run starts the worker, blocks until either the worker returns or ctx
// is cancelled, then performs a bounded stop, returning a process exit
// code: 0 on cooperative cancel or clean signal, 1 if the worker
// returned an error or the stop timeout elapsed.
func (s *Supervisor) Run(ctx context.Context) int {
	if err := s.Start(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("supervisor.start_failed", "failed to start daemon", logging.F("error", err.Error()))
		}
		return 1
	}

	s.mu.Lock()
	done := s.doneCh
	cancel := s.cancel
	s.mu.Unlock()

	var workerErr error
	workerExitedOnItsOwn := false
	select {
	case workerErr = <-done:
		workerExitedOnItsOwn = true
	case <-ctx.Done():
	}

	if cancel != nil {
		cancel()
	}
	stopTimedOut := s.awaitAndCleanup(done, !workerExitedOnItsOwn)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if workerErr != nil || stopTimedOut {
		return 1
	}
	return 0
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
