// Package exec implements the bounded external-command executor
// (spec.md §4.5): every inotifywait/findmnt/mergerfs/umount invocation
// in this daemon runs through an Executor so capture, timeout, cancel,
// and process-tree kill semantics live in one place.
package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Outcome classifies how a command execution ended.
type Outcome int

const (
	Success Outcome = iota
	NonZeroExit
	TimedOut
	StartFailed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case NonZeroExit:
		return "NonZeroExit"
	case TimedOut:
		return "TimedOut"
	case StartFailed:
		return "StartFailed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// FailureKind further classifies a StartFailed outcome.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureToolNotFound
	FailureStartFailure
)

// Request is one bounded command invocation.
type Request struct {
	FileName           string
	Arguments          []string
	Timeout            time.Duration
	PollInterval       time.Duration
	MaxOutputCharacters int
	Cancel             <-chan struct{}
}

// Result is the typed outcome of a Run call.
type Result struct {
	Outcome         Outcome
	FailureKind     FailureKind
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	Elapsed         time.Duration
}

// Executor runs external commands with bounded output capture and
// cooperative cancellation.
type Executor struct{}

// New returns an Executor. It holds no state; every field of behavior
// lives in the Request passed to Run.
func New() *Executor { return &Executor{} }

// Run starts req.FileName with req.Arguments, drains stdout/stderr into
// bounded buffers, and polls for completion at min(PollInterval,
// remaining timeout) until the process exits, the timeout elapses, or
// Cancel fires. On timeout or cancellation it best-effort kills the
// entire process tree before returning.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	start := time.Now()

	cmd := exec.CommandContext(ctx, req.FileName, req.Arguments...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutBuf := newBoundedBuffer(req.MaxOutputCharacters)
	stderrBuf := newBoundedBuffer(req.MaxOutputCharacters)
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	if err := cmd.Start(); err != nil {
		kind := FailureStartFailure
		if errors.Is(err, exec.ErrNotFound) || isNotFoundError(err) {
			kind = FailureToolNotFound
		}
		return Result{
			Outcome:     StartFailed,
			FailureKind: kind,
			Elapsed:     time.Since(start),
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := time.Now().Add(req.Timeout)
	ticker := req.PollInterval
	if ticker <= 0 {
		ticker = 50 * time.Millisecond
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// One last immediate probe before declaring timeout.
			select {
			case err := <-done:
				return e.finish(cmd, err, stdoutBuf, stderrBuf, start, Success)
			default:
			}
			killProcessTree(cmd)
			<-done
			return Result{
				Outcome:         TimedOut,
				Stdout:          stdoutBuf.String(),
				Stderr:          stderrBuf.String(),
				StdoutTruncated: stdoutBuf.truncated,
				StderrTruncated: stderrBuf.truncated,
				Elapsed:         time.Since(start),
			}
		}

		wait := ticker
		if remaining < wait {
			wait = remaining
		}

		select {
		case err := <-done:
			return e.finish(cmd, err, stdoutBuf, stderrBuf, start, Success)
		case <-req.Cancel:
			select {
			case err := <-done:
				return e.finish(cmd, err, stdoutBuf, stderrBuf, start, Success)
			default:
			}
			killProcessTree(cmd)
			<-done
			return Result{
				Outcome:         Cancelled,
				Stdout:          stdoutBuf.String(),
				Stderr:          stderrBuf.String(),
				StdoutTruncated: stdoutBuf.truncated,
				StderrTruncated: stderrBuf.truncated,
				Elapsed:         time.Since(start),
			}
		case <-time.After(wait):
			// loop again: re-check cancel/deadline/exit
		}
	}
}

func (e *Executor) finish(cmd *exec.Cmd, waitErr error, stdoutBuf, stderrBuf *boundedBuffer, start time.Time, _ Outcome) Result {
	res := Result{
		Stdout:          stdoutBuf.String(),
		Stderr:          stderrBuf.String(),
		StdoutTruncated: stdoutBuf.truncated,
		StderrTruncated: stderrBuf.truncated,
		Elapsed:         time.Since(start),
	}
	if waitErr == nil {
		res.Outcome = Success
		res.ExitCode = 0
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.Outcome = NonZeroExit
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.Outcome = StartFailed
	res.FailureKind = FailureStartFailure
	return res
}

// killProcessTree best-effort kills the whole process group spawned for
// cmd. Capture-worker or kill failures are swallowed: cancellation must
// never fail loudly just because the OS couldn't find the pgid anymore.
func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func isNotFoundError(err error) bool {
	var pathErr *exec.Error
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, exec.ErrNotFound)
	}
	return false
}

// boundedBuffer caps how many characters of output it retains, setting
// truncated once the cap is exceeded. All writes are serialized: stdout
// and stderr are drained by separate goroutines under exec.Cmd, so each
// buffer needs its own lock even though each is single-writer in
// practice.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	if max <= 0 {
		max = 1 << 20
	}
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
