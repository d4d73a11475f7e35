package exec

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// PersistentProcess is the long-running process facade behind the
// persistent inotify reader (spec.md §4.6): it starts one external
// command, streams its stdout line-by-line onto Lines, and supports a
// bounded Stop.
type PersistentProcess struct {
	cmd     *exec.Cmd
	Lines   chan string
	errOnce sync.Once
	exited  chan struct{}
	exitErr error
}

// StartPersistentProcess starts fileName with arguments and begins
// draining its stdout into Lines (capacity 256, dropping the oldest
// unread line under back-pressure so a stalled consumer cannot block
// the OS-level reader).
func StartPersistentProcess(fileName string, arguments []string) (*PersistentProcess, error) {
	cmd := exec.Command(fileName, arguments...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &PersistentProcess{
		cmd:    cmd,
		Lines:  make(chan string, 256),
		exited: make(chan struct{}),
	}

	go p.drain(stdout)
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()

	return p, nil
}

func (p *PersistentProcess) drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case p.Lines <- line:
		default:
			// Drop the oldest buffered line to make room, matching the
			// bounded-buffer drop-oldest policy used elsewhere in this
			// daemon rather than blocking the OS pipe reader.
			select {
			case <-p.Lines:
			default:
			}
			select {
			case p.Lines <- line:
			default:
			}
		}
	}
	p.errOnce.Do(func() { close(p.Lines) })
}

// Stop kills the process tree and waits up to maxWait for it to exit.
func (p *PersistentProcess) Stop(maxWait time.Duration) {
	if p.cmd.Process != nil {
		if pgid, err := unix.Getpgid(p.cmd.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = p.cmd.Process.Kill()
		}
	}
	select {
	case <-p.exited:
	case <-time.After(maxWait):
	}
}

// Exited reports whether the underlying process has already exited,
// and if so, its wait error (nil on a clean exit).
func (p *PersistentProcess) Exited() (bool, error) {
	select {
	case <-p.exited:
		return true, p.exitErr
	default:
		return false, nil
	}
}
