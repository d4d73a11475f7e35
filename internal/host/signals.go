package host

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// registerOSSignals/unregisterOSSignals adapt the teacher's
// signal.Notify-plus-goroutine shutdown pattern (cmd/linear-fuse's
// mount command) into supervisor.SignalRegistrar: SIGINT/SIGTERM calls
// stop exactly once, the first time either arrives.
var (
	sigMu   sync.Mutex
	sigChan chan os.Signal
	sigOnce sync.Once
)

func registerOSSignals(stop func()) {
	sigMu.Lock()
	defer sigMu.Unlock()

	sigChan = make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sigOnce = sync.Once{}
	ch := sigChan

	go func() {
		if _, ok := <-ch; ok {
			sigOnce.Do(stop)
		}
	}()
}

func unregisterOSSignals() {
	sigMu.Lock()
	defer sigMu.Unlock()
	if sigChan != nil {
		signal.Stop(sigChan)
		close(sigChan)
		sigChan = nil
	}
}
