package host

import (
	"context"
	"time"

	"github.com/cjmanca/ssmergerd/internal/logging"
	"github.com/cjmanca/ssmergerd/internal/merge"
	"github.com/cjmanca/ssmergerd/internal/pipeline"
	"github.com/cjmanca/ssmergerd/internal/rename"
)

// Worker implements supervisor.Worker: it runs the startup cleanup pass
// once, then drives the event pipeline on a fixed tick until ctx is
// cancelled, persisting the rename queue on every tick and on exit.
type Worker struct {
	Pipeline        *pipeline.Pipeline
	Logger          *logging.Logger
	SnapshotService merge.MountSnapshotService
	MountService    merge.MountCommandService
	CleanupFS       merge.CleanupFileSystem
	BranchFS        merge.BranchFileSystem
	MergedRoot      string
	BranchDirRoot   string
	ConfigRoot      string
	ManagedRoots    []string
	WatchRoots      []string
	PollTimeout     time.Duration
	TickInterval    time.Duration
	RenameProc      *rename.Processor
	RenameQueuePath string
}

// Run implements supervisor.Worker.
func (w *Worker) Run(ctx context.Context) error {
	cleanupWarnings, err := merge.OnWorkerStarting(ctx, w.SnapshotService, w.MountService, w.CleanupFS, w.BranchFS, w.MergedRoot, w.BranchDirRoot, w.ConfigRoot, w.ManagedRoots)
	if err != nil {
		w.Logger.Error("host.worker.startup_cleanup_failed", "startup cleanup failed", logging.F("error", err.Error()))
	}
	for _, warning := range cleanupWarnings {
		w.Logger.Warning("host.worker.startup_cleanup_warning", warning)
	}

	interval := w.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer w.persistRenameQueue()

	// cancelCh is closed exactly once, by this goroutine, so an
	// in-flight Tick's executor calls unblock the moment ctx is
	// cancelled even if Run itself has already returned.
	cancelCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(cancelCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result := w.Pipeline.Tick(ctx, time.Now().UTC(), w.WatchRoots, w.PollTimeout, cancelCh)
			for _, warning := range result.Warnings {
				w.Logger.Warning("host.worker.tick_warning", warning)
			}
			w.persistRenameQueue()
		}
	}
}

func (w *Worker) persistRenameQueue() {
	if w.RenameProc == nil {
		return
	}
	if err := rename.SaveQueueFile(w.RenameQueuePath, w.RenameProc.Snapshot()); err != nil {
		w.Logger.Warning("host.worker.rename_queue_save_failed", "failed to persist rename queue", logging.F("error", err.Error()))
	}
}
