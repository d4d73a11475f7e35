package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cjmanca/ssmergerd/internal/logging"
	"github.com/cjmanca/ssmergerd/internal/merge"
	"github.com/cjmanca/ssmergerd/internal/pipeline"
	"github.com/cjmanca/ssmergerd/internal/rename"
	"github.com/cjmanca/ssmergerd/internal/watch"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.LevelDebug, logging.RollingConfig{
		Directory: t.TempDir(),
		FileName:  "test.log",
		MaxSizeMB: 1,
	}, func(string) {})
}

type stubWatcher struct{}

func (stubWatcher) Poll(watchRoots []string, timeout time.Duration, cancel <-chan struct{}) watch.PollResult {
	return watch.PollResult{}
}

type stubCoalescer struct{ dispatched int }

func (s *stubCoalescer) RequestMerge(reason string, force bool) {}
func (s *stubCoalescer) HasPending() bool                       { return false }
func (s *stubCoalescer) Dispatch(ctx context.Context) merge.PassResult {
	s.dispatched++
	return merge.PassResult{}
}

type stubWarner struct{}

func (stubWarner) Warn(message string)  {}
func (stubWarner) Debug(message string) {}

type stubSnapshotService struct{}

func (stubSnapshotService) Capture(ctx context.Context) (merge.MountSnapshot, error) {
	return merge.MountSnapshot{}, nil
}

type stubMountCommandService struct{}

func (stubMountCommandService) Mount(ctx context.Context, desired merge.DesiredMount, highPriority bool) error {
	return nil
}
func (stubMountCommandService) Remount(ctx context.Context, desired merge.DesiredMount, highPriority bool) error {
	return nil
}
func (stubMountCommandService) Unmount(ctx context.Context, mountPoint string) error { return nil }
func (stubMountCommandService) ProbeReadiness(ctx context.Context, mountPoint string, timeout time.Duration) merge.ReadinessProbeResult {
	return merge.ReadinessProbeResult{}
}

func newTestWorker(t *testing.T, root string) *Worker {
	t.Helper()
	mergedRoot := filepath.Join(root, "merged")
	branchDirRoot := filepath.Join(root, "branches")
	require.NoError(t, os.MkdirAll(mergedRoot, 0o755))
	require.NoError(t, os.MkdirAll(branchDirRoot, 0o755))

	renameProc := rename.NewProcessor(rename.DefaultFileSystem(), rename.DefaultSanitizer{}, stubWarner{}, root, time.Second, time.Second, time.Second)

	pl := pipeline.NewPipeline(root, map[string]bool{}, stubWatcher{}, renameProc, renameProc, &stubCoalescer{}, stubWarner{}, merge.ListImmediateDirs)

	return &Worker{
		Pipeline:        pl,
		Logger:          testLogger(t),
		SnapshotService: stubSnapshotService{},
		MountService:    stubMountCommandService{},
		CleanupFS:       merge.DefaultCleanupFileSystem(),
		BranchFS:        merge.DefaultBranchFileSystem(),
		MergedRoot:      mergedRoot,
		BranchDirRoot:   branchDirRoot,
		ConfigRoot:      root,
		ManagedRoots:    []string{mergedRoot},
		WatchRoots:      []string{root},
		PollTimeout:     10 * time.Millisecond,
		TickInterval:    10 * time.Millisecond,
		RenameProc:      renameProc,
		RenameQueuePath: filepath.Join(root, "rename_queue.yml"),
	}
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	w := newTestWorker(t, root)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.NoError(t, w.Run(ctx))
}

func TestWorkerRunPersistsRenameQueueOnExit(t *testing.T) {
	root := t.TempDir()
	w := newTestWorker(t, root)
	w.RenameProc.EnqueueChapterPath(filepath.Join(root, "SourceA", "Manga", "Chapter 1"), time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	entries, err := rename.LoadQueueFile(w.RenameQueuePath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
