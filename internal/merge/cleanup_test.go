package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSnapshotService struct {
	snapshots []MountSnapshot
	calls     int
}

func (f *fakeSnapshotService) Capture(ctx context.Context) (MountSnapshot, error) {
	s := f.snapshots[f.calls]
	if f.calls < len(f.snapshots)-1 {
		f.calls++
	}
	return s, nil
}

type fakeMountCommandService struct {
	unmounted []string
}

func (f *fakeMountCommandService) Mount(ctx context.Context, desired DesiredMount, highPriority bool) error {
	return nil
}
func (f *fakeMountCommandService) Remount(ctx context.Context, desired DesiredMount, highPriority bool) error {
	return nil
}
func (f *fakeMountCommandService) Unmount(ctx context.Context, mountPoint string) error {
	f.unmounted = append(f.unmounted, mountPoint)
	return nil
}
func (f *fakeMountCommandService) ProbeReadiness(ctx context.Context, mountPoint string, timeout time.Duration) ReadinessProbeResult {
	return ReadinessProbeResult{}
}

func TestOnWorkerStartingUnmountsManagedMountsAndRelocatesResiduals(t *testing.T) {
	root := t.TempDir()
	mergedRoot := filepath.Join(root, "merged")
	branchDirRoot := filepath.Join(root, "branches")
	configRoot := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(mergedRoot, 0o755))
	require.NoError(t, os.MkdirAll(branchDirRoot, 0o755))

	residual := filepath.Join(mergedRoot, "Orphaned Manga")
	require.NoError(t, os.MkdirAll(residual, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(residual, "leftover.txt"), []byte("x"), 0o644))

	snapshotSvc := &fakeSnapshotService{snapshots: []MountSnapshot{
		{Entries: []MountSnapshotEntry{{MountPoint: filepath.Join(mergedRoot, "Orphaned%20Manga"), FSType: "fuse.mergerfs", Source: "mergerfs"}}},
		{},
	}}
	mountSvc := &fakeMountCommandService{}

	warnings, err := OnWorkerStarting(context.Background(), snapshotSvc, mountSvc, DefaultCleanupFileSystem(), DefaultBranchFileSystem(), mergedRoot, branchDirRoot, configRoot, []string{mergedRoot})
	require.NoError(t, err)
	require.Len(t, mountSvc.unmounted, 1)

	entries, err := os.ReadDir(mergedRoot)
	require.NoError(t, err)
	require.Empty(t, entries)

	residualRoot := filepath.Join(configRoot, "cleanup", "merged-residual")
	relocated, err := os.ReadDir(residualRoot)
	require.NoError(t, err)
	require.Len(t, relocated, 1)

	found := false
	for _, w := range warnings {
		if w != "" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCleanResidualDirsRemovesEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	mergedRoot := filepath.Join(root, "merged")
	configRoot := filepath.Join(root, "config")
	empty := filepath.Join(mergedRoot, "Empty Manga")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	warnings := cleanResidualDirs(DefaultCleanupFileSystem(), mergedRoot, configRoot)
	require.Empty(t, warnings)

	_, err := os.Stat(empty)
	require.True(t, os.IsNotExist(err))
}
