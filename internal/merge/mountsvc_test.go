package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ssmexec "github.com/cjmanca/ssmergerd/internal/exec"
)

func TestExecMountSnapshotServiceDegradesWhenFindmntMissing(t *testing.T) {
	emptyPath := t.TempDir()
	t.Setenv("PATH", emptyPath)

	svc := &ExecMountSnapshotService{Executor: ssmexec.New(), Timeout: time.Second}
	snapshot, err := svc.Capture(context.Background())
	require.NoError(t, err)
	require.Empty(t, snapshot.Entries)
	require.Len(t, snapshot.Warnings, 1)
	require.Equal(t, SeverityDegradedVisibility, snapshot.Warnings[0].Severity)
}

func TestExecMountCommandServiceMountCreatesMountpointAndRunsBinary(t *testing.T) {
	root := t.TempDir()
	mountPoint := filepath.Join(root, "merged", "One Piece")
	branchDir := filepath.Join(root, "branches", "One Piece")

	svc := &ExecMountCommandService{
		Executor:       ssmexec.New(),
		MergerfsBinary: "true",
		MountTimeout:   time.Second,
	}
	err := svc.Mount(context.Background(), DesiredMount{MountPoint: mountPoint, BranchDir: branchDir}, false)
	require.NoError(t, err)

	info, statErr := os.Stat(mountPoint)
	require.NoError(t, statErr)
	require.True(t, info.IsDir())
}

func TestExecMountCommandServiceMountReturnsErrorOnNonZeroExit(t *testing.T) {
	root := t.TempDir()
	svc := &ExecMountCommandService{
		Executor:       ssmexec.New(),
		MergerfsBinary: "false",
		MountTimeout:   time.Second,
	}
	err := svc.Mount(context.Background(), DesiredMount{
		MountPoint: filepath.Join(root, "merged", "One Piece"),
		BranchDir:  filepath.Join(root, "branches", "One Piece"),
	}, false)
	require.Error(t, err)
}

func TestExecMountCommandServiceUnmountUsesConfiguredBinary(t *testing.T) {
	svc := &ExecMountCommandService{
		Executor:      ssmexec.New(),
		UnmountBinary: "true",
		MountTimeout:  time.Second,
	}
	require.NoError(t, svc.Unmount(context.Background(), "/some/mount/point"))
}

func TestExecMountCommandServiceProbeReadinessReadyWhenPathExists(t *testing.T) {
	root := t.TempDir()
	svc := &ExecMountCommandService{Executor: ssmexec.New()}
	result := svc.ProbeReadiness(context.Background(), root, time.Second)
	require.True(t, result.Ready)
}

func TestExecMountCommandServiceProbeReadinessTimesOutWhenMissing(t *testing.T) {
	svc := &ExecMountCommandService{Executor: ssmexec.New()}
	result := svc.ProbeReadiness(context.Background(), "/does/not/exist", 50*time.Millisecond)
	require.False(t, result.Ready)
}
