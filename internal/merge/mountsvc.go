package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ssmexec "github.com/cjmanca/ssmergerd/internal/exec"
)

// ExecMountSnapshotService captures the live mount table by shelling
// out to findmnt, the external collaborator spec.md §6 names for mount
// snapshotting.
type ExecMountSnapshotService struct {
	Executor *ssmexec.Executor
	Timeout  time.Duration
}

// Capture implements MountSnapshotService. findmnt output is parsed as
// whitespace-separated "<mountpoint> <fstype> <source>" lines (`findmnt
// -rno TARGET,FSTYPE,SOURCE`); a non-zero exit is parsed like success,
// while any other outcome (tool not found, timeout, start failure,
// cancellation) degrades visibility rather than failing the pass
// outright, since a momentarily-unavailable findmnt does not mean the
// mounts themselves are gone.
func (s *ExecMountSnapshotService) Capture(ctx context.Context) (MountSnapshot, error) {
	res := s.Executor.Run(ctx, ssmexec.Request{
		FileName:            "findmnt",
		Arguments:           []string{"-rno", "TARGET,FSTYPE,SOURCE"},
		Timeout:             s.Timeout,
		PollInterval:        50 * time.Millisecond,
		MaxOutputCharacters: 1 << 20,
	})

	var snapshot MountSnapshot
	switch res.Outcome {
	case ssmexec.Success, ssmexec.NonZeroExit:
		// findmnt exits non-zero when it finds no matching mounts at
		// all; stdout (if any) is still meaningful.
	default:
		snapshot.Warnings = append(snapshot.Warnings, Warning{
			Message:  "findmnt snapshot capture degraded: " + res.Outcome.String(),
			Severity: SeverityDegradedVisibility,
		})
		return snapshot, nil
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		snapshot.Entries = append(snapshot.Entries, MountSnapshotEntry{
			MountPoint: fields[0],
			FSType:     fields[1],
			Source:     strings.Join(fields[2:], " "),
		})
	}
	return snapshot, nil
}

// ExecMountCommandService issues mount/unmount commands via the
// external mergerfs binary and its unmount counterpart (spec.md §6),
// optionally wrapped in ionice/nice for high-priority cleanup apply
// (spec.md §4.9 step 7).
type ExecMountCommandService struct {
	Executor *ssmexec.Executor

	MergerfsBinary    string // default "mergerfs"
	UnmountBinary      string // default "umount"
	MergerfsOptionsBase string // e.g. "cache.files=partial,dropcacheonclose=true,category.create=ff"

	MountTimeout     time.Duration
	IONiceClass      int
	NiceValue        int
}

func (s *ExecMountCommandService) mergerfsBinary() string {
	if s.MergerfsBinary != "" {
		return s.MergerfsBinary
	}
	return "mergerfs"
}

func (s *ExecMountCommandService) unmountBinary() string {
	if s.UnmountBinary != "" {
		return s.UnmountBinary
	}
	return "umount"
}

// Mount implements MountCommandService.
func (s *ExecMountCommandService) Mount(ctx context.Context, desired DesiredMount, highPriority bool) error {
	if err := os.MkdirAll(desired.MountPoint, 0o755); err != nil {
		return fmt.Errorf("ensure mountpoint %s: %w", desired.MountPoint, err)
	}
	branchSpec := filepath.Join(desired.BranchDir, "*")
	args := []string{"-o", s.MergerfsOptionsBase, branchSpec, desired.MountPoint}
	return s.run(ctx, s.mergerfsBinary(), args, highPriority)
}

// Remount implements MountCommandService: unmount then mount again,
// mirroring how a union filesystem picks up a changed branch set.
func (s *ExecMountCommandService) Remount(ctx context.Context, desired DesiredMount, highPriority bool) error {
	_ = s.Unmount(ctx, desired.MountPoint)
	return s.Mount(ctx, desired, highPriority)
}

// Unmount implements MountCommandService.
func (s *ExecMountCommandService) Unmount(ctx context.Context, mountPoint string) error {
	return s.run(ctx, s.unmountBinary(), []string{mountPoint}, false)
}

func (s *ExecMountCommandService) run(ctx context.Context, fileName string, args []string, highPriority bool) error {
	if highPriority {
		fileName, args = wrapHighPriority(fileName, args, s.IONiceClass, s.NiceValue)
	}
	res := s.Executor.Run(ctx, ssmexec.Request{
		FileName:            fileName,
		Arguments:           args,
		Timeout:             s.MountTimeout,
		PollInterval:        50 * time.Millisecond,
		MaxOutputCharacters: 1 << 16,
	})
	if res.Outcome != ssmexec.Success {
		return fmt.Errorf("mount command %s %v failed: outcome=%s exit=%d stderr=%s", fileName, args, res.Outcome, res.ExitCode, res.Stderr)
	}
	return nil
}

// wrapHighPriority prepends "ionice -c <class> nice -n <value>" ahead
// of the real command, matching spec.md §4.9 step 7's
// cleanup_apply_high_priority behavior.
func wrapHighPriority(fileName string, args []string, ioniceClass, niceValue int) (string, []string) {
	wrapped := append([]string{"-c", strconv.Itoa(ioniceClass), "nice", "-n", strconv.Itoa(niceValue), fileName}, args...)
	return "ionice", wrapped
}

// ProbeReadiness implements MountCommandService per SPEC_FULL.md's
// resolved Open Question: a mount is ready once a stat of the
// mountpoint path itself succeeds, polled every 100ms; reaching the
// timeout or a cancelled ctx yields Ready=false (a hard failure, not a
// silent skip). The filesystem type at the mountpoint is not checked.
func (s *ExecMountCommandService) ProbeReadiness(ctx context.Context, mountPoint string, timeout time.Duration) ReadinessProbeResult {
	start := time.Now()
	deadline := start.Add(timeout)
	interval := 100 * time.Millisecond

	for {
		if _, err := os.Stat(mountPoint); err == nil {
			return ReadinessProbeResult{Ready: true, Elapsed: time.Since(start)}
		}
		if time.Now().After(deadline) {
			return ReadinessProbeResult{Ready: false, Elapsed: time.Since(start)}
		}
		select {
		case <-ctx.Done():
			return ReadinessProbeResult{Ready: false, Elapsed: time.Since(start)}
		case <-time.After(interval):
		}
	}
}
