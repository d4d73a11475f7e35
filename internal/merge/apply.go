package merge

import (
	"context"
	"fmt"
	"time"
)

// ApplyOptions configures one apply pass.
type ApplyOptions struct {
	SuppressStaleUnmount   bool
	HighPriority           bool
	MaxConsecutiveFailures int
	ReadinessTimeout       time.Duration
}

// ApplyResult summarizes one apply pass.
type ApplyResult struct {
	Applied      int
	FailFast     bool
	Warnings     []string
}

// ApplyActions issues the reconciliation actions sequentially,
// suppressing stale-unmount actions under degradation, wrapping
// mount/remount with high-priority scheduling when configured, and
// aborting remaining actions once the consecutive-failure threshold is
// reached (spec.md §4.9 step 7).
func ApplyActions(
	ctx context.Context,
	actions []ReconciliationAction,
	desiredByMountPoint map[string]DesiredMount,
	svc MountCommandService,
	opts ApplyOptions,
) ApplyResult {
	result := ApplyResult{}
	consecutiveFailures := 0

	for _, action := range actions {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		if action.Kind == ActionUnmount && action.Reason == UnmountReasonStaleMount && opts.SuppressStaleUnmount {
			result.Warnings = append(result.Warnings, "suppressed stale-unmount action for "+action.MountPoint)
			continue
		}

		ok := applyOne(ctx, action, desiredByMountPoint, svc, opts)
		result.Applied++
		if ok {
			consecutiveFailures = 0
			continue
		}
		consecutiveFailures++
		result.Warnings = append(result.Warnings, fmt.Sprintf("merge.workflow.action_failed mountpoint=%s", action.MountPoint))
		if opts.MaxConsecutiveFailures > 0 && consecutiveFailures >= opts.MaxConsecutiveFailures {
			result.FailFast = true
			result.Warnings = append(result.Warnings, "merge.workflow.action_fail_fast")
			return result
		}
	}

	return result
}

func applyOne(ctx context.Context, action ReconciliationAction, desiredByMountPoint map[string]DesiredMount, svc MountCommandService, opts ApplyOptions) bool {
	switch action.Kind {
	case ActionMount:
		desired, ok := desiredByMountPoint[action.MountPoint]
		if !ok {
			return false
		}
		if err := svc.Mount(ctx, desired, opts.HighPriority); err != nil {
			return false
		}
		probe := svc.ProbeReadiness(ctx, action.MountPoint, opts.ReadinessTimeout)
		return probe.Ready
	case ActionRemount:
		desired, ok := desiredByMountPoint[action.MountPoint]
		if !ok {
			return false
		}
		if err := svc.Remount(ctx, desired, opts.HighPriority); err != nil {
			return false
		}
		probe := svc.ProbeReadiness(ctx, action.MountPoint, opts.ReadinessTimeout)
		return probe.Ready
	case ActionUnmount:
		return svc.Unmount(ctx, action.MountPoint) == nil
	default:
		return false
	}
}

// ValidatePostApplySnapshot checks that every mountpoint this pass
// attempted to bring up is actually visible as fuse.mergerfs in a
// freshly captured snapshot; mountpoints that fail this check downgrade
// the whole apply to a failure.
func ValidatePostApplySnapshot(attempted []string, snapshot MountSnapshot) (ok bool, failedMountPoints []string) {
	byMountPoint := make(map[string]MountSnapshotEntry, len(snapshot.Entries))
	for _, e := range snapshot.Entries {
		byMountPoint[e.MountPoint] = e
	}
	for _, mp := range attempted {
		entry, found := byMountPoint[mp]
		if !found || entry.FSType != "fuse.mergerfs" {
			failedMountPoints = append(failedMountPoints, mp)
		}
	}
	return len(failedMountPoints) == 0, failedMountPoints
}
