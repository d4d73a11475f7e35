package merge

import "strings"

// Reconcile compares desired mounts against a live snapshot and
// produces the ordered list of actions to apply (spec.md §4.9 step 6).
// Force-remount targets are matched by mountpoint and always yield a
// Remount action even when the live entry otherwise looks healthy.
func Reconcile(input ReconciliationInput) []ReconciliationAction {
	actualByMountPoint := make(map[string]MountSnapshotEntry, len(input.ActualSnapshot.Entries))
	for _, e := range input.ActualSnapshot.Entries {
		actualByMountPoint[e.MountPoint] = e
	}
	forced := make(map[string]bool, len(input.ForceRemountMountPoints))
	for _, mp := range input.ForceRemountMountPoints {
		forced[mp] = true
	}
	desiredByMountPoint := make(map[string]bool, len(input.DesiredMounts))
	for _, d := range input.DesiredMounts {
		desiredByMountPoint[d.MountPoint] = true
	}

	var actions []ReconciliationAction

	for _, desired := range input.DesiredMounts {
		entry, live := actualByMountPoint[desired.MountPoint]
		switch {
		case !live:
			actions = append(actions, ReconciliationAction{Kind: ActionMount, MountPoint: desired.MountPoint, BranchDir: desired.BranchDir})
		case forced[desired.MountPoint]:
			actions = append(actions, ReconciliationAction{Kind: ActionRemount, MountPoint: desired.MountPoint, BranchDir: desired.BranchDir, Reason: UnmountReasonForceRemount})
		case input.EnableHealthChecks && !isHealthy(entry):
			actions = append(actions, ReconciliationAction{Kind: ActionRemount, MountPoint: desired.MountPoint, BranchDir: desired.BranchDir, Reason: UnmountReasonForceRemount})
		}
	}

	for _, root := range input.ManagedMountRoots {
		for _, entry := range input.ActualSnapshot.Entries {
			if !desiredByMountPoint[entry.MountPoint] && strings.HasPrefix(entry.MountPoint, root) {
				actions = append(actions, ReconciliationAction{Kind: ActionUnmount, MountPoint: entry.MountPoint, Reason: UnmountReasonStaleMount})
			}
		}
	}

	return actions
}

func isHealthy(entry MountSnapshotEntry) bool {
	return entry.FSType == "fuse.mergerfs"
}
