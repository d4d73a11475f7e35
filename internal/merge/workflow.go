package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjmanca/ssmergerd/internal/logging"
)

// Workflow runs one merge pass end to end (spec.md §4.9): discovery,
// grouping, branch planning, snapshot, reconciliation, apply, metadata
// ensure, and branch-link staging/pruning.
type Workflow struct {
	Logger *logging.Logger

	Discoverer        VolumeDiscoverer
	ListDirs          func(root string) ([]string, error)
	ExcludedSources   map[string]bool
	Equivalence       EquivalenceResolver
	OverrideCanonical OverrideCanonicalResolver
	Planner           BranchPlanner
	SnapshotService   MountSnapshotService
	MountService      MountCommandService
	BranchFS          BranchFileSystem
	Metadata          MetadataEnsurer

	ManagedMountRoots       []string
	EnableHealthChecks      bool
	CleanupApplyHighPriority bool
	MaxConsecutiveFailures  int
	ReadinessProbeTimeout   time.Duration
}

// RunPass implements merge.PassRunner.
func (w *Workflow) RunPass(ctx context.Context, req Request) PassResult {
	var warnings []string
	sourceDiscoveryDegraded := false
	buildDegraded := false

	discovery, err := w.Discoverer.Discover(ctx)
	if err != nil {
		return PassResult{Outcome: DispatchFailure, Warnings: []string{"volume discovery failed: " + err.Error()}}
	}
	for _, dw := range discovery.Warnings {
		warnings = append(warnings, dw.Message)
		if dw.Severity == SeverityDegradedVisibility {
			sourceDiscoveryDegraded = true
		}
	}

	if ctx.Err() != nil {
		return PassResult{Outcome: DispatchFailure, Warnings: warnings}
	}

	groups, groupWarnings := BuildTitleGroups(discovery.SourceVolumePaths, discovery.OverrideVolumePaths, w.ListDirs, w.ExcludedSources, w.Equivalence, w.OverrideCanonical)
	for _, gw := range groupWarnings {
		warnings = append(warnings, gw.Message)
	}

	plans := make([]BranchPlan, 0, len(groups))
	desired := make([]DesiredMount, 0, len(groups))
	groupByMountPoint := make(map[string]TitleGroup)
	for _, group := range groups {
		plan, err := w.Planner.Plan(group)
		if err != nil {
			warnings = append(warnings, "branch planning failed for "+group.CanonicalTitle+": "+err.Error())
			buildDegraded = true
			continue
		}
		plans = append(plans, plan)
		desired = append(desired, DesiredMount{
			GroupKey:       plan.GroupKey,
			CanonicalTitle: group.CanonicalTitle,
			MountPoint:     plan.MountPoint,
			BranchDir:      plan.BranchDir,
		})
		groupByMountPoint[plan.MountPoint] = group
	}

	if ctx.Err() != nil {
		return PassResult{Outcome: DispatchFailure, Warnings: warnings}
	}

	preSnapshot, err := w.SnapshotService.Capture(ctx)
	if err != nil {
		return PassResult{Outcome: DispatchFailure, Warnings: append(warnings, "pre-apply snapshot failed: "+err.Error())}
	}
	snapshotDegraded := preSnapshot.degraded()

	forceRemount := w.resolveForceRemount(req, desired)

	actions := Reconcile(ReconciliationInput{
		DesiredMounts:           desired,
		ActualSnapshot:          preSnapshot,
		ManagedMountRoots:       w.ManagedMountRoots,
		EnableHealthChecks:      w.EnableHealthChecks,
		ForceRemountMountPoints: forceRemount,
	})

	suppressStale := sourceDiscoveryDegraded || snapshotDegraded || buildDegraded

	desiredByMountPoint := make(map[string]DesiredMount, len(desired))
	for _, d := range desired {
		desiredByMountPoint[d.MountPoint] = d
	}

	applyResult := ApplyActions(ctx, actions, desiredByMountPoint, w.MountService, ApplyOptions{
		SuppressStaleUnmount:   suppressStale,
		HighPriority:           w.CleanupApplyHighPriority,
		MaxConsecutiveFailures: w.MaxConsecutiveFailures,
		ReadinessTimeout:       w.ReadinessProbeTimeout,
	})
	warnings = append(warnings, applyResult.Warnings...)

	var attemptedMountPoints []string
	for _, a := range actions {
		if a.Kind == ActionMount || a.Kind == ActionRemount {
			attemptedMountPoints = append(attemptedMountPoints, a.MountPoint)
		}
	}
	postSnapshot, err := w.SnapshotService.Capture(ctx)
	postSnapshotDegraded := err != nil || postSnapshot.degraded()
	snapshotValid := true
	if err == nil {
		snapshotValid, _ = ValidatePostApplySnapshot(attemptedMountPoints, postSnapshot)
	}

	if w.Metadata != nil {
		for _, group := range groups {
			if ctx.Err() != nil {
				break
			}
			if err := w.Metadata.EnsureMetadata(ctx, group); err != nil {
				warnings = append(warnings, "metadata ensure failed for "+group.CanonicalTitle+": "+err.Error())
			}
		}
	}

	activeGroupKeys := make(map[string]bool, len(plans))
	for _, plan := range plans {
		if err := StageBranchLinks(w.BranchFS, plan); err != nil {
			warnings = append(warnings, "stage branch links failed for "+plan.GroupKey+": "+err.Error())
		}
		activeGroupKeys[plan.GroupKey] = true
	}

	mountedBranchDirs := make(map[string]bool)
	for _, entry := range postSnapshot.Entries {
		mountedBranchDirs[entry.Source] = true
	}
	pruneReliable := !snapshotDegraded && !postSnapshotDegraded
	for _, root := range w.ManagedMountRoots {
		if _, err := PruneBranchDirs(w.BranchFS, filepath.Join(root, "..", "branches"), activeGroupKeys, mountedBranchDirs, pruneReliable); err != nil {
			warnings = append(warnings, "prune branch dirs failed: "+err.Error())
		}
	}

	outcome := DispatchSuccess
	if applyResult.FailFast || !snapshotValid || sourceDiscoveryDegraded || buildDegraded {
		outcome = DispatchFailure
	}

	if w.Logger != nil {
		w.Logger.Normal("merge.workflow.pass_complete", fmt.Sprintf("reason=%s outcome=%d warnings=%d", req.Reason, outcome, len(warnings)))
	}

	return PassResult{Outcome: outcome, Warnings: warnings}
}

// resolveForceRemount turns a dispatch reason of the form
// "override-force:<title>" into the canonical mountpoint it refers to,
// if present among this pass's desired mounts. It never falls back to
// forcing every mountpoint.
func (w *Workflow) resolveForceRemount(req Request, desired []DesiredMount) []string {
	const prefix = "override-force:"
	if !strings.HasPrefix(req.Reason, prefix) {
		return nil
	}
	title := strings.TrimPrefix(req.Reason, prefix)
	for _, d := range desired {
		if d.CanonicalTitle == title {
			return []string{d.MountPoint}
		}
	}
	return nil
}
