// Package merge implements the mergerfs-style union-mount reconciliation
// workflow (spec.md §4.9/§4.10/§4.12): discovering source and override
// volumes, grouping titles by normalized equivalence, planning branch
// links, reconciling desired mounts against a live snapshot, and
// applying the resulting actions through an external mount command.
package merge

import "time"

// Severity classifies a discovery/snapshot warning.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityDegradedVisibility
)

// Warning is one diagnostic surfaced by a collaborator.
type Warning struct {
	Message  string
	Severity Severity
	Target   string // e.g. the sources root, for source-discovery degradation detection
}

// VolumeDiscoveryResult is what the volume-discovery collaborator returns.
type VolumeDiscoveryResult struct {
	SourceVolumePaths   []string
	OverrideVolumePaths []string
	Warnings            []Warning
}

// SourceBranch is one source-side directory contributing to a title group.
type SourceBranch struct {
	Path       string
	SourceName string
}

// TitleGroup is one canonical-title equivalence class assembled from
// source and override volumes.
type TitleGroup struct {
	CanonicalTitle   string
	GroupKey         string
	SourceBranches   []SourceBranch
	OverrideBranches []SourceBranch
	OverrideOnly     bool
}

// BranchLink is one named entry staged under a group's branch
// directory, consumed by the union filesystem as a source branch.
type BranchLink struct {
	Name       string
	TargetPath string
}

// BranchPlan is the result of planning one title group's branch links.
type BranchPlan struct {
	GroupKey   string
	MountPoint string
	BranchDir  string
	Links      []BranchLink
}

// DesiredMount is one entry in the reconciliation's desired-state input.
type DesiredMount struct {
	GroupKey       string
	CanonicalTitle string
	MountPoint     string
	BranchDir      string
}

// MountSnapshotEntry is one observed live mount.
type MountSnapshotEntry struct {
	MountPoint string
	FSType     string
	Source     string
}

// MountSnapshot is one point-in-time capture of the live mount table.
type MountSnapshot struct {
	Entries  []MountSnapshotEntry
	Warnings []Warning
}

func (s MountSnapshot) degraded() bool {
	for _, w := range s.Warnings {
		if w.Severity == SeverityDegradedVisibility {
			return true
		}
	}
	return false
}

// ActionKind enumerates the apply-phase action types.
type ActionKind int

const (
	ActionMount ActionKind = iota
	ActionRemount
	ActionUnmount
)

// UnmountReason classifies why an unmount action was planned.
type UnmountReason int

const (
	UnmountReasonNone UnmountReason = iota
	UnmountReasonStaleMount
	UnmountReasonForceRemount
)

// ReconciliationAction is one planned apply-phase step.
type ReconciliationAction struct {
	Kind       ActionKind
	MountPoint string
	BranchDir  string
	Reason     UnmountReason
}

// ReconciliationInput is the full input to Reconcile.
type ReconciliationInput struct {
	DesiredMounts           []DesiredMount
	ActualSnapshot          MountSnapshot
	ManagedMountRoots       []string
	EnableHealthChecks      bool
	ForceRemountMountPoints []string
}

// DispatchOutcome is the result of one merge pass.
type DispatchOutcome int

const (
	DispatchSuccess DispatchOutcome = iota
	DispatchFailure
	DispatchNoPendingRequest
)

// PassResult carries the outcome plus diagnostics for one merge pass.
type PassResult struct {
	Outcome  DispatchOutcome
	Warnings []string
}

// ReadinessProbeResult is the outcome of probing a freshly mounted
// mergerfs mountpoint for availability.
type ReadinessProbeResult struct {
	Ready   bool
	Elapsed time.Duration
}
