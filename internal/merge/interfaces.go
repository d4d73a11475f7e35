package merge

import (
	"context"
	"time"
)

// VolumeDiscoverer enumerates source and override volume roots.
type VolumeDiscoverer interface {
	Discover(ctx context.Context) (VolumeDiscoveryResult, error)
}

// BranchPlanner computes the branch-link layout for one title group.
type BranchPlanner interface {
	Plan(group TitleGroup) (BranchPlan, error)
}

// MountSnapshotService captures the live mount table, e.g. via
// `findmnt`.
type MountSnapshotService interface {
	Capture(ctx context.Context) (MountSnapshot, error)
}

// MountCommandService issues mount/unmount commands for one mountpoint.
type MountCommandService interface {
	Mount(ctx context.Context, desired DesiredMount, highPriority bool) error
	Remount(ctx context.Context, desired DesiredMount, highPriority bool) error
	Unmount(ctx context.Context, mountPoint string) error
	ProbeReadiness(ctx context.Context, mountPoint string, timeout time.Duration) ReadinessProbeResult
}

// EquivalenceResolver resolves a raw source title to its canonical
// title via the manga-equivalence catalog.
type EquivalenceResolver interface {
	CanonicalFor(rawTitle string) (string, bool)
}

// OverrideCanonicalResolver resolves an override-only directory name to
// its canonical title.
type OverrideCanonicalResolver interface {
	ResolveCanonical(overrideDirName string) (string, bool)
}

// MetadataEnsurer is the collaborator that ensures cover.jpg/details.json
// for one title group (spec.md §4.11), invoked from the merge pass after
// mounts are applied.
type MetadataEnsurer interface {
	EnsureMetadata(ctx context.Context, group TitleGroup) error
}
