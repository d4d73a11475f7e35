package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconcileMountsMissingDesired(t *testing.T) {
	actions := Reconcile(ReconciliationInput{
		DesiredMounts: []DesiredMount{{MountPoint: "/ssm/merged/A"}},
	})
	require.Len(t, actions, 1)
	require.Equal(t, ActionMount, actions[0].Kind)
}

func TestReconcileUnmountsStaleUnderManagedRoot(t *testing.T) {
	actions := Reconcile(ReconciliationInput{
		ActualSnapshot:    MountSnapshot{Entries: []MountSnapshotEntry{{MountPoint: "/ssm/merged/Stale", FSType: "fuse.mergerfs"}}},
		ManagedMountRoots: []string{"/ssm/merged"},
	})
	require.Len(t, actions, 1)
	require.Equal(t, ActionUnmount, actions[0].Kind)
	require.Equal(t, UnmountReasonStaleMount, actions[0].Reason)
}

func TestReconcileForceRemountNeverFallsBackToAll(t *testing.T) {
	actions := Reconcile(ReconciliationInput{
		DesiredMounts: []DesiredMount{
			{MountPoint: "/ssm/merged/A"},
			{MountPoint: "/ssm/merged/B"},
		},
		ActualSnapshot: MountSnapshot{Entries: []MountSnapshotEntry{
			{MountPoint: "/ssm/merged/A", FSType: "fuse.mergerfs"},
			{MountPoint: "/ssm/merged/B", FSType: "fuse.mergerfs"},
		}},
		ForceRemountMountPoints: []string{"/ssm/merged/A"},
	})
	require.Len(t, actions, 1)
	require.Equal(t, ActionRemount, actions[0].Kind)
	require.Equal(t, "/ssm/merged/A", actions[0].MountPoint)
}

type fakeMountService struct {
	mountErr   error
	unmountErr error
	ready      bool
}

func (f *fakeMountService) Mount(ctx context.Context, desired DesiredMount, highPriority bool) error {
	return f.mountErr
}
func (f *fakeMountService) Remount(ctx context.Context, desired DesiredMount, highPriority bool) error {
	return f.mountErr
}
func (f *fakeMountService) Unmount(ctx context.Context, mountPoint string) error { return f.unmountErr }
func (f *fakeMountService) ProbeReadiness(ctx context.Context, mountPoint string, timeout time.Duration) ReadinessProbeResult {
	return ReadinessProbeResult{Ready: f.ready}
}

func TestApplyActionsFailFastStopsAfterThreshold(t *testing.T) {
	svc := &fakeMountService{mountErr: errors.New("boom")}
	actions := []ReconciliationAction{
		{Kind: ActionMount, MountPoint: "/ssm/merged/A"},
		{Kind: ActionMount, MountPoint: "/ssm/merged/B"},
		{Kind: ActionMount, MountPoint: "/ssm/merged/C"},
	}
	desired := map[string]DesiredMount{
		"/ssm/merged/A": {MountPoint: "/ssm/merged/A"},
		"/ssm/merged/B": {MountPoint: "/ssm/merged/B"},
		"/ssm/merged/C": {MountPoint: "/ssm/merged/C"},
	}

	result := ApplyActions(context.Background(), actions, desired, svc, ApplyOptions{MaxConsecutiveFailures: 2})
	require.True(t, result.FailFast)
	require.Equal(t, 2, result.Applied)
}

func TestApplyActionsSuppressesStaleUnmountUnderDegradation(t *testing.T) {
	svc := &fakeMountService{ready: true}
	actions := []ReconciliationAction{
		{Kind: ActionUnmount, MountPoint: "/ssm/merged/Stale", Reason: UnmountReasonStaleMount},
	}
	result := ApplyActions(context.Background(), actions, map[string]DesiredMount{}, svc, ApplyOptions{SuppressStaleUnmount: true})
	require.Equal(t, 0, result.Applied)
	require.NotEmpty(t, result.Warnings)
}

func TestValidatePostApplySnapshotDowngradesOnMissingMount(t *testing.T) {
	ok, failed := ValidatePostApplySnapshot([]string{"/ssm/merged/A"}, MountSnapshot{})
	require.False(t, ok)
	require.Equal(t, []string{"/ssm/merged/A"}, failed)
}
