package merge

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// FilesystemVolumeDiscoverer enumerates the per-source volumes under
// sources_root (each an immediate subdirectory, one per source disk)
// and the configured override volumes (spec.md §4.9 step 1). Listing
// failures on the sources root itself are reported as
// SeverityDegradedVisibility so the workflow can suppress stale-unmount
// actions for the rest of that pass.
type FilesystemVolumeDiscoverer struct {
	SourcesRoot     string
	OverrideVolumes []string
}

// Discover implements VolumeDiscoverer.
func (d FilesystemVolumeDiscoverer) Discover(ctx context.Context) (VolumeDiscoveryResult, error) {
	var result VolumeDiscoveryResult

	entries, err := os.ReadDir(d.SourcesRoot)
	if err != nil {
		result.Warnings = append(result.Warnings, Warning{
			Message:  "list sources root failed: " + err.Error(),
			Severity: SeverityDegradedVisibility,
			Target:   d.SourcesRoot,
		})
	} else {
		for _, e := range entries {
			if e.IsDir() {
				result.SourceVolumePaths = append(result.SourceVolumePaths, filepath.Join(d.SourcesRoot, e.Name()))
			}
		}
	}

	// Override volume roots are typically few, but each is a syscall
	// against possibly-remote storage; validate them concurrently
	// rather than serially, the way the teacher's now-folded-in
	// internal/sync helpers fanned out independent filesystem checks.
	// Results are collected into a fixed-size, index-addressed slice so
	// branch-link ordering downstream stays deterministic regardless of
	// goroutine completion order.
	type checked struct {
		ok      bool
		warning *Warning
	}
	outcomes := make([]checked, len(d.OverrideVolumes))
	g, _ := errgroup.WithContext(ctx)
	for i, ov := range d.OverrideVolumes {
		i, ov := i, ov
		g.Go(func() error {
			if _, statErr := os.Stat(ov); statErr != nil {
				outcomes[i] = checked{warning: &Warning{
					Message:  "override volume unavailable: " + statErr.Error(),
					Severity: SeverityDegradedVisibility,
					Target:   ov,
				}}
				return nil
			}
			outcomes[i] = checked{ok: true}
			return nil
		})
	}
	_ = g.Wait()

	for i, ov := range d.OverrideVolumes {
		switch {
		case outcomes[i].ok:
			result.OverrideVolumePaths = append(result.OverrideVolumePaths, ov)
		case outcomes[i].warning != nil:
			result.Warnings = append(result.Warnings, *outcomes[i].warning)
		}
	}

	return result, nil
}

// ListImmediateDirs is the merge.Workflow/BuildTitleGroups DirLister
// collaborator backed by the real filesystem.
func ListImmediateDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}
