package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CleanupFileSystem is the filesystem collaborator OnWorkerStarting
// uses for residual-directory cleanup.
type CleanupFileSystem interface {
	ReadDir(path string) ([]os.DirEntry, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
	MkdirAll(path string) error
}

type osCleanupFileSystem struct{}

// DefaultCleanupFileSystem is the production CleanupFileSystem.
func DefaultCleanupFileSystem() CleanupFileSystem { return osCleanupFileSystem{} }

func (osCleanupFileSystem) ReadDir(path string) ([]os.DirEntry, error) { return os.ReadDir(path) }
func (osCleanupFileSystem) Remove(path string) error                  { return os.Remove(path) }
func (osCleanupFileSystem) Rename(oldPath, newPath string) error      { return os.Rename(oldPath, newPath) }
func (osCleanupFileSystem) MkdirAll(path string) error                { return os.MkdirAll(path, 0o755) }

// OnWorkerStarting runs the startup cleanup pass (spec.md §4.10): it
// unconditionally unmounts every managed mergerfs mountpoint observed
// at startup, then removes empty merged-root directories and relocates
// non-empty residuals, then prunes stale branch-directory trees.
func OnWorkerStarting(
	ctx context.Context,
	snapshotSvc MountSnapshotService,
	mountSvc MountCommandService,
	fs CleanupFileSystem,
	branchFS BranchFileSystem,
	mergedRoot, branchDirRoot, configRoot string,
	managedMountRoots []string,
) ([]string, error) {
	var warnings []string

	pre, err := snapshotSvc.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("startup cleanup: pre-snapshot failed: %w", err)
	}

	for _, entry := range pre.Entries {
		if entry.FSType != "fuse.mergerfs" || !underManagedRoot(entry.MountPoint, managedMountRoots) {
			continue
		}
		if err := mountSvc.Unmount(ctx, entry.MountPoint); err != nil {
			warnings = append(warnings, "startup cleanup: unmount failed for "+entry.MountPoint+": "+err.Error())
		}
	}

	post, err := snapshotSvc.Capture(ctx)
	if err != nil {
		return warnings, fmt.Errorf("startup cleanup: post-snapshot failed: %w", err)
	}

	stillActive := false
	for _, entry := range post.Entries {
		if entry.FSType == "fuse.mergerfs" && underManagedRoot(entry.MountPoint, managedMountRoots) {
			stillActive = true
			break
		}
	}

	if !stillActive && !post.degraded() {
		residualWarnings := cleanResidualDirs(fs, mergedRoot, configRoot)
		warnings = append(warnings, residualWarnings...)
	}

	mountedBranchDirs := make(map[string]bool)
	for _, entry := range post.Entries {
		mountedBranchDirs[entry.Source] = true
	}
	pruned, err := PruneBranchDirs(branchFS, branchDirRoot, map[string]bool{}, mountedBranchDirs, !post.degraded())
	if err != nil {
		warnings = append(warnings, "startup cleanup: prune branch dirs failed: "+err.Error())
	}
	_ = pruned

	return warnings, nil
}

func underManagedRoot(mountPoint string, roots []string) bool {
	for _, root := range roots {
		if strings.HasPrefix(mountPoint, root) {
			return true
		}
	}
	return false
}

func cleanResidualDirs(fs CleanupFileSystem, mergedRoot, configRoot string) []string {
	var warnings []string
	entries, err := fs.ReadDir(mergedRoot)
	if err != nil {
		return warnings
	}

	residualRoot := filepath.Join(configRoot, "cleanup", "merged-residual")

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(mergedRoot, e.Name())
		children, err := fs.ReadDir(path)
		if err != nil {
			continue
		}
		if len(children) == 0 {
			if err := fs.Remove(path); err != nil {
				warnings = append(warnings, "startup cleanup: remove empty dir failed for "+path+": "+err.Error())
			}
			continue
		}

		if err := fs.MkdirAll(residualRoot); err != nil {
			warnings = append(warnings, "startup cleanup: prepare residual root failed: "+err.Error())
			continue
		}
		destination := filepath.Join(residualRoot, fmt.Sprintf("%s-%s", e.Name(), uuid.NewString()))
		if err := fs.Rename(path, destination); err != nil {
			warnings = append(warnings, "startup cleanup: relocate residual dir failed for "+path+": "+err.Error())
			continue
		}
		warnings = append(warnings, "startup cleanup: relocated non-empty residual directory "+path+" to "+destination)
	}
	return warnings
}
