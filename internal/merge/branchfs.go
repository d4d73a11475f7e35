package merge

import (
	"os"
	"path/filepath"
)

// BranchFileSystem is the filesystem collaborator used to stage and
// prune branch-link directories.
type BranchFileSystem interface {
	EnsureDir(path string) error
	Symlink(target, linkPath string) error
	RemoveAll(path string) error
	ListDirs(path string) ([]string, error)
}

type osBranchFileSystem struct{}

// DefaultBranchFileSystem is the production BranchFileSystem.
func DefaultBranchFileSystem() BranchFileSystem { return osBranchFileSystem{} }

func (osBranchFileSystem) EnsureDir(path string) error { return os.MkdirAll(path, 0o755) }

func (osBranchFileSystem) Symlink(target, linkPath string) error {
	_ = os.Remove(linkPath)
	return os.Symlink(target, linkPath)
}

func (osBranchFileSystem) RemoveAll(path string) error { return os.RemoveAll(path) }

func (osBranchFileSystem) ListDirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(path, e.Name()))
		}
	}
	return dirs, nil
}

// StageBranchLinks materializes every link in plan.Links under
// plan.BranchDir.
func StageBranchLinks(fs BranchFileSystem, plan BranchPlan) error {
	if err := fs.EnsureDir(plan.BranchDir); err != nil {
		return err
	}
	for _, link := range plan.Links {
		if err := fs.Symlink(link.TargetPath, filepath.Join(plan.BranchDir, link.Name)); err != nil {
			return err
		}
	}
	return nil
}

// PruneBranchDirs removes any branch directory under branchDirRoot that
// is neither in activeGroupKeys nor resolvable from a still-mounted
// mountpoint's branch-directory mapping (mounted). Pruning is skipped
// entirely when reliable is false (degraded pre/post snapshot).
func PruneBranchDirs(fs BranchFileSystem, branchDirRoot string, activeGroupKeys map[string]bool, mountedBranchDirs map[string]bool, reliable bool) ([]string, error) {
	if !reliable {
		return nil, nil
	}
	dirs, err := fs.ListDirs(branchDirRoot)
	if err != nil {
		return nil, err
	}
	var pruned []string
	for _, dir := range dirs {
		key := filepath.Base(dir)
		if activeGroupKeys[key] || mountedBranchDirs[dir] {
			continue
		}
		if err := fs.RemoveAll(dir); err != nil {
			return pruned, err
		}
		pruned = append(pruned, dir)
	}
	return pruned, nil
}
