package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemVolumeDiscovererFindsSourceAndOverrideVolumes(t *testing.T) {
	root := t.TempDir()
	sourcesRoot := filepath.Join(root, "sources")
	overrideRoot := filepath.Join(root, "override")
	require.NoError(t, os.MkdirAll(filepath.Join(sourcesRoot, "SourceA"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(sourcesRoot, "SourceB"), 0o755))
	require.NoError(t, os.MkdirAll(overrideRoot, 0o755))

	d := FilesystemVolumeDiscoverer{SourcesRoot: sourcesRoot, OverrideVolumes: []string{overrideRoot}}
	result, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, result.SourceVolumePaths, 2)
	require.Equal(t, []string{overrideRoot}, result.OverrideVolumePaths)
	require.Empty(t, result.Warnings)
}

func TestFilesystemVolumeDiscovererWarnsOnMissingOverride(t *testing.T) {
	root := t.TempDir()
	sourcesRoot := filepath.Join(root, "sources")
	require.NoError(t, os.MkdirAll(sourcesRoot, 0o755))
	missing := filepath.Join(root, "does-not-exist")

	d := FilesystemVolumeDiscoverer{SourcesRoot: sourcesRoot, OverrideVolumes: []string{missing}}
	result, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.OverrideVolumePaths)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, SeverityDegradedVisibility, result.Warnings[0].Severity)
}

func TestFilesystemVolumeDiscovererPreservesOverrideOrder(t *testing.T) {
	root := t.TempDir()
	sourcesRoot := filepath.Join(root, "sources")
	require.NoError(t, os.MkdirAll(sourcesRoot, 0o755))

	var overrides []string
	for i := 0; i < 8; i++ {
		ov := filepath.Join(root, "override", string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(ov, 0o755))
		overrides = append(overrides, ov)
	}

	d := FilesystemVolumeDiscoverer{SourcesRoot: sourcesRoot, OverrideVolumes: overrides}
	result, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, overrides, result.OverrideVolumePaths)
}

func TestFilesystemVolumeDiscovererWarnsOnUnreadableSourcesRoot(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "missing-sources")

	d := FilesystemVolumeDiscoverer{SourcesRoot: missing}
	result, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.SourceVolumePaths)
	require.Len(t, result.Warnings, 1)
}

func TestListImmediateDirsSkipsFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("x"), 0o644))

	dirs, err := ListImmediateDirs(root)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "a")}, dirs)
}
