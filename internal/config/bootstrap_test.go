package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBootstrapFreshRootWritesDefaults(t *testing.T) {
	root := t.TempDir()

	bundle, err := Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, nil)
	require.NoError(t, err)
	require.NotNil(t, bundle)

	for _, name := range []string{"settings.yml", "manga_equivalents.yml", "scene_tags.yml", "source_priority.yml"} {
		require.FileExists(t, filepath.Join(root, name))
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	root := t.TempDir()

	_, err := Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, nil)
	require.NoError(t, err)

	settingsPath := filepath.Join(root, "settings.yml")
	before, err := readFile(t, settingsPath)
	require.NoError(t, err)

	var warnings []string
	bundle2, err := Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, func(file, msg string) {
		warnings = append(warnings, file+":"+msg)
	})
	require.NoError(t, err)
	require.NotNil(t, bundle2)
	require.Empty(t, warnings, "second bootstrap should perform no migrations or self-heal")

	after, err := readFile(t, settingsPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestBootstrapMigratesLegacyTxt(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "manga_equivalents.txt"), "Manga One = Alias A, Alias B\n# comment\nbadline\nManga Two =\n")
	writeFile(t, filepath.Join(root, "source_priority.txt"), "SourceA\nSourceB\n")

	var warnings []string
	bundle, err := Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, func(file, msg string) {
		warnings = append(warnings, file+":"+msg)
	})
	require.NoError(t, err)
	require.Len(t, bundle.MangaEquivalents.Groups, 2)
	require.Equal(t, "Manga One", bundle.MangaEquivalents.Groups[0].Canonical)
	require.Equal(t, []string{"SourceA", "SourceB"}, bundle.SourcePriority.Sources)
	require.NotEmpty(t, warnings)
}

func TestBootstrapAggregatesValidationErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "settings.yml"), "paths:\n  sources_root: relative/path\n")

	_, err := Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, nil)
	require.Error(t, err)

	var bootErr *BootstrapException
	require.ErrorAs(t, err, &bootErr)
	require.NotEmpty(t, bootErr.Errors)
}

func TestCrossDocumentSceneTagValidation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "scene_tags.yml"), "tags:\n  - official\n")
	writeFile(t, filepath.Join(root, "manga_equivalents.yml"), "groups:\n  - canonical: \"Manga [Official]\"\n    aliases: []\n  - canonical: \"Manga\"\n    aliases: []\n")

	_, err := Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, nil)
	require.Error(t, err)
	var bootErr *BootstrapException
	require.ErrorAs(t, err, &bootErr)

	found := false
	for _, e := range bootErr.Errors {
		if e.Code == "CFG-MEQ-004" {
			found = true
		}
	}
	require.True(t, found, "expected CFG-MEQ-004 duplicate-canonical error, got %+v", bootErr.Errors)

	// Replacing the scene-tag bracket with a different, unrelated tag
	// should no longer collide.
	writeFile(t, filepath.Join(root, "manga_equivalents.yml"), "groups:\n  - canonical: \"Manga [Scanlation]\"\n    aliases: []\n  - canonical: \"Manga\"\n    aliases: []\n")
	_, err = Bootstrap(root, BootstrapOptions{Profile: RelaxedTooling}, nil)
	require.NoError(t, err)
}

func readFile(t *testing.T, path string) (string, error) {
	t.Helper()
	data, err := os.ReadFile(path)
	return string(data), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
