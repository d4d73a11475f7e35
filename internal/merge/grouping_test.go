package merge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEquivalence struct {
	byRaw map[string]string
}

func (f fakeEquivalence) CanonicalFor(rawTitle string) (string, bool) {
	c, ok := f.byRaw[rawTitle]
	return c, ok
}

func listDirsFromMap(m map[string][]string) func(string) ([]string, error) {
	return func(root string) ([]string, error) {
		var out []string
		for _, name := range m[root] {
			out = append(out, filepath.Join(root, name))
		}
		return out, nil
	}
}

func TestBuildTitleGroupsDedupesAcrossSourcesByEquivalence(t *testing.T) {
	sourceA := "/ssm/sources/SourceA"
	sourceB := "/ssm/sources/SourceB"
	listDirs := listDirsFromMap(map[string][]string{
		sourceA: {"Manga Alpha"},
		sourceB: {"Manga Alpha Scanlation"},
	})
	equivalence := fakeEquivalence{byRaw: map[string]string{
		"Manga Alpha":             "Manga Alpha",
		"Manga Alpha Scanlation": "Manga Alpha",
	}}

	groups, warnings := BuildTitleGroups([]string{sourceA, sourceB}, nil, listDirs, map[string]bool{}, equivalence, nil)
	require.Empty(t, warnings)
	require.Len(t, groups, 1)
	require.Equal(t, "Manga Alpha", groups[0].CanonicalTitle)
	require.Len(t, groups[0].SourceBranches, 2)
}

func TestBuildTitleGroupsSkipsExcludedSource(t *testing.T) {
	sourceA := "/ssm/sources/Excluded"
	listDirs := listDirsFromMap(map[string][]string{sourceA: {"Manga Alpha"}})

	groups, _ := BuildTitleGroups([]string{sourceA}, nil, listDirs, map[string]bool{"excluded": true}, nil, nil)
	require.Empty(t, groups)
}

func TestBuildTitleGroupsOverrideOnlyEmptyKeyWarns(t *testing.T) {
	overrideRoot := "/ssm/override"
	listDirs := listDirsFromMap(map[string][]string{overrideRoot: {"---"}})

	groups, warnings := BuildTitleGroups(nil, []string{overrideRoot}, listDirs, map[string]bool{}, nil, nil)
	require.Empty(t, groups)
	require.NotEmpty(t, warnings)
}

func TestBuildTitleGroupsOrderedByCanonicalTitle(t *testing.T) {
	sourceA := "/ssm/sources/SourceA"
	listDirs := listDirsFromMap(map[string][]string{sourceA: {"Zebra", "Alpha"}})

	groups, _ := BuildTitleGroups([]string{sourceA}, nil, listDirs, map[string]bool{}, nil, nil)
	require.Len(t, groups, 2)
	require.Equal(t, "Alpha", groups[0].CanonicalTitle)
	require.Equal(t, "Zebra", groups[1].CanonicalTitle)
}
