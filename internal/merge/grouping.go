package merge

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// rawTitleSource describes one source/title or override-only directory
// discovered on disk before grouping.
type rawTitleSource struct {
	rawTitle   string
	sourceName string // empty for an override-only entry
	path       string
	isOverride bool
}

// BuildTitleGroups assembles TitleGroup values from discovered source
// and override volumes (spec.md §4.9 step 3). excludedSources holds
// normalized token keys; entries whose source name normalizes into
// that set are skipped entirely.
func BuildTitleGroups(
	sourceVolumes, overrideVolumes []string,
	listDirs func(root string) ([]string, error),
	excludedSources map[string]bool,
	equivalence EquivalenceResolver,
	overrideCanonical OverrideCanonicalResolver,
) ([]TitleGroup, []Warning) {
	var raws []rawTitleSource
	var warnings []Warning

	for _, sourceVolume := range sourceVolumes {
		sourceName := filepath.Base(sourceVolume)
		if excludedSources[normalize.NormalizeTokenKey(sourceName)] {
			continue
		}
		titleDirs, err := listDirs(sourceVolume)
		if err != nil {
			warnings = append(warnings, Warning{Message: "list source volume failed: " + sourceVolume, Target: sourceVolume})
			continue
		}
		for _, titleDir := range titleDirs {
			raws = append(raws, rawTitleSource{
				rawTitle:   filepath.Base(titleDir),
				sourceName: sourceName,
				path:       titleDir,
			})
		}
	}

	for _, overrideVolume := range overrideVolumes {
		titleDirs, err := listDirs(overrideVolume)
		if err != nil {
			warnings = append(warnings, Warning{Message: "list override volume failed: " + overrideVolume, Target: overrideVolume})
			continue
		}
		for _, titleDir := range titleDirs {
			name := filepath.Base(titleDir)
			if normalize.NormalizeTitleKey(name, nil) == "" {
				warnings = append(warnings, Warning{Message: "override directory normalizes to empty title key: " + titleDir})
				continue
			}
			raws = append(raws, rawTitleSource{rawTitle: name, path: titleDir, isOverride: true})
		}
	}

	groups := make(map[string]*TitleGroup)
	var order []string

	for _, r := range raws {
		canonical := resolveCanonical(r, equivalence, overrideCanonical)
		groupKey := normalize.NormalizeTitleKey(canonical, nil)
		if groupKey == "" {
			groupKey = normalize.NormalizeTitleKey(r.rawTitle, nil)
		}
		if groupKey == "" {
			groupKey = "h_" + hashTitle(r.rawTitle)
		}

		g, ok := groups[groupKey]
		if !ok {
			g = &TitleGroup{CanonicalTitle: canonical, GroupKey: groupKey, OverrideOnly: r.isOverride}
			groups[groupKey] = g
			order = append(order, groupKey)
		} else if !r.isOverride {
			g.OverrideOnly = false
		}

		if r.isOverride {
			if containsBranchPath(g.OverrideBranches, r.path) {
				continue
			}
			g.OverrideBranches = append(g.OverrideBranches, SourceBranch{Path: r.path, SourceName: "override"})
			continue
		}
		if containsBranchPath(g.SourceBranches, r.path) {
			continue
		}
		g.SourceBranches = append(g.SourceBranches, SourceBranch{Path: r.path, SourceName: r.sourceName})
	}

	result := make([]TitleGroup, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CanonicalTitle != result[j].CanonicalTitle {
			return result[i].CanonicalTitle < result[j].CanonicalTitle
		}
		return result[i].GroupKey < result[j].GroupKey
	})
	return result, warnings
}

func resolveCanonical(r rawTitleSource, equivalence EquivalenceResolver, overrideCanonical OverrideCanonicalResolver) string {
	if r.isOverride {
		if overrideCanonical != nil {
			if canonical, ok := overrideCanonical.ResolveCanonical(r.rawTitle); ok {
				return canonical
			}
		}
		return strings.TrimSpace(r.rawTitle)
	}
	if equivalence != nil {
		if canonical, ok := equivalence.CanonicalFor(r.rawTitle); ok {
			return canonical
		}
	}
	return strings.TrimSpace(r.rawTitle)
}

func containsBranchPath(branches []SourceBranch, path string) bool {
	for _, b := range branches {
		if filepath.Clean(b.Path) == filepath.Clean(path) {
			return true
		}
	}
	return false
}

func hashTitle(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:12]
}
