package merge

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var linkLabelSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DefaultBranchPlanner plans a group's branch directory with
// deterministic link names: the first override branch becomes
// `00_override`, further override branches become
// `01_override_<label>_NNN`, and source branches become
// `10_source_<label>_NNN` in group-insertion order. The numeric prefix
// ordering ensures the union filesystem's highest-priority branch
// (override data) always wins on file collisions.
type DefaultBranchPlanner struct {
	MergedRoot    string
	BranchDirRoot string
}

func (p DefaultBranchPlanner) Plan(group TitleGroup) (BranchPlan, error) {
	if group.GroupKey == "" {
		return BranchPlan{}, fmt.Errorf("merge: group %q has no group key", group.CanonicalTitle)
	}

	mountPoint := filepath.Join(p.MergedRoot, pathSafeSegment(group.CanonicalTitle))
	branchDir := filepath.Join(p.BranchDirRoot, group.GroupKey)

	var links []BranchLink
	labelCounts := make(map[string]int)

	for i, ob := range group.OverrideBranches {
		if i == 0 {
			links = append(links, BranchLink{Name: "00_override", TargetPath: ob.Path})
			continue
		}
		label := linkLabel(ob.SourceName)
		labelCounts[label]++
		links = append(links, BranchLink{
			Name:       fmt.Sprintf("01_override_%s_%03d", label, labelCounts[label]),
			TargetPath: ob.Path,
		})
	}

	for _, sb := range group.SourceBranches {
		label := linkLabel(sb.SourceName)
		labelCounts[label]++
		links = append(links, BranchLink{
			Name:       fmt.Sprintf("10_source_%s_%03d", label, labelCounts[label]),
			TargetPath: sb.Path,
		})
	}

	if len(links) == 0 {
		return BranchPlan{}, fmt.Errorf("merge: group %q has no branches to plan", group.CanonicalTitle)
	}

	return BranchPlan{
		GroupKey:   group.GroupKey,
		MountPoint: mountPoint,
		BranchDir:  branchDir,
		Links:      links,
	}, nil
}

func linkLabel(raw string) string {
	cleaned := linkLabelSanitizer.ReplaceAllString(raw, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		cleaned = "src"
	}
	return strings.ToLower(cleaned)
}

// pathSafeSegment implements this repository's decision for the
// referenced-but-undefined PathSafetyPolicy: percent-escape every byte
// outside [A-Za-z0-9._-], uppercase hex, applied per path segment.
func pathSafeSegment(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
