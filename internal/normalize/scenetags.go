package normalize

import "strings"

// SceneTagMatcher recognizes scene-tag suffixes on raw titles so they can
// be stripped before equivalence-key normalization ("Manga Title
// [Official]" and "Manga Title" should group together).
//
// Matching grammar (resolved per SPEC_FULL.md, Open Question): a tag
// matches at suffix if the title, after trimming trailing whitespace,
// ends with the tag wrapped in "(...)", "[...]", "{...}", preceded by a
// bare "-" or "- " separator, or is the last space-separated token of
// the title (or the whole title). Comparison is case/diacritic
// insensitive via the same fold used for title keys, except for
// punctuation-only tags, which are compared against the raw trailing
// bytes verbatim since folding would erase them entirely.
type SceneTagMatcher struct {
	// foldedTags maps a folded tag key to its original tag text, for
	// tags that survive folding (i.e. contain at least one letter or
	// digit).
	foldedTags map[string]string
	// verbatimTags holds tags that fold to the empty string (pure
	// punctuation, e.g. "!!"): these are matched against raw bytes.
	verbatimTags []string
}

// NewSceneTagMatcher builds a matcher from a scene-tags document's tag
// list. Tags are deduplicated under NormalizeTokenKey equivalence by the
// caller (the config validator); the matcher itself tolerates
// duplicates.
func NewSceneTagMatcher(tags []string) *SceneTagMatcher {
	m := &SceneTagMatcher{foldedTags: make(map[string]string)}
	for _, tag := range tags {
		key := NormalizeTokenKey(tag)
		if key == "" {
			m.verbatimTags = append(m.verbatimTags, tag)
			continue
		}
		m.foldedTags[key] = tag
	}
	return m
}

// StripSuffix returns raw with any matched scene-tag suffix (and its
// wrapping/separator) removed. If no tag matches, raw is returned
// unchanged.
func (m *SceneTagMatcher) StripSuffix(raw string) string {
	if m == nil {
		return raw
	}
	trimmed := strings.TrimRight(raw, " \t")

	for key, original := range m.foldedTags {
		if rest, ok := stripWrapped(trimmed, key, foldCompare); ok {
			return rest
		}
		_ = original
	}
	for _, tag := range m.verbatimTags {
		if rest, ok := stripWrapped(trimmed, tag, verbatimCompare); ok {
			return rest
		}
	}
	return raw
}

type compareFunc func(haystackSuffix, needle string) bool

func foldCompare(haystackSuffix, needle string) bool {
	return NormalizeTokenKey(haystackSuffix) == NormalizeTokenKey(needle)
}

func verbatimCompare(haystackSuffix, needle string) bool {
	return haystackSuffix == needle
}

// stripWrapped checks whether trimmed ends with needle wrapped in
// parentheses, brackets, braces, or following a dash separator, or as a
// bare trailing token, using cmp for the suffix comparison. It returns
// the title with the matched suffix (and separator) removed.
func stripWrapped(trimmed, needle string, cmp compareFunc) (string, bool) {
	wrappers := []struct{ open, close string }{
		{"(", ")"},
		{"[", "]"},
		{"{", "}"},
	}
	for _, w := range wrappers {
		if strings.HasSuffix(trimmed, w.close) {
			openIdx := strings.LastIndex(trimmed, w.open)
			if openIdx == -1 {
				continue
			}
			inner := trimmed[openIdx+len(w.open) : len(trimmed)-len(w.close)]
			if cmp(inner, needle) {
				return strings.TrimRight(trimmed[:openIdx], " \t"), true
			}
		}
	}

	for _, sep := range []string{"- ", "-"} {
		if idx := strings.LastIndex(trimmed, sep); idx >= 0 {
			inner := trimmed[idx+len(sep):]
			if cmp(inner, needle) {
				return strings.TrimRight(trimmed[:idx], " \t"), true
			}
		}
	}

	// Bare trailing token: the last space-separated word of the title
	// equals the tag outright.
	if idx := strings.LastIndexByte(trimmed, ' '); idx >= 0 {
		inner := trimmed[idx+1:]
		if cmp(inner, needle) {
			return strings.TrimRight(trimmed[:idx], " \t"), true
		}
	}

	if cmp(trimmed, needle) {
		return "", true
	}

	return trimmed, false
}
