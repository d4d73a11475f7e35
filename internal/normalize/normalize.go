// Package normalize implements the pure title and token normalization
// primitives that every equivalence decision in ssmergerd is built on:
// grouping titles across sources, matching scene tags, and deduplicating
// scene-tag/source-priority documents all reduce to these two functions.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var leadingArticles = map[string]bool{
	"a":   true,
	"an":  true,
	"the": true,
}

// asciiFold collapses a string to its ASCII-folded form: Unicode NFD
// decomposition with combining marks dropped, re-composed to NFC. This
// mirrors the teacher's preference for stdlib-adjacent text handling
// while using golang.org/x/text for the decomposition itself.
func asciiFold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// isPunct reports whether r should be treated as a word separator during
// normalization: anything that is not a letter or digit.
func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// splitWords folds, lowercases, and splits raw on any non-alphanumeric
// rune, dropping empty segments.
func splitWords(raw string) []string {
	folded := strings.ToLower(asciiFold(raw))
	return strings.FieldsFunc(folded, isPunct)
}

// trimTrailingS trims a single trailing "s" from a word when the word is
// longer than one character. This is a cheap, intentionally naive plural
// fold: it is not a real stemmer, it exists only so "Chapters" and
// "Chapter" collapse to the same key.
func trimTrailingS(word string) string {
	if len(word) > 1 && strings.HasSuffix(word, "s") {
		return word[:len(word)-1]
	}
	return word
}

// NormalizeTokenKey applies the shared folding pipeline but preserves
// word boundaries with single spaces, and performs no article drop and
// no plural trim. It is used for scene-tag, source-name, and alias
// dedup keys where word identity (not title equivalence) is what
// matters.
func NormalizeTokenKey(raw string) string {
	words := splitWords(raw)
	return strings.Join(words, " ")
}

// NormalizeTitleKey reduces raw to the key used for cross-source title
// equivalence grouping. When matcher is non-nil, any scene-tag suffix
// detected in raw is stripped before the rest of the pipeline runs.
//
// Pipeline: strip scene-tag suffix (if matched) -> ASCII fold -> lowercase
// -> punctuation to word boundary -> drop a single leading article ->
// trim one trailing "s" per word (when len>1) -> concatenate without
// spaces.
//
// The empty string is a valid result; callers must treat it as "title
// not resolvable" rather than a match against other empty keys.
func NormalizeTitleKey(raw string, matcher *SceneTagMatcher) string {
	if matcher != nil {
		raw = matcher.StripSuffix(raw)
	}

	words := splitWords(raw)
	if len(words) > 0 && leadingArticles[words[0]] {
		words = words[1:]
	}

	var b strings.Builder
	for _, w := range words {
		b.WriteString(trimTrailingS(w))
	}
	return b.String()
}
