package merge

import (
	"github.com/cjmanca/ssmergerd/internal/config"
	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// CatalogEquivalenceResolver resolves a raw source title to its
// canonical title via manga_equivalents.yml (spec.md §4.9 step 3):
// every alias key normalizes to one group, and the group's canonical
// text wins.
type CatalogEquivalenceResolver struct {
	canonicalByAliasKey map[string]string
	matcher             *normalize.SceneTagMatcher
}

// NewCatalogEquivalenceResolver indexes doc's groups by normalized
// alias key (including the canonical itself, so a raw title spelled
// exactly like the canonical also resolves). The same matcher is kept
// for lookups in CanonicalFor, since a raw title needs its scene tags
// stripped the same way the index keys were built or a tagged title
// never matches its own group.
func NewCatalogEquivalenceResolver(doc config.MangaEquivalentsDocument, matcher *normalize.SceneTagMatcher) *CatalogEquivalenceResolver {
	index := make(map[string]string)
	for _, group := range doc.Groups {
		canonicalKey := normalize.NormalizeTitleKey(group.Canonical, matcher)
		if canonicalKey != "" {
			index[canonicalKey] = group.Canonical
		}
		for _, alias := range group.Aliases {
			key := normalize.NormalizeTitleKey(alias, matcher)
			if key != "" {
				index[key] = group.Canonical
			}
		}
	}
	return &CatalogEquivalenceResolver{canonicalByAliasKey: index, matcher: matcher}
}

// CanonicalFor implements EquivalenceResolver.
func (r *CatalogEquivalenceResolver) CanonicalFor(rawTitle string) (string, bool) {
	canonical, ok := r.canonicalByAliasKey[normalize.NormalizeTitleKey(rawTitle, r.matcher)]
	return canonical, ok
}

// NoopOverrideCanonicalResolver never resolves an override directory
// name to a different canonical, leaving BuildTitleGroups to fall back
// to the trimmed raw directory name (spec.md §4.9 step 3 default path).
type NoopOverrideCanonicalResolver struct{}

// ResolveCanonical implements OverrideCanonicalResolver.
func (NoopOverrideCanonicalResolver) ResolveCanonical(overrideDirName string) (string, bool) {
	return "", false
}
