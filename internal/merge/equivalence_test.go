package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cjmanca/ssmergerd/internal/config"
	"github.com/cjmanca/ssmergerd/internal/normalize"
)

func TestCatalogEquivalenceResolverMatchesOnCanonicalAndAlias(t *testing.T) {
	doc := config.MangaEquivalentsDocument{Groups: []config.EquivalenceGroup{
		{Canonical: "One Piece", Aliases: []string{"Wan Pisu"}},
	}}
	resolver := NewCatalogEquivalenceResolver(doc, nil)

	canonical, ok := resolver.CanonicalFor("One Piece")
	require.True(t, ok)
	require.Equal(t, "One Piece", canonical)

	canonical, ok = resolver.CanonicalFor("Wan Pisu")
	require.True(t, ok)
	require.Equal(t, "One Piece", canonical)
}

func TestCatalogEquivalenceResolverUnknownTitleMisses(t *testing.T) {
	resolver := NewCatalogEquivalenceResolver(config.MangaEquivalentsDocument{}, nil)
	_, ok := resolver.CanonicalFor("Nothing Here")
	require.False(t, ok)
}

// TestCatalogEquivalenceResolverMatchesSceneTaggedRawTitle locks in the
// fix for a mismatch where the index was built with the scene-tag
// matcher but lookups in CanonicalFor normalized with nil, so a
// scene-tagged raw title could never match its own catalog entry.
func TestCatalogEquivalenceResolverMatchesSceneTaggedRawTitle(t *testing.T) {
	matcher := normalize.NewSceneTagMatcher([]string{"somegroup"})
	doc := config.MangaEquivalentsDocument{Groups: []config.EquivalenceGroup{
		{Canonical: "One Piece"},
	}}
	resolver := NewCatalogEquivalenceResolver(doc, matcher)

	canonical, ok := resolver.CanonicalFor("One Piece [SomeGroup]")
	require.True(t, ok)
	require.Equal(t, "One Piece", canonical)
}

func TestNoopOverrideCanonicalResolverNeverResolves(t *testing.T) {
	_, ok := NoopOverrideCanonicalResolver{}.ResolveCanonical("Anything")
	require.False(t, ok)
}
