package metadata

import "context"

// SearchGateway is the challenge-aware HTTP front end to the Comick
// search/detail API (spec.md §4.11 "HTTP gateway with sticky
// fallback").
type SearchGateway interface {
	Search(ctx context.Context, displayTitle string) SearchResult
	Detail(ctx context.Context, hid string) SearchResult
}

// CandidateMatcher picks the best search payload for a display title,
// or reports that the search itself suffered a transient interruption.
type CandidateMatcher interface {
	Match(ctx context.Context, displayTitle string, candidates []SearchPayload) MatchResult
}

// CoverService ensures cover.jpg exists across a title's override
// directories, downloading it from the matched payload's b2key when one
// is available.
type CoverService interface {
	EnsureCover(ctx context.Context, overrideDirs []string, b2Key string) error
}

// DetailsService ensures details.json exists across a title's override
// directories, preferring the matched detail payload and falling back
// to a source branch's own details.json/ComicInfo.xml.
type DetailsService interface {
	EnsureDetails(ctx context.Context, overrideDirs []string, req EnsureRequest, payload *SearchPayload) error
}

// EquivalenceCatalogUpdater best-effort folds a matched payload's main
// and alternate titles into manga_equivalents.yml under a two-phase
// commit (read -> plan -> validate -> atomic rewrite).
type EquivalenceCatalogUpdater interface {
	UpdateFromPayload(canonicalTitle string, payload SearchPayload) error
}
