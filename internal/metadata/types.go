// Package metadata implements the per-title metadata coordinator
// (spec.md §4.11): cooldown-gated cover/details artifact ensure, a
// sticky-fallback HTTP gateway in front of the Comick search API, a
// strict candidate matcher, and a strict-then-tolerant ComicInfo.xml
// parser.
package metadata

import "time"

// GatewayOutcome classifies one search-gateway call.
type GatewayOutcome int

const (
	GatewaySuccess GatewayOutcome = iota
	GatewayHTTPFailure
	GatewayCancelled
	GatewayMalformedPayload
)

// SearchResult is the raw result of one gateway search call.
type SearchResult struct {
	Outcome     GatewayOutcome
	Payload     *SearchPayload
	Cancelled   bool // true iff caller's context was actually cancelled, vs a transient interruption
}

// SearchPayload is one Comick search API item, after strict validation.
type SearchPayload struct {
	HID       string
	Slug      string
	Title     string
	MDTitles  []TitleEntry
	MDCovers  []CoverEntry
}

// TitleEntry is one md_titles[] entry.
type TitleEntry struct {
	Title string
	Lang  string
}

// CoverEntry is one md_covers[] entry.
type CoverEntry struct {
	B2Key string
}

// DetailPayload is the Comick detail API response, after strict
// validation.
type DetailPayload struct {
	Comic SearchPayload
}

// MatchOutcome classifies one candidate-matcher decision.
type MatchOutcome int

const (
	MatchNone MatchOutcome = iota
	MatchMatched
	MatchHadServiceInterruption
)

// MatchResult is the candidate matcher's decision.
type MatchResult struct {
	Outcome MatchOutcome
	Payload *SearchPayload
}

// EnsureRequest is the input to EnsureMetadata.
type EnsureRequest struct {
	DisplayTitle       string
	OverrideDirs       []string // override directories to check/ensure cover.jpg and details.json in
	SourceDetailsJSON  []byte   // fallback details.json content from a source branch, if any
	SourceComicInfoXML []byte   // fallback ComicInfo.xml content from a source branch, if any
}

// EnsureOutcome summarizes one EnsureMetadata call.
type EnsureOutcome struct {
	HadServiceInterruption bool
	CoverEnsured            bool
	DetailsEnsured          bool
	Cancelled               bool
}

// CooldownRecord is one persisted cooldown entry.
type CooldownRecord struct {
	NormalizedTitleKey string
	NotBeforeUTC       time.Time
}

// ComicInfo is the parsed result of a ComicInfo.xml document, produced
// either by the strict XML parser or the tolerant line-scanner fallback.
type ComicInfo struct {
	Series                   string
	Writer                   string
	Penciller                string
	Genre                    string
	Status                   string
	Summary                  string
	UsedTolerantFallback      bool
}
