package metadata

import (
	"context"

	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// TitleMatcher picks, among a set of validated search candidates, the
// one whose main or alternate title normalizes to the same key as the
// display title being resolved (spec.md §4.11 "run candidate matcher").
type TitleMatcher struct {
	SceneTags *normalize.SceneTagMatcher
}

// Match implements CandidateMatcher.
func (m *TitleMatcher) Match(ctx context.Context, displayTitle string, candidates []SearchPayload) MatchResult {
	if ctx.Err() != nil {
		return MatchResult{Outcome: MatchHadServiceInterruption}
	}
	wantKey := normalize.NormalizeTitleKey(displayTitle, m.SceneTags)
	if wantKey == "" {
		return MatchResult{Outcome: MatchNone}
	}
	for i := range candidates {
		candidate := candidates[i]
		if normalize.NormalizeTitleKey(candidate.Title, m.SceneTags) == wantKey {
			return MatchResult{Outcome: MatchMatched, Payload: &candidate}
		}
		for _, alt := range candidate.MDTitles {
			if normalize.NormalizeTitleKey(alt.Title, m.SceneTags) == wantKey {
				return MatchResult{Outcome: MatchMatched, Payload: &candidate}
			}
		}
	}
	return MatchResult{Outcome: MatchNone}
}
