package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cjmanca/ssmergerd/internal/logging"
	"github.com/cjmanca/ssmergerd/internal/merge"
	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// Coordinator implements merge.MetadataEnsurer (spec.md §4.11):
// per-title cooldown gating, the challenge-aware search, candidate
// matching, and cover/details artifact ensure, wired into the merge
// workflow so it runs once per group after each pass's mounts are
// applied.
type Coordinator struct {
	Gateway  SearchGateway
	Matcher  CandidateMatcher
	Cooldown *CooldownStore
	Cover    CoverService
	Details  DetailsService
	Catalog  EquivalenceCatalogUpdater // optional; nil disables catalog update
	Logger   *logging.Logger

	CooldownTTL       time.Duration
	SceneTags         *normalize.SceneTagMatcher
	PreferredLanguage string

	Now func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// EnsureMetadata implements merge.MetadataEnsurer.
func (c *Coordinator) EnsureMetadata(ctx context.Context, group merge.TitleGroup) error {
	overrideDirs := branchPaths(group.OverrideBranches)
	if len(overrideDirs) == 0 {
		return nil
	}

	coverMissing := dirsMissing(overrideDirs, "cover.jpg")
	detailsMissing := dirsMissing(overrideDirs, "details.json")
	if len(coverMissing) == 0 && len(detailsMissing) == 0 {
		return nil
	}

	key := normalize.NormalizeTitleKey(group.CanonicalTitle, c.SceneTags)

	var payload *SearchPayload
	now := c.now()

	notBefore, err := c.Cooldown.NotBefore(key)
	if err != nil && c.Logger != nil {
		c.Logger.Warning("metadata.cooldown.read_failed", "cooldown lookup failed, proceeding without gating", logging.F("key", key), logging.F("error", err.Error()))
	}

	if notBefore.After(now) {
		if c.Logger != nil {
			c.Logger.Debug("metadata.cooldown.skip", "title is within cooldown window, skipping API", logging.F("key", key), logging.F("not_before", notBefore.Format(time.RFC3339)))
		}
	} else {
		result := c.Gateway.Search(ctx, group.CanonicalTitle)
		switch {
		case result.Outcome == GatewayCancelled && result.Cancelled:
			return ctx.Err()
		case isTransientInterruption(result):
			if c.Logger != nil {
				c.Logger.Warning("metadata.gateway.service_interruption", "search gateway call was interrupted", logging.F("key", key))
			}
		case result.Outcome == GatewaySuccess && result.Payload != nil:
			match := c.Matcher.Match(ctx, group.CanonicalTitle, []SearchPayload{*result.Payload})
			switch match.Outcome {
			case MatchMatched:
				payload = match.Payload
			case MatchHadServiceInterruption:
				if c.Logger != nil {
					c.Logger.Warning("metadata.matcher.service_interruption", "candidate matcher reported interruption", logging.F("key", key))
				}
			}
		}

		if setErr := c.Cooldown.SetCooldown(key, now.Add(c.CooldownTTL)); setErr != nil && c.Logger != nil {
			c.Logger.Warning("metadata.cooldown.write_failed", "failed to persist cooldown", logging.F("key", key), logging.F("error", setErr.Error()))
		}
	}

	if len(coverMissing) > 0 && payload != nil && len(payload.MDCovers) > 0 {
		if err := c.Cover.EnsureCover(ctx, coverMissing, payload.MDCovers[0].B2Key); err != nil && c.Logger != nil {
			c.Logger.Warning("metadata.cover.ensure_failed", "cover ensure failed", logging.F("title", group.CanonicalTitle), logging.F("error", err.Error()))
		}
	}

	if len(detailsMissing) > 0 {
		req := EnsureRequest{DisplayTitle: group.CanonicalTitle, OverrideDirs: overrideDirs}
		req.SourceDetailsJSON, req.SourceComicInfoXML = readSourceFallback(branchPaths(group.SourceBranches))
		if err := c.Details.EnsureDetails(ctx, detailsMissing, req, payload); err != nil && c.Logger != nil {
			c.Logger.Warning("metadata.details.ensure_failed", "details ensure failed", logging.F("title", group.CanonicalTitle), logging.F("error", err.Error()))
		}
	}

	if payload != nil && c.Catalog != nil {
		if err := c.Catalog.UpdateFromPayload(group.CanonicalTitle, *payload); err != nil && c.Logger != nil {
			c.Logger.Warning("metadata.catalog.update_failed", "best-effort equivalence catalog update failed", logging.F("title", group.CanonicalTitle), logging.F("error", err.Error()))
		}
	}

	return nil
}

func isTransientInterruption(r SearchResult) bool {
	if r.Outcome == GatewayHTTPFailure {
		return true
	}
	if r.Outcome == GatewayCancelled && !r.Cancelled {
		return true
	}
	return false
}

func branchPaths(branches []merge.SourceBranch) []string {
	paths := make([]string, 0, len(branches))
	for _, b := range branches {
		paths = append(paths, b.Path)
	}
	return paths
}

func dirsMissing(dirs []string, filename string) []string {
	var missing []string
	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, filename)); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, dir)
		}
	}
	return missing
}

// readSourceFallback returns the first details.json found across
// sourceDirs or, when no branch has one, the first ComicInfo.xml, for
// use when no API payload was matched.
func readSourceFallback(sourceDirs []string) (detailsJSON, comicInfoXML []byte) {
	for _, dir := range sourceDirs {
		if data, err := os.ReadFile(filepath.Join(dir, "details.json")); err == nil {
			detailsJSON = data
			break
		}
	}
	if detailsJSON != nil {
		return detailsJSON, nil
	}
	for _, dir := range sourceDirs {
		if data, err := os.ReadFile(filepath.Join(dir, "ComicInfo.xml")); err == nil {
			comicInfoXML = data
			break
		}
	}
	return nil, comicInfoXML
}
