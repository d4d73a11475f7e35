package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cjmanca/ssmergerd/internal/config"
	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// YAMLEquivalenceCatalog best-effort folds a matched payload's main and
// alternate titles (under a preferred language) into
// manga_equivalents.yml, under the two-phase commit spec.md §4.11/§5
// requires: read current document, plan the updated group list,
// validate no new conflicts are introduced, then atomic-rewrite via
// config.WriteMangaEquivalents.
type YAMLEquivalenceCatalog struct {
	Path              string
	PreferredLanguage string
	SceneTags         *normalize.SceneTagMatcher
}

// UpdateFromPayload implements EquivalenceCatalogUpdater.
func (c *YAMLEquivalenceCatalog) UpdateFromPayload(canonicalTitle string, payload SearchPayload) error {
	doc, err := c.read()
	if err != nil {
		return fmt.Errorf("read manga equivalents catalog: %w", err)
	}

	aliases := c.collectAliases(payload)
	if len(aliases) == 0 {
		return nil
	}

	canonicalKey := normalize.NormalizeTitleKey(canonicalTitle, c.SceneTags)
	idx := -1
	for i, g := range doc.Groups {
		if normalize.NormalizeTitleKey(g.Canonical, c.SceneTags) == canonicalKey {
			idx = i
			break
		}
	}

	aliasOwner := make(map[string]int, len(doc.Groups))
	for i, g := range doc.Groups {
		for _, a := range g.Aliases {
			aliasOwner[normalize.NormalizeTitleKey(a, c.SceneTags)] = i
		}
	}

	var group config.EquivalenceGroup
	if idx >= 0 {
		group = doc.Groups[idx]
	} else {
		group = config.EquivalenceGroup{Canonical: canonicalTitle}
	}

	existing := make(map[string]bool, len(group.Aliases))
	for _, a := range group.Aliases {
		existing[normalize.NormalizeTitleKey(a, c.SceneTags)] = true
	}

	for _, alias := range aliases {
		key := normalize.NormalizeTitleKey(alias, c.SceneTags)
		if key == "" || existing[key] {
			continue
		}
		if owner, ok := aliasOwner[key]; ok && owner != idx {
			// Alias already belongs to a different canonical group:
			// skip rather than introduce a CFG-MEQ-005 conflict.
			continue
		}
		group.Aliases = append(group.Aliases, alias)
		existing[key] = true
	}

	if idx >= 0 {
		doc.Groups[idx] = group
	} else {
		doc.Groups = append(doc.Groups, group)
	}

	if errs := config.ValidateMangaEquivalents(doc, c.SceneTags); len(errs) > 0 {
		return fmt.Errorf("updated manga equivalents catalog fails validation: %s", errs[0].Error())
	}
	return config.WriteMangaEquivalents(c.Path, doc)
}

func (c *YAMLEquivalenceCatalog) collectAliases(payload SearchPayload) []string {
	var aliases []string
	for _, t := range payload.MDTitles {
		if c.PreferredLanguage != "" && t.Lang != c.PreferredLanguage {
			continue
		}
		aliases = append(aliases, t.Title)
	}
	if len(aliases) == 0 && payload.Title != "" {
		aliases = append(aliases, payload.Title)
	}
	return aliases
}

func (c *YAMLEquivalenceCatalog) read() (config.MangaEquivalentsDocument, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.MangaEquivalentsDocument{}, nil
		}
		return config.MangaEquivalentsDocument{}, err
	}
	var doc config.MangaEquivalentsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return config.MangaEquivalentsDocument{}, err
	}
	return doc, nil
}
