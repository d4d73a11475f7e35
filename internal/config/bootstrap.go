package config

import (
	"fmt"
	"os"

	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// BootstrapException is raised when bootstrap's aggregated validation
// pass is non-empty. It carries the complete deterministic error list
// (spec.md §4.3 step 3, §7).
type BootstrapException struct {
	Errors []ValidationError
}

func (e *BootstrapException) Error() string {
	return fmt.Sprintf("configuration bootstrap failed with %d error(s)", len(e.Errors))
}

// BootstrapOptions controls the runtime profile used for settings
// validation and self-heal behavior.
type BootstrapOptions struct {
	Profile RuntimeProfile
}

// Bootstrap ensures every canonical document exists under configRoot
// (migrating a legacy sibling or writing defaults as needed), parses
// all four, aggregates validation errors across them, and performs the
// cross-document manga-equivalents re-validation described in spec.md
// §4.3 step 3. It returns the fully parsed DocumentBundle on success or
// a *BootstrapException on any validation failure.
//
// Bootstrap is idempotent: running it twice against an already-healthy
// config root performs no migrations and rewrites nothing (spec.md §8).
func Bootstrap(configRoot string, opts BootstrapOptions, onWarning func(file, message string)) (*DocumentBundle, error) {
	if onWarning == nil {
		onWarning = func(string, string) {}
	}

	paths := ResolvePathSet(configRoot)
	if err := os.MkdirAll(paths.ConfigRoot, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config root %s: %w", paths.ConfigRoot, err)
	}

	settings, err := ensureSettings(paths, onWarning)
	if err != nil {
		return nil, err
	}
	mangaEquivalents, err := ensureMangaEquivalents(paths, onWarning)
	if err != nil {
		return nil, err
	}
	sceneTags, err := ensureSceneTags(paths)
	if err != nil {
		return nil, err
	}
	sourcePriority, err := ensureSourcePriority(paths, onWarning)
	if err != nil {
		return nil, err
	}

	var allErrors []ValidationError
	allErrors = append(allErrors, ValidateSettings(settings, opts.Profile)...)
	sceneTagErrors := ValidateSceneTags(sceneTags)
	allErrors = append(allErrors, sceneTagErrors...)
	allErrors = append(allErrors, ValidateSourcePriority(sourcePriority)...)

	// The manga-equivalents document is validated once under plain
	// token-level normalization always, and a second time under the
	// scene-tag-aware matcher only when scene_tags.yml itself is valid
	// (spec.md §4.3 step 3: "only when the scene-tags document itself
	// is valid").
	allErrors = append(allErrors, ValidateMangaEquivalents(mangaEquivalents, nil)...)
	if len(sceneTagErrors) == 0 {
		matcher := normalize.NewSceneTagMatcher(sceneTags.Tags)
		allErrors = append(allErrors, dedupeAgainstPlain(
			ValidateMangaEquivalents(mangaEquivalents, matcher),
			allErrors,
		)...)
	}

	if len(allErrors) > 0 {
		return nil, &BootstrapException{Errors: allErrors}
	}

	return &DocumentBundle{
		Settings:         settings,
		MangaEquivalents: mangaEquivalents,
		SceneTags:        sceneTags,
		SourcePriority:   sourcePriority,
	}, nil
}

// dedupeAgainstPlain drops any cross-document-pass error that is an
// exact duplicate (same file/path/code/message) of one already recorded
// by the plain pass, so a canonical that fails under both pipelines
// isn't reported twice.
func dedupeAgainstPlain(fresh, existing []ValidationError) []ValidationError {
	seen := make(map[ValidationError]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	var out []ValidationError
	for _, e := range fresh {
		if !seen[e] {
			out = append(out, e)
		}
	}
	return out
}

func ensureSettings(paths ConfigurationPathSet, onWarning func(file, message string)) (SettingsDocument, error) {
	var doc SettingsDocument
	existed, err := readYAML(paths.SettingsYAML, &doc)
	if err != nil {
		return doc, err
	}
	if !existed {
		doc = DefaultSettings(paths.ConfigRoot)
		if err := WriteSettings(paths.SettingsYAML, doc); err != nil {
			return doc, err
		}
		return doc, nil
	}

	if SelfHealSettings(&doc, paths.ConfigRoot) {
		onWarning("settings.yml", "self-healed missing fields with defaults")
		if err := WriteSettings(paths.SettingsYAML, doc); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

func ensureMangaEquivalents(paths ConfigurationPathSet, onWarning func(file, message string)) (MangaEquivalentsDocument, error) {
	var doc MangaEquivalentsDocument
	existed, err := readYAML(paths.MangaEquivalentsYAML, &doc)
	if err != nil {
		return doc, err
	}
	if existed {
		return doc, nil
	}

	if _, statErr := os.Stat(paths.MangaEquivalentsTXT); statErr == nil {
		migrated, warnings, migErr := migrateMangaEquivalentsTXT(paths.MangaEquivalentsTXT)
		if migErr != nil {
			return doc, fmt.Errorf("migrate manga_equivalents.txt: %w", migErr)
		}
		for _, w := range warnings {
			onWarning(w.File, w.Message)
		}
		doc = migrated
		onWarning("manga_equivalents.yml", "migrated from legacy manga_equivalents.txt")
	} else {
		doc = DefaultMangaEquivalents()
	}

	if err := WriteMangaEquivalents(paths.MangaEquivalentsYAML, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func ensureSceneTags(paths ConfigurationPathSet) (SceneTagsDocument, error) {
	var doc SceneTagsDocument
	existed, err := readYAML(paths.SceneTagsYAML, &doc)
	if err != nil {
		return doc, err
	}
	if existed {
		return doc, nil
	}
	doc = DefaultSceneTags()
	if err := WriteSceneTags(paths.SceneTagsYAML, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func ensureSourcePriority(paths ConfigurationPathSet, onWarning func(file, message string)) (SourcePriorityDocument, error) {
	var doc SourcePriorityDocument
	existed, err := readYAML(paths.SourcePriorityYAML, &doc)
	if err != nil {
		return doc, err
	}
	if existed {
		return doc, nil
	}

	if _, statErr := os.Stat(paths.SourcePriorityTXT); statErr == nil {
		migrated, warnings, migErr := migrateSourcePriorityTXT(paths.SourcePriorityTXT)
		if migErr != nil {
			return doc, fmt.Errorf("migrate source_priority.txt: %w", migErr)
		}
		for _, w := range warnings {
			onWarning(w.File, w.Message)
		}
		doc = migrated
		onWarning("source_priority.yml", "migrated from legacy source_priority.txt")
	} else {
		doc = DefaultSourcePriority()
	}

	if err := WriteSourcePriority(paths.SourcePriorityYAML, doc); err != nil {
		return doc, err
	}
	return doc, nil
}
