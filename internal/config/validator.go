package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cjmanca/ssmergerd/internal/normalize"
)

// ValidationError is one deterministic, stable-code validation failure.
// Validation is additive: a validator keeps going after recording one,
// so a single Validate call can return many.
type ValidationError struct {
	File    string
	Path    string
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s:%s:%s %s", e.File, e.Path, e.Code, e.Message)
}

// collector accumulates ValidationErrors in insertion order.
type collector struct {
	file   string
	errors []ValidationError
}

func (c *collector) add(path, code, message string) {
	c.errors = append(c.errors, ValidationError{File: c.file, Path: path, Code: code, Message: message})
}

func (c *collector) requireAbsolute(path, field, code, value string) {
	if value == "" {
		c.add(field, code, "missing required field")
		return
	}
	if !filepath.IsAbs(value) {
		c.add(field, code, fmt.Sprintf("path %q must be absolute", value))
	}
}

func (c *collector) requirePositive(field, code string, value int) {
	if value <= 0 {
		c.add(field, code, fmt.Sprintf("must be positive, got %d", value))
	}
}

func (c *collector) requireNonNegative(field, code string, value int) {
	if value < 0 {
		c.add(field, code, fmt.Sprintf("must be non-negative, got %d", value))
	}
}

func (c *collector) requireRange(field, code string, value, lo, hi int) {
	if value < lo || value > hi {
		c.add(field, code, fmt.Sprintf("must be within [%d,%d], got %d", lo, hi, value))
	}
}

// ValidateSettings checks SettingsDocument per spec.md §3/§4.3. profile
// selects whether profile-gated shutdown fields are required.
func ValidateSettings(doc SettingsDocument, profile RuntimeProfile) []ValidationError {
	c := &collector{file: "settings.yml"}

	c.requireAbsolute("paths.sources_root", "paths.sources_root", "CFG-SET-002", doc.Paths.SourcesRoot)
	c.requireAbsolute("paths.override_root", "paths.override_root", "CFG-SET-002", doc.Paths.OverrideRoot)
	c.requireAbsolute("paths.merged_root", "paths.merged_root", "CFG-SET-002", doc.Paths.MergedRoot)
	c.requireAbsolute("paths.config_root", "paths.config_root", "CFG-SET-002", doc.Paths.ConfigRoot)
	c.requireAbsolute("paths.state_root", "paths.state_root", "CFG-SET-002", doc.Paths.StateRoot)
	c.requireAbsolute("paths.log_root", "paths.log_root", "CFG-SET-002", doc.Paths.LogRoot)
	c.requireAbsolute("paths.branch_dir_root", "paths.branch_dir_root", "CFG-SET-002", doc.Paths.BranchDirRoot)

	if doc.Paths.ConfigRoot != "" && doc.Paths.MergedRoot != "" && pathsOverlap(doc.Paths.ConfigRoot, doc.Paths.MergedRoot) {
		c.add("paths", "CFG-SET-008", "config_root and merged_root must not overlap")
	}

	c.requirePositive("scan.poll_interval_seconds", "CFG-SET-004", doc.Scan.PollIntervalSeconds)
	if doc.Scan.WatcherPollTimeout <= 0 {
		c.add("scan.watcher_poll_timeout", "CFG-SET-004", "must be a strictly positive duration")
	}
	if doc.Scan.SessionRestartDelay <= 0 {
		c.add("scan.session_restart_delay", "CFG-SET-004", "must be a strictly positive duration")
	}
	c.requirePositive("scan.max_deep_sessions_per_start", "CFG-SET-004", doc.Scan.MaxDeepSessionsPerStart)
	if doc.Scan.WatchStartupMode != "" && doc.Scan.WatchStartupMode != WatchStartupFull && doc.Scan.WatchStartupMode != WatchStartupProgressive {
		c.add("scan.watch_startup_mode", "CFG-SET-004", fmt.Sprintf("must be one of full,progressive; got %q", doc.Scan.WatchStartupMode))
	}

	c.requirePositive("rename.rename_delay_seconds", "CFG-SET-004", doc.Rename.RenameDelaySeconds)
	c.requirePositive("rename.rename_quiet_seconds", "CFG-SET-004", doc.Rename.RenameQuietSeconds)
	c.requirePositive("rename.rename_rescan_seconds", "CFG-SET-004", doc.Rename.RenameRescanSeconds)

	c.requirePositive("diagnostics.max_consecutive_mount_failures", "CFG-SET-004", doc.Diagnostics.MaxConsecutiveMountFailures)
	if doc.Diagnostics.ReadinessProbeTimeout <= 0 {
		c.add("diagnostics.readiness_probe_timeout", "CFG-SET-004", "must be a strictly positive duration")
	}
	if doc.Diagnostics.CommandTimeout <= 0 {
		c.add("diagnostics.command_timeout", "CFG-SET-004", "must be a strictly positive duration")
	}
	if doc.Diagnostics.MountCommandTimeout <= 0 {
		c.add("diagnostics.mount_command_timeout", "CFG-SET-004", "must be a strictly positive duration")
	}

	if doc.Shutdown.StopTimeout <= 0 {
		c.add("shutdown.stop_timeout", "CFG-SET-004", "must be a strictly positive duration")
	}
	validateShutdownProfile(c, doc.Shutdown, profile)

	c.requireNonNegative("permissions.puid", "CFG-SET-006", doc.Permissions.PUID)
	c.requireNonNegative("permissions.pgid", "CFG-SET-006", doc.Permissions.PGID)

	if doc.Runtime.ComickMetadataCooldown <= 0 {
		c.add("runtime.comick_metadata_cooldown", "CFG-SET-004", "must be a strictly positive duration")
	}
	if doc.Runtime.DirectRetryInterval <= 0 {
		c.add("runtime.direct_retry_interval", "CFG-SET-004", "must be a strictly positive duration")
	}
	if doc.Runtime.RequestTimeout <= 0 {
		c.add("runtime.request_timeout", "CFG-SET-004", "must be a strictly positive duration")
	}
	switch doc.Runtime.DetailsDescriptionMode {
	case DetailsModeText, DetailsModeBR, DetailsModeHTML:
	default:
		c.add("runtime.details_description_mode", "CFG-SET-004", fmt.Sprintf("must be one of text,br,html; got %q", doc.Runtime.DetailsDescriptionMode))
	}

	if _, err := parseLogLevel(doc.Logging.Level); err != nil {
		c.add("logging.level", "CFG-SET-004", err.Error())
	}
	if doc.Logging.FileName == "" {
		c.add("logging.file_name", "CFG-SET-002", "missing required field")
	}
	c.requirePositive("logging.max_size_mb", "CFG-SET-004", doc.Logging.MaxSizeMB)
	c.requireNonNegative("logging.max_backups", "CFG-SET-004", doc.Logging.MaxBackups)

	return c.errors
}

func validateShutdownProfile(c *collector, s ShutdownSection, profile RuntimeProfile) {
	if profile == StrictRuntime {
		if s.CleanupPriorityIONiceClass == nil {
			c.add("shutdown.cleanup_priority_ionice_class", "CFG-SET-002", "required under StrictRuntime profile")
		}
		if s.CleanupPriorityNiceValue == nil {
			c.add("shutdown.cleanup_priority_nice_value", "CFG-SET-002", "required under StrictRuntime profile")
		}
	}
	if s.CleanupPriorityIONiceClass != nil {
		c.requireRange("shutdown.cleanup_priority_ionice_class", "CFG-SET-004", *s.CleanupPriorityIONiceClass, 1, 3)
	}
	if s.CleanupPriorityNiceValue != nil {
		c.requireRange("shutdown.cleanup_priority_nice_value", "CFG-SET-004", *s.CleanupPriorityNiceValue, -20, 19)
	}
}

func parseLogLevel(s string) (string, error) {
	switch s {
	case "trace", "debug", "warning", "error", "none":
		return s, nil
	default:
		return "", fmt.Errorf("logging.level must be one of trace,debug,warning,error,none; got %q", s)
	}
}

// pathsOverlap reports whether one of a, b is equal to or a parent of
// the other, using the OS path comparer (lexical, case-sensitive on
// POSIX). Both inputs are assumed cleaned absolute paths.
func pathsOverlap(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	if a == b {
		return true
	}
	return hasPathPrefix(a, b) || hasPathPrefix(b, a)
}

func hasPathPrefix(child, parent string) bool {
	if parent == "/" {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// ValidateMangaEquivalents checks distinct canonical keys and
// non-conflicting aliases. When matcher is non-nil, canonical/alias
// keys are computed through the scene-tag-aware pipeline so that
// cross-document validation (spec.md §4.3 step 3) can detect a
// canonical whose only distinguishing feature is a scene tag.
func ValidateMangaEquivalents(doc MangaEquivalentsDocument, matcher *normalize.SceneTagMatcher) []ValidationError {
	c := &collector{file: "manga_equivalents.yml"}

	canonicalKeys := make(map[string]string) // key -> first canonical text
	aliasOwner := make(map[string]string)     // alias key -> canonical text

	for i, g := range doc.Groups {
		path := fmt.Sprintf("groups[%d]", i)
		if strings.TrimSpace(g.Canonical) == "" {
			c.add(path+".canonical", "CFG-MEQ-002", "canonical must be non-empty")
			continue
		}
		key := normalize.NormalizeTitleKey(g.Canonical, matcher)
		if prior, exists := canonicalKeys[key]; exists {
			c.add(path+".canonical", "CFG-MEQ-004", fmt.Sprintf("canonical %q duplicates %q under normalized key %q", g.Canonical, prior, key))
		} else {
			canonicalKeys[key] = g.Canonical
		}

		for j, alias := range g.Aliases {
			aliasPath := fmt.Sprintf("%s.aliases[%d]", path, j)
			if strings.TrimSpace(alias) == "" {
				c.add(aliasPath, "CFG-MEQ-003", "alias must be non-empty")
				continue
			}
			aliasKey := normalize.NormalizeTitleKey(alias, matcher)
			if owner, exists := aliasOwner[aliasKey]; exists && owner != g.Canonical {
				c.add(aliasPath, "CFG-MEQ-005", fmt.Sprintf("alias %q maps to both %q and %q", alias, owner, g.Canonical))
				continue
			}
			aliasOwner[aliasKey] = g.Canonical
		}
	}

	return c.errors
}

// ValidateSceneTags checks for duplicate tags under matcher-equivalent
// normalization (tokens fold through NormalizeTokenKey; punctuation-only
// tags are compared verbatim, matching the matcher's own distinction).
func ValidateSceneTags(doc SceneTagsDocument) []ValidationError {
	c := &collector{file: "scene_tags.yml"}

	if len(doc.Tags) == 0 {
		c.add("tags", "CFG-STG-002", "scene_tags.yml must contain at least one tag")
		return c.errors
	}

	seen := make(map[string]string)
	for i, tag := range doc.Tags {
		path := fmt.Sprintf("tags[%d]", i)
		if strings.TrimSpace(tag) == "" {
			c.add(path, "CFG-STG-004", "tag must be non-empty")
			continue
		}
		key := normalize.NormalizeTokenKey(tag)
		if key == "" {
			key = "verbatim:" + tag
		}
		if prior, exists := seen[key]; exists {
			c.add(path, "CFG-STG-003", fmt.Sprintf("tag %q duplicates %q", tag, prior))
			continue
		}
		seen[key] = tag
	}

	return c.errors
}

// ValidateSourcePriority checks source name uniqueness under token
// normalization.
func ValidateSourcePriority(doc SourcePriorityDocument) []ValidationError {
	c := &collector{file: "source_priority.yml"}

	seen := make(map[string]string)
	for i, source := range doc.Sources {
		path := fmt.Sprintf("sources[%d]", i)
		if strings.TrimSpace(source) == "" {
			c.add(path, "CFG-SRC-002", "source name must be non-empty")
			continue
		}
		key := normalize.NormalizeTokenKey(source)
		if prior, exists := seen[key]; exists {
			c.add(path, "CFG-SRC-003", fmt.Sprintf("source %q duplicates %q", source, prior))
			continue
		}
		seen[key] = source
	}

	return c.errors
}
