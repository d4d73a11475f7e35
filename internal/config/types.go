// Package config owns the four canonical YAML documents ssmergerd reads
// from its config root, their validation rules, atomic writers, legacy
// migration, and the bootstrap orchestrator that ties all of it
// together at daemon startup.
package config

import "time"

// RuntimeProfile selects which shutdown-field validation profile
// applies: StrictRuntime requires the profile-gated shutdown fields;
// RelaxedTooling permits their absence (but still validates any present
// value).
type RuntimeProfile int

const (
	StrictRuntime RuntimeProfile = iota
	RelaxedTooling
)

// DetailsDescriptionMode is runtime.details_description_mode.
type DetailsDescriptionMode string

const (
	DetailsModeText DetailsDescriptionMode = "text"
	DetailsModeBR   DetailsDescriptionMode = "br"
	DetailsModeHTML DetailsDescriptionMode = "html"
)

// WatchStartupMode is scan.watch_startup_mode.
type WatchStartupMode string

const (
	WatchStartupFull        WatchStartupMode = "full"
	WatchStartupProgressive WatchStartupMode = "progressive"
)

// SettingsDocument is settings.yml.
type SettingsDocument struct {
	Paths       PathsSection       `yaml:"paths"`
	Scan        ScanSection        `yaml:"scan"`
	Rename      RenameSection      `yaml:"rename"`
	Diagnostics DiagnosticsSection `yaml:"diagnostics"`
	Shutdown    ShutdownSection    `yaml:"shutdown"`
	Permissions PermissionsSection `yaml:"permissions"`
	Runtime     RuntimeSection     `yaml:"runtime"`
	Logging     LoggingSection     `yaml:"logging"`
}

// PathsSection holds every absolute root path the daemon operates on.
type PathsSection struct {
	SourcesRoot    string `yaml:"sources_root"`
	OverrideRoot   string `yaml:"override_root"`
	MergedRoot     string `yaml:"merged_root"`
	ConfigRoot     string `yaml:"config_root"`
	StateRoot      string `yaml:"state_root"`
	LogRoot        string `yaml:"log_root"`
	BranchDirRoot  string `yaml:"branch_dir_root"`
}

type ScanSection struct {
	PollIntervalSeconds     int              `yaml:"poll_interval_seconds"`
	WatcherPollTimeout      time.Duration    `yaml:"watcher_poll_timeout"`
	SessionRestartDelay     time.Duration    `yaml:"session_restart_delay"`
	ExcludedSources         []string         `yaml:"excluded_sources"`
	WatchStartupMode        WatchStartupMode `yaml:"watch_startup_mode,omitempty"`
	MaxDeepSessionsPerStart int              `yaml:"max_deep_sessions_per_start"`
}

type RenameSection struct {
	RenameDelaySeconds  int `yaml:"rename_delay_seconds"`
	RenameQuietSeconds  int `yaml:"rename_quiet_seconds"`
	RenameRescanSeconds int `yaml:"rename_rescan_seconds"`
}

type DiagnosticsSection struct {
	MaxConsecutiveMountFailures int           `yaml:"max_consecutive_mount_failures"`
	ReadinessProbeTimeout       time.Duration `yaml:"readiness_probe_timeout"`
	CommandTimeout              time.Duration `yaml:"command_timeout"`
	MountCommandTimeout         time.Duration `yaml:"mount_command_timeout"`
}

type ShutdownSection struct {
	StopTimeout                  time.Duration `yaml:"stop_timeout"`
	CleanupApplyHighPriority     bool          `yaml:"cleanup_apply_high_priority"`
	CleanupPriorityIONiceClass   *int          `yaml:"cleanup_priority_ionice_class,omitempty"`
	CleanupPriorityNiceValue     *int          `yaml:"cleanup_priority_nice_value,omitempty"`
}

type PermissionsSection struct {
	PUID int `yaml:"puid"`
	PGID int `yaml:"pgid"`
}

type RuntimeSection struct {
	ComickMetadataCooldown      time.Duration           `yaml:"comick_metadata_cooldown"`
	DirectRetryInterval         time.Duration           `yaml:"direct_retry_interval"`
	RequestTimeout              time.Duration           `yaml:"request_timeout"`
	ChallengeBypassProxyURI     string                  `yaml:"challenge_bypass_proxy_uri,omitempty"`
	DetailsDescriptionMode      DetailsDescriptionMode  `yaml:"details_description_mode"`
	PreferredLanguage           string                  `yaml:"preferred_language"`
}

type LoggingSection struct {
	Level          string `yaml:"level"`
	FileName       string `yaml:"file_name"`
	MaxSizeMB      int    `yaml:"max_size_mb"`
	MaxBackups     int    `yaml:"max_backups"`
	CompressOldest bool   `yaml:"compress_oldest"`
}

// MangaEquivalentsDocument is manga_equivalents.yml.
type MangaEquivalentsDocument struct {
	Groups []EquivalenceGroup `yaml:"groups"`
}

type EquivalenceGroup struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// SceneTagsDocument is scene_tags.yml: a non-empty set of tag tokens.
type SceneTagsDocument struct {
	Tags []string `yaml:"tags"`
}

// SourcePriorityDocument is source_priority.yml: an ordered source list.
type SourcePriorityDocument struct {
	Sources []string `yaml:"sources"`
}

// ConfigurationPathSet resolves the canonical and legacy file paths
// under one config root.
type ConfigurationPathSet struct {
	ConfigRoot           string
	SettingsYAML         string
	MangaEquivalentsYAML string
	SceneTagsYAML        string
	SourcePriorityYAML   string
	MangaEquivalentsTXT  string
	SourcePriorityTXT    string
}

// ResolvePathSet derives every canonical/legacy path from configRoot.
func ResolvePathSet(configRoot string) ConfigurationPathSet {
	join := func(name string) string { return configRoot + "/" + name }
	return ConfigurationPathSet{
		ConfigRoot:           configRoot,
		SettingsYAML:         join("settings.yml"),
		MangaEquivalentsYAML: join("manga_equivalents.yml"),
		SceneTagsYAML:        join("scene_tags.yml"),
		SourcePriorityYAML:   join("source_priority.yml"),
		MangaEquivalentsTXT:  join("manga_equivalents.txt"),
		SourcePriorityTXT:    join("source_priority.txt"),
	}
}

// DocumentBundle is the fully parsed, validated set of canonical
// documents returned by Bootstrap.
type DocumentBundle struct {
	Settings          SettingsDocument
	MangaEquivalents  MangaEquivalentsDocument
	SceneTags         SceneTagsDocument
	SourcePriority    SourcePriorityDocument
}
