package config

import "time"

func intPtr(v int) *int { return &v }

// DefaultSettings returns the settings.yml written on first run, mirroring
// the teacher's DefaultConfig() pattern of a single function returning a
// populated struct literal.
func DefaultSettings(configRoot string) SettingsDocument {
	return SettingsDocument{
		Paths: PathsSection{
			SourcesRoot:   "/ssm/sources",
			OverrideRoot:  "/ssm/override",
			MergedRoot:    "/ssm/merged",
			ConfigRoot:    configRoot,
			StateRoot:     "/ssm/state",
			LogRoot:       "/ssm/logs",
			BranchDirRoot: "/ssm/state/branches",
		},
		Scan: ScanSection{
			PollIntervalSeconds:     5,
			WatcherPollTimeout:      2 * time.Second,
			SessionRestartDelay:     10 * time.Second,
			ExcludedSources:         []string{},
			WatchStartupMode:        WatchStartupFull,
			MaxDeepSessionsPerStart: 4,
		},
		Rename: RenameSection{
			RenameDelaySeconds:  30,
			RenameQuietSeconds:  15,
			RenameRescanSeconds: 3600,
		},
		Diagnostics: DiagnosticsSection{
			MaxConsecutiveMountFailures: 3,
			ReadinessProbeTimeout:       10 * time.Second,
			CommandTimeout:              30 * time.Second,
			MountCommandTimeout:         30 * time.Second,
		},
		Shutdown: ShutdownSection{
			StopTimeout:                15 * time.Second,
			CleanupApplyHighPriority:   true,
			CleanupPriorityIONiceClass: intPtr(2),
			CleanupPriorityNiceValue:   intPtr(10),
		},
		Permissions: PermissionsSection{
			PUID: 1000,
			PGID: 1000,
		},
		Runtime: RuntimeSection{
			ComickMetadataCooldown: 24 * time.Hour,
			DirectRetryInterval:    30 * time.Minute,
			RequestTimeout:         15 * time.Second,
			DetailsDescriptionMode: DetailsModeText,
			PreferredLanguage:      "en",
		},
		Logging: LoggingSection{
			Level:          "warning",
			FileName:       "ssmergerd.log",
			MaxSizeMB:      50,
			MaxBackups:     5,
			CompressOldest: true,
		},
	}
}

func DefaultMangaEquivalents() MangaEquivalentsDocument {
	return MangaEquivalentsDocument{Groups: []EquivalenceGroup{}}
}

func DefaultSceneTags() SceneTagsDocument {
	return SceneTagsDocument{Tags: []string{"official", "color"}}
}

func DefaultSourcePriority() SourcePriorityDocument {
	return SourcePriorityDocument{Sources: []string{}}
}
