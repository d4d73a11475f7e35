package config

// SelfHealSettings fills in any zero-valued field of doc with its
// default counterpart, in place, and reports whether anything changed.
// Self-heal only applies to settings.yml (spec.md §4.3 step 2): the
// other three documents have no meaningful "default for a missing
// field" beyond an empty document, so they are only ever migrated or
// defaulted wholesale, never field-healed.
func SelfHealSettings(doc *SettingsDocument, configRoot string) bool {
	defaults := DefaultSettings(configRoot)
	changed := false

	if doc.Paths.SourcesRoot == "" {
		doc.Paths.SourcesRoot = defaults.Paths.SourcesRoot
		changed = true
	}
	if doc.Paths.OverrideRoot == "" {
		doc.Paths.OverrideRoot = defaults.Paths.OverrideRoot
		changed = true
	}
	if doc.Paths.MergedRoot == "" {
		doc.Paths.MergedRoot = defaults.Paths.MergedRoot
		changed = true
	}
	if doc.Paths.ConfigRoot == "" {
		doc.Paths.ConfigRoot = configRoot
		changed = true
	}
	if doc.Paths.StateRoot == "" {
		doc.Paths.StateRoot = defaults.Paths.StateRoot
		changed = true
	}
	if doc.Paths.LogRoot == "" {
		doc.Paths.LogRoot = defaults.Paths.LogRoot
		changed = true
	}
	if doc.Paths.BranchDirRoot == "" {
		doc.Paths.BranchDirRoot = defaults.Paths.BranchDirRoot
		changed = true
	}

	if doc.Scan.PollIntervalSeconds == 0 {
		doc.Scan.PollIntervalSeconds = defaults.Scan.PollIntervalSeconds
		changed = true
	}
	if doc.Scan.WatcherPollTimeout == 0 {
		doc.Scan.WatcherPollTimeout = defaults.Scan.WatcherPollTimeout
		changed = true
	}
	if doc.Scan.SessionRestartDelay == 0 {
		doc.Scan.SessionRestartDelay = defaults.Scan.SessionRestartDelay
		changed = true
	}
	if doc.Scan.WatchStartupMode == "" {
		doc.Scan.WatchStartupMode = defaults.Scan.WatchStartupMode
		changed = true
	}
	if doc.Scan.MaxDeepSessionsPerStart == 0 {
		doc.Scan.MaxDeepSessionsPerStart = defaults.Scan.MaxDeepSessionsPerStart
		changed = true
	}

	if doc.Rename.RenameDelaySeconds == 0 {
		doc.Rename.RenameDelaySeconds = defaults.Rename.RenameDelaySeconds
		changed = true
	}
	if doc.Rename.RenameQuietSeconds == 0 {
		doc.Rename.RenameQuietSeconds = defaults.Rename.RenameQuietSeconds
		changed = true
	}
	if doc.Rename.RenameRescanSeconds == 0 {
		doc.Rename.RenameRescanSeconds = defaults.Rename.RenameRescanSeconds
		changed = true
	}

	if doc.Diagnostics.MaxConsecutiveMountFailures == 0 {
		doc.Diagnostics.MaxConsecutiveMountFailures = defaults.Diagnostics.MaxConsecutiveMountFailures
		changed = true
	}
	if doc.Diagnostics.ReadinessProbeTimeout == 0 {
		doc.Diagnostics.ReadinessProbeTimeout = defaults.Diagnostics.ReadinessProbeTimeout
		changed = true
	}
	if doc.Diagnostics.CommandTimeout == 0 {
		doc.Diagnostics.CommandTimeout = defaults.Diagnostics.CommandTimeout
		changed = true
	}
	if doc.Diagnostics.MountCommandTimeout == 0 {
		doc.Diagnostics.MountCommandTimeout = defaults.Diagnostics.MountCommandTimeout
		changed = true
	}

	if doc.Shutdown.StopTimeout == 0 {
		doc.Shutdown.StopTimeout = defaults.Shutdown.StopTimeout
		changed = true
	}

	if doc.Runtime.ComickMetadataCooldown == 0 {
		doc.Runtime.ComickMetadataCooldown = defaults.Runtime.ComickMetadataCooldown
		changed = true
	}
	if doc.Runtime.DirectRetryInterval == 0 {
		doc.Runtime.DirectRetryInterval = defaults.Runtime.DirectRetryInterval
		changed = true
	}
	if doc.Runtime.RequestTimeout == 0 {
		doc.Runtime.RequestTimeout = defaults.Runtime.RequestTimeout
		changed = true
	}
	if doc.Runtime.DetailsDescriptionMode == "" {
		doc.Runtime.DetailsDescriptionMode = defaults.Runtime.DetailsDescriptionMode
		changed = true
	}
	if doc.Runtime.PreferredLanguage == "" {
		doc.Runtime.PreferredLanguage = defaults.Runtime.PreferredLanguage
		changed = true
	}

	if doc.Logging.Level == "" {
		doc.Logging.Level = defaults.Logging.Level
		changed = true
	}
	if doc.Logging.FileName == "" {
		doc.Logging.FileName = defaults.Logging.FileName
		changed = true
	}
	if doc.Logging.MaxSizeMB == 0 {
		doc.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
		changed = true
	}

	return changed
}
