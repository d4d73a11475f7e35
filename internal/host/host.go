// Package host wires every package in this module into one running
// daemon: config bootstrap, the structured logger, the watch/rename/
// merge/metadata collaborators, and the supervisor that owns their
// lifecycle (spec.md §4.1's "composition root").
package host

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/cjmanca/ssmergerd/internal/config"
	"github.com/cjmanca/ssmergerd/internal/exec"
	"github.com/cjmanca/ssmergerd/internal/logging"
	"github.com/cjmanca/ssmergerd/internal/merge"
	"github.com/cjmanca/ssmergerd/internal/metadata"
	"github.com/cjmanca/ssmergerd/internal/normalize"
	"github.com/cjmanca/ssmergerd/internal/pipeline"
	"github.com/cjmanca/ssmergerd/internal/rename"
	"github.com/cjmanca/ssmergerd/internal/supervisor"
	"github.com/cjmanca/ssmergerd/internal/watch"
)

// Comick API endpoints. settings.yml has no field for these: they are
// not operator-configurable, the way the teacher's Linear GraphQL
// endpoint is a build-time constant rather than a settings.yml field.
const (
	comickSearchURL         = "https://api.comick.fun/v1.0/search"
	comickDetailURLTemplate = "https://api.comick.fun/comic/%s"
	comickCoverCDNPrefix    = "https://meo.comick.pictures/"
)

// Options configures Build.
type Options struct {
	ConfigRoot string
	Profile    config.RuntimeProfile
}

// Daemon is the fully wired daemon, ready for Supervisor.Run.
type Daemon struct {
	Supervisor *supervisor.Supervisor
	Logger     *logging.Logger
}

// Build bootstraps configuration, constructs every collaborator, and
// returns a Daemon whose Supervisor is ready to Run. Configuration
// errors are returned directly (uncovered by the supervisor) so the
// entrypoint can format them per spec.md §6 before the logger even
// exists.
func Build(ctx context.Context, opts Options) (*Daemon, error) {
	bundle, err := config.Bootstrap(opts.ConfigRoot, config.BootstrapOptions{Profile: opts.Profile}, func(string, string) {})
	if err != nil {
		return nil, err
	}
	settings := bundle.Settings

	level, err := logging.ParseLevel(settings.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("resolve logging level: %w", err)
	}
	logger := logging.New(level, logging.RollingConfig{
		Directory:      settings.Paths.LogRoot,
		FileName:       settings.Logging.FileName,
		MaxSizeMB:      settings.Logging.MaxSizeMB,
		MaxBackups:     settings.Logging.MaxBackups,
		CompressOldest: settings.Logging.CompressOldest,
	}, func(line string) { fmt.Fprintln(os.Stderr, line) })
	logger.Normal("host.logging.configured", fmt.Sprintf("rolling log at %s, rotating past %s per file (keeping %d backups)",
		filepath.Join(settings.Paths.LogRoot, settings.Logging.FileName),
		humanize.Bytes(uint64(settings.Logging.MaxSizeMB)*1024*1024),
		settings.Logging.MaxBackups))

	warner := &logWarner{logger: logger}
	executor := exec.New()
	sceneTags := normalize.NewSceneTagMatcher(bundle.SceneTags.Tags)

	excludedSources := make(map[string]bool, len(settings.Scan.ExcludedSources))
	for _, s := range settings.Scan.ExcludedSources {
		excludedSources[normalize.NormalizeTokenKey(s)] = true
	}

	stateRoot := settings.Paths.StateRoot
	if err := os.MkdirAll(stateRoot, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state root %s: %w", stateRoot, err)
	}

	renameQueuePath := filepath.Join(stateRoot, "rename_queue.yml")
	renameProc := rename.NewProcessor(
		rename.DefaultFileSystem(),
		rename.DefaultSanitizer{},
		warner,
		settings.Paths.SourcesRoot,
		time.Duration(settings.Rename.RenameDelaySeconds)*time.Second,
		time.Duration(settings.Rename.RenameQuietSeconds)*time.Second,
		time.Duration(settings.Rename.RenameRescanSeconds)*time.Second,
	)
	if entries, err := rename.LoadQueueFile(renameQueuePath); err != nil {
		logger.Warning("host.rename_queue.load_failed", "failed to load persisted rename queue", logging.F("error", err.Error()))
	} else if len(entries) > 0 {
		renameProc.LoadQueue(entries)
	}

	var watcher pipeline.Watcher
	switch settings.Scan.WatchStartupMode {
	case config.WatchStartupProgressive:
		watcher = watch.NewPersistentReader(watch.StartupProgressive, settings.Scan.SessionRestartDelay, settings.Scan.MaxDeepSessionsPerStart)
	case config.WatchStartupFull:
		watcher = watch.NewPersistentReader(watch.StartupFull, settings.Scan.SessionRestartDelay, settings.Scan.MaxDeepSessionsPerStart)
	default:
		watcher = oneShotAdapter{ctx: ctx, reader: watch.NewOneShotReader(executor)}
	}

	equivalenceResolver := merge.NewCatalogEquivalenceResolver(bundle.MangaEquivalents, sceneTags)

	// metadataCoordinator may return nil (cooldown store failed to
	// open); assigning through a local interface variable avoids
	// storing a typed nil *metadata.Coordinator in Workflow.Metadata,
	// which would make its "!= nil" guard pass and panic on first use.
	var metadataEnsurer merge.MetadataEnsurer
	if coordinator := metadataCoordinator(settings, logger, sceneTags); coordinator != nil {
		metadataEnsurer = coordinator
	}

	workflow := &merge.Workflow{
		Logger:            logger,
		Discoverer:        merge.FilesystemVolumeDiscoverer{SourcesRoot: settings.Paths.SourcesRoot, OverrideVolumes: []string{settings.Paths.OverrideRoot}},
		ListDirs:          merge.ListImmediateDirs,
		ExcludedSources:   excludedSources,
		Equivalence:       equivalenceResolver,
		OverrideCanonical: merge.NoopOverrideCanonicalResolver{},
		Planner:           merge.DefaultBranchPlanner{MergedRoot: settings.Paths.MergedRoot, BranchDirRoot: settings.Paths.BranchDirRoot},
		SnapshotService:   &merge.ExecMountSnapshotService{Executor: executor, Timeout: settings.Diagnostics.CommandTimeout},
		MountService:      mountCommandService(executor, settings),
		BranchFS:          merge.DefaultBranchFileSystem(),
		Metadata:          metadataEnsurer,

		ManagedMountRoots:        []string{settings.Paths.MergedRoot},
		EnableHealthChecks:       true,
		CleanupApplyHighPriority: settings.Shutdown.CleanupApplyHighPriority,
		MaxConsecutiveFailures:   settings.Diagnostics.MaxConsecutiveMountFailures,
		ReadinessProbeTimeout:    settings.Diagnostics.ReadinessProbeTimeout,
	}

	coalescer := merge.NewCoalescer(workflow)

	pl := pipeline.NewPipeline(
		settings.Paths.SourcesRoot,
		excludedSources,
		watcher,
		renameProc,
		renameProc,
		coalescer,
		warner,
		merge.ListImmediateDirs,
	)

	worker := &Worker{
		Pipeline:        pl,
		Logger:          logger,
		SnapshotService: &merge.ExecMountSnapshotService{Executor: executor, Timeout: settings.Diagnostics.CommandTimeout},
		MountService:    mountCommandService(executor, settings),
		CleanupFS:       merge.DefaultCleanupFileSystem(),
		BranchFS:        merge.DefaultBranchFileSystem(),
		MergedRoot:      settings.Paths.MergedRoot,
		BranchDirRoot:   settings.Paths.BranchDirRoot,
		ConfigRoot:      settings.Paths.ConfigRoot,
		ManagedRoots:    []string{settings.Paths.MergedRoot},
		WatchRoots:      []string{settings.Paths.SourcesRoot, settings.Paths.OverrideRoot},
		PollTimeout:     settings.Scan.WatcherPollTimeout,
		TickInterval:    time.Duration(settings.Scan.PollIntervalSeconds) * time.Second,
		RenameProc:      renameProc,
		RenameQueuePath: renameQueuePath,
	}

	state := supervisor.State{
		PIDPath:  filepath.Join(stateRoot, "daemon.pid"),
		LockPath: filepath.Join(stateRoot, "supervisor.lock"),
	}
	sup := supervisor.New(state, worker, logger, signalRegistrar{}, settings.Shutdown.StopTimeout)

	return &Daemon{Supervisor: sup, Logger: logger}, nil
}

func mountCommandService(executor *exec.Executor, settings config.SettingsDocument) *merge.ExecMountCommandService {
	svc := &merge.ExecMountCommandService{
		Executor:            executor,
		MergerfsOptionsBase: "cache.files=partial,dropcacheonclose=true,category.create=ff",
		MountTimeout:        settings.Diagnostics.MountCommandTimeout,
	}
	if settings.Shutdown.CleanupPriorityIONiceClass != nil {
		svc.IONiceClass = *settings.Shutdown.CleanupPriorityIONiceClass
	}
	if settings.Shutdown.CleanupPriorityNiceValue != nil {
		svc.NiceValue = *settings.Shutdown.CleanupPriorityNiceValue
	}
	return svc
}

func metadataCoordinator(settings config.SettingsDocument, logger *logging.Logger, sceneTags *normalize.SceneTagMatcher) *metadata.Coordinator {
	dbPath := filepath.Join(settings.Paths.StateRoot, "metadata_cooldown.db")
	cooldown, err := metadata.OpenCooldownStore(dbPath)
	if err != nil {
		logger.Error("host.cooldown_store.open_failed", "failed to open metadata cooldown store, metadata ensure disabled", logging.F("error", err.Error()))
		return nil
	}

	gateway := metadata.NewHTTPGateway(metadata.HTTPGatewayConfig{
		SearchURL:           comickSearchURL,
		DetailURLTemplate:   comickDetailURLTemplate,
		ProxyURI:            settings.Runtime.ChallengeBypassProxyURI,
		DirectRetryInterval: settings.Runtime.DirectRetryInterval,
		RequestTimeout:      settings.Runtime.RequestTimeout,
	}, rate.NewLimiter(rate.Limit(2), 5), logger)

	return &metadata.Coordinator{
		Gateway:  gateway,
		Matcher:  &metadata.TitleMatcher{SceneTags: sceneTags},
		Cooldown: cooldown,
		Cover:    metadata.NewHTTPCoverService(&http.Client{Timeout: settings.Runtime.RequestTimeout}, comickCoverCDNPrefix),
		Details:  &metadata.LocalDetailsService{DescriptionMode: string(settings.Runtime.DetailsDescriptionMode)},
		Catalog: &metadata.YAMLEquivalenceCatalog{
			Path:              config.ResolvePathSet(settings.Paths.ConfigRoot).MangaEquivalentsYAML,
			PreferredLanguage: settings.Runtime.PreferredLanguage,
			SceneTags:         sceneTags,
		},
		Logger:            logger,
		CooldownTTL:       settings.Runtime.ComickMetadataCooldown,
		SceneTags:         sceneTags,
		PreferredLanguage: settings.Runtime.PreferredLanguage,
	}
}

// logWarner adapts *logging.Logger to pipeline.Warner and rename.Warner.
type logWarner struct {
	logger *logging.Logger
}

func (w *logWarner) Warn(message string)  { w.logger.Warning("host.pipeline.warning", message) }
func (w *logWarner) Debug(message string) { w.logger.Debug("host.rename.debug", message) }

// oneShotAdapter adapts watch.OneShotReader's ctx-taking Poll to
// pipeline.Watcher's signature, binding it to the daemon's root
// context. It is the fallback when watch_startup_mode is neither "full"
// nor "progressive" (validation should already have rejected that, but
// the host never silently runs with no watcher at all).
type oneShotAdapter struct {
	ctx    context.Context
	reader *watch.OneShotReader
}

func (a oneShotAdapter) Poll(watchRoots []string, timeout time.Duration, cancel <-chan struct{}) watch.PollResult {
	return a.reader.Poll(a.ctx, watchRoots, timeout, cancel)
}

// signalRegistrar wires OS SIGINT/SIGTERM into the supervisor's stop
// function, the production ISsmSupervisorSignalRegistrar (spec.md
// design notes).
type signalRegistrar struct{}

func (signalRegistrar) Register(stop func())  { registerOSSignals(stop) }
func (signalRegistrar) Unregister()           { unregisterOSSignals() }
