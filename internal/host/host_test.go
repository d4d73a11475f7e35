package host

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cjmanca/ssmergerd/internal/config"
)

func writeTestSettings(t *testing.T, configRoot string) {
	t.Helper()
	settings := config.DefaultSettings(configRoot)
	settings.Paths.SourcesRoot = filepath.Join(configRoot, "sources")
	settings.Paths.OverrideRoot = filepath.Join(configRoot, "override")
	settings.Paths.MergedRoot = filepath.Join(configRoot, "merged")
	settings.Paths.StateRoot = filepath.Join(configRoot, "state")
	settings.Paths.LogRoot = filepath.Join(configRoot, "logs")
	settings.Paths.BranchDirRoot = filepath.Join(configRoot, "state", "branches")
	settings.Scan.WatchStartupMode = config.WatchStartupFull
	require.NoError(t, config.WriteSettings(filepath.Join(configRoot, "settings.yml"), settings))
}

func TestBuildWiresDaemonFromBootstrappedConfig(t *testing.T) {
	configRoot := t.TempDir()

	_, err := config.Bootstrap(configRoot, config.BootstrapOptions{Profile: config.RelaxedTooling}, nil)
	require.NoError(t, err)
	writeTestSettings(t, configRoot)

	daemon, err := Build(context.Background(), Options{ConfigRoot: configRoot, Profile: config.RelaxedTooling})
	require.NoError(t, err)
	require.NotNil(t, daemon.Supervisor)
	require.NotNil(t, daemon.Logger)
}

func TestBuildFailsOnInvalidConfigRoot(t *testing.T) {
	configRoot := t.TempDir()
	require.NoError(t, config.WriteSettings(filepath.Join(configRoot, "settings.yml"), config.SettingsDocument{}))

	_, err := Build(context.Background(), Options{ConfigRoot: configRoot, Profile: config.RelaxedTooling})
	require.Error(t, err)
}

func TestRegisterAndUnregisterOSSignalsDoesNotPanicWithoutSignal(t *testing.T) {
	called := make(chan struct{}, 1)
	registerOSSignals(func() { called <- struct{}{} })
	unregisterOSSignals()

	select {
	case <-called:
		t.Fatal("stop should not have been called without a signal")
	case <-time.After(20 * time.Millisecond):
	}
}
