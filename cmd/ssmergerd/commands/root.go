package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cjmanca/ssmergerd/internal/config"
	"github.com/cjmanca/ssmergerd/internal/host"
)

var (
	foreground bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "ssmergerd [configRootPath]",
	Short: "Run the manga-library union-mount supervisor daemon",
	Long: `ssmergerd discovers manga source and override volumes under a
configured root, groups titles by normalized equivalence, and maintains
a live union mount per title via mergerfs, reconciling on every
filesystem change and periodically ensuring cover/details metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: runDaemon,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "validate settings.yml with the strict runtime profile (default: relaxed tooling profile); the process does not detach either way")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log a debug record noting the flag; the logging level is not changed and stays as settings.yml sets it")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configRoot := args[0]

	if err := checkEnvironment(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	profile := config.StrictRuntime
	if !foreground {
		profile = config.RelaxedTooling
	}

	daemon, err := host.Build(context.Background(), host.Options{ConfigRoot: configRoot, Profile: profile})
	if err != nil {
		var bootstrapErr *config.BootstrapException
		if errors.As(err, &bootstrapErr) {
			for _, e := range bootstrapErr.Errors {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer daemon.Logger.Sync()

	if debug {
		daemon.Logger.Debug("host.cli.debug_flag", "--debug flag set; settings.yml logging.level still governs the sink")
	}

	code := daemon.Supervisor.Run(context.Background())
	os.Exit(code)
	return nil
}

// checkEnvironment validates FUSE_DEVICE_PATH, which must resolve to an
// accessible character device since mergerfs mounts through /dev/fuse.
// PUID/PGID are not read from the environment here; the ids in
// settings.yml's permissions section are the ones used.
func checkEnvironment() error {
	devicePath := os.Getenv("FUSE_DEVICE_PATH")
	if devicePath == "" {
		return fmt.Errorf("FUSE_DEVICE_PATH is not set; mergerfs requires an accessible FUSE character device")
	}
	info, err := os.Stat(devicePath)
	if err != nil {
		return fmt.Errorf("FUSE_DEVICE_PATH %q is not accessible: %w", devicePath, err)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return fmt.Errorf("FUSE_DEVICE_PATH %q is not a character device", devicePath)
	}
	return nil
}
