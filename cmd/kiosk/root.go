package main

import (
	"fmt"
	"log/slog"

	"github.com/mmcdole/kiosk/internal/config"
	"github.com/mmcdole/kiosk/internal/log"
	"github.com/spf13/cobra"
)

// globalOptions are flags that do not map onto config keys
type globalOptions struct {
	configFile string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "kiosk",
		Short:         "Offline-first media cache and slideshow player for digital signage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: OS config dir, then ./config.yaml)")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.String("profile", "", "deployment profile: kiosk or android-tv")
	flags.String("api", "", "signage API base URL")
	flags.String("client", "", "client id")
	flags.String("display", "", "display id")
	flags.String("only", "", "play only media matching this pattern (comma separated)")
	flags.String("data-dir", "", "cache directory")
	flags.String("listen", "", "local media server address")
	flags.String("player", "", "external player command (default: auto-detect)")
	flags.Bool("headless", false, "log slides instead of launching a player")

	root.AddCommand(
		newPlayCmd(opts),
		newServeCmd(opts),
		newPreCacheCmd(opts),
		newSyncCmd(opts),
		newStatsCmd(opts),
		newClearCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads configuration and installs the process logger
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Level = "DEBUG"
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting kiosk", "version", Version, "command", cmd.Name(), "profile", cfg.Profile)
	return cfg, logger, nil
}

// requireDisplay rejects commands that need a display before one is configured
func requireDisplay(cfg *config.Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("no display configured: run `kiosk init` or pass --api, --client and --display")
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kiosk %s\n", Version)
		},
	}
}
