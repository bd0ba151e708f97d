package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"campusnet/internal/config"
	"campusnet/internal/daemon"
	"campusnet/internal/logging"
)

type globalFlags struct {
	configPath string
	verbose    bool
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "campusnet",
		Short:         "Keeps a machine logged in to a campus captive portal",
		Long:          "campusnet watches connectivity, re-authenticates against the campus portal after a drop and fails over between configured WiFi networks.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "campusnet.yaml", "path to configuration file (YAML)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug detail")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log everything")

	root.AddCommand(
		newRunCmd(flags),
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newStatusCmd(flags),
		newProfilesCmd(flags),
		newScanCmd(flags),
	)
	return root
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor, re-login and failover daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log, err := logging.Init(logging.Options{
				Level:      cfg.Log.Level,
				Verbose:    flags.verbose,
				Debug:      flags.debug,
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			log.Info("Loaded configuration", "path", flags.configPath, "profiles", len(cfg.Wifi.Profiles), "accounts", len(cfg.Accounts))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := daemon.New(flags.configPath, cfg, log)
			go reloadOnHangup(ctx, d, log)
			return d.Run(ctx)
		},
	}
}

func reloadOnHangup(ctx context.Context, d *daemon.Daemon, log logr.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := d.Reload(); err != nil {
				log.Error(err, "Keeping previous configuration")
			}
		}
	}
}

// cliLogger is used by the one-shot commands; it only writes to stderr.
func cliLogger(flags *globalFlags) logr.Logger {
	return logging.New(os.Stderr, logging.IsTerminal(), logging.ParseLevel("warn", flags.verbose, flags.debug))
}
