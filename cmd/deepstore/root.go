package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/config"
	"deepstore-hq/deepstore/pkg/telemetry"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "deepstore",
	Short: "Deepstore - database and storage backups with retention",
	Long: `Deepstore backs up an application's database and storage directory.

Each run:
  - Dumps the database (MySQL, PostgreSQL or SQLite)
  - Collects the storage directory using include/exclude rules
  - Packs both into a dated tar.gz archive
  - Uploads the archive to a remote host over SSH
  - Prunes old archives locally and remotely with the retention policy
  - Notifies a webhook and/or NATS subject

Retention keeps the newest N archives plus the first archive of every month.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "deepstore.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// app holds what every command needs after loading configuration.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
}

func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", cfgFile, err)
	}
	cfg := config.MustGetConfig()
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(&cfg.Telemetry, Version)
	if err != nil {
		return nil, cli.NewConfigError("telemetry", err.Error())
	}

	return &app{
		cfg:       cfg,
		telemetry: tel,
		logger:    tel.Logger().Slog(),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// timeNow is replaced in tests.
var timeNow = time.Now
