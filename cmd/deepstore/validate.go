package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/backup"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file with environment overrides applied and
report every validation error. Nothing is contacted or written.

Examples:
  deepstore validate --config /etc/deepstore/deepstore.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	codec, err := backup.NewCodec(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid (%s)\n", cfgFile)
	fmt.Fprintf(out, "  Backup directory: %s\n", cfg.Backup.Path)
	fmt.Fprintf(out, "  Source directory: %s\n", cfg.Backup.SourcePath)
	fmt.Fprintf(out, "  Database:         %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  Next archive:     %s\n", codec.Encode(timeNow()))
	if cfg.Remote.Enabled() {
		fmt.Fprintf(out, "  Remote:           %s@%s:%s (%s)\n", cfg.Remote.User, cfg.Remote.Host, cfg.Remote.Path, cfg.Remote.Mode)
	} else {
		fmt.Fprintln(out, "  Remote:           disabled")
	}
	if cfg.Retention.Enabled {
		p := cfg.RetentionPolicy()
		fmt.Fprintf(out, "  Retention:        latest %d, first of month %v, remote %v\n", p.LatestToKeep, p.KeepFirstOfMonth, cfg.Retention.Remote)
	} else {
		fmt.Fprintln(out, "  Retention:        disabled")
	}
	fmt.Fprintf(out, "  Schedule:         %s\n", cfg.Schedule.Cron)
	return nil
}
