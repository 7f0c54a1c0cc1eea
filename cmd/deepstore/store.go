package main

import (
	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/backup"
	"deepstore-hq/deepstore/pkg/cli"
)

var storeFlags struct {
	output string
	quiet  bool
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Run one backup",
	Long: `Run one backup: dump the database, collect the storage directory, create
the archive, upload it and apply retention.

The command exits with status 1 if the dump, archive or upload failed and
with status 3 if another run holds the lock. Retention failures are
reported but do not fail the run.

Examples:
  # Run a backup
  deepstore store

  # Run from cron without output
  deepstore store --quiet

  # Print the run report as JSON
  deepstore store --output json`,
	RunE: runStore,
}

func init() {
	rootCmd.AddCommand(storeCmd)

	storeCmd.Flags().StringVarP(&storeFlags.output, "output", "o", "text", "output format: text, json")
	storeCmd.Flags().BoolVarP(&storeFlags.quiet, "quiet", "q", false, "print nothing unless the run fails")
}

func runStore(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(storeFlags.output)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	runner, err := backup.New(a.cfg,
		backup.WithLogger(a.logger),
		backup.WithMetrics(a.telemetry.Metrics()),
		backup.WithTracer(a.telemetry.Tracer()),
	)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}
	defer runner.Close()

	var progress cli.ProgressReporter
	if format == cli.FormatText && !storeFlags.quiet {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		runner.OnStage = progress.Stage
	}

	report, runErr := runner.Run(cli.SetupSignalHandler())
	if progress != nil {
		progress.Finish(runErr)
	}

	if !storeFlags.quiet || runErr != nil {
		if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), reportView{report}); err != nil {
			return err
		}
	}

	if runErr != nil {
		return cli.NewCommandError("store", runErr)
	}
	return nil
}
