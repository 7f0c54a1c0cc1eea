package main

import (
	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/backup"
	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/history"
)

var historyFlags struct {
	limit  int
	status string
	output string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded backup runs",
	Long: `Show the most recent backup runs from the history database, newest first.

Examples:
  # Last 20 runs
  deepstore history

  # Last 5 failed runs as JSON
  deepstore history --status failed --limit 5 --output json`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "maximum number of runs to show")
	historyCmd.Flags().StringVar(&historyFlags.status, "status", "", "only show runs with this status: success, failed, skipped")
	historyCmd.Flags().StringVarP(&historyFlags.output, "output", "o", "text", "output format: text, json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(historyFlags.output)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if !a.cfg.History.Enabled {
		return cli.NewConfigError("history.enabled", "run history is disabled")
	}

	store, err := backup.OpenHistory(a.cfg, a.logger)
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), history.Filter{
		Status: historyFlags.status,
		Limit:  historyFlags.limit,
	})
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), historyView{Runs: runs})
}
