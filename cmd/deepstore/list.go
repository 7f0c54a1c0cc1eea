package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/archive"
	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/retention"
)

var listFlags struct {
	remote bool
	output string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives and what retention would do with them",
	Long: `List the archives in the local backup directory (or on the remote host
with --remote), newest first, with the retention decision for each one and
the reason an archive is kept.

Examples:
  # Local archives
  deepstore list

  # Remote archives as JSON
  deepstore list --remote --output json`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listFlags.remote, "remote", false, "list the remote directory instead of the local one")
	listCmd.Flags().StringVarP(&listFlags.output, "output", "o", "text", "output format: text, json")
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(listFlags.output)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stores, closeStores, err := openStores(a, !listFlags.remote, listFlags.remote)
	if err != nil {
		return err
	}
	defer closeStores()
	store := stores[0]

	enforcer, err := enforcerFor(a.cfg, a)
	if err != nil {
		return err
	}

	decision, err := enforcer.Plan(cli.SetupSignalHandler(), store)
	if err != nil {
		return cli.NewCommandError("list", err)
	}

	view := buildListView(store.Name(), decision, enforcer.Policy)
	if store.Name() == "local" {
		for i := range view.Archive {
			if fi, err := os.Stat(filepath.Join(a.cfg.Backup.Path, view.Archive[i].Name)); err == nil {
				view.Archive[i].Size = fi.Size()
			}
		}
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), view)
}

// buildListView merges kept and deleted archives into one newest-first
// listing.
func buildListView(target string, d retention.Decision, p retention.Policy) listView {
	view := listView{
		Target:  target,
		Policy:  policyView{Latest: p.LatestToKeep, KeepFirstOfMonth: p.KeepFirstOfMonth},
		Archive: make([]archiveRow, 0, d.Len()),
		Ignored: d.Skipped,
	}

	keep, del := d.Keep, d.Delete
	row := func(r archive.Record, action string) archiveRow {
		return archiveRow{
			Name:   r.Name,
			Date:   r.Date.Format(time.DateOnly),
			Action: action,
			Reason: d.Reason(r.Name),
		}
	}
	for len(keep) > 0 || len(del) > 0 {
		switch {
		case len(del) == 0 || (len(keep) > 0 && !newer(del[0], keep[0])):
			view.Archive = append(view.Archive, row(keep[0], "keep"))
			keep = keep[1:]
		default:
			view.Archive = append(view.Archive, row(del[0], "delete"))
			del = del[1:]
		}
	}
	return view
}

// newer reports whether a sorts before b in newest-first order.
func newer(a, b archive.Record) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Name > b.Name
}
