package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/backup"
	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/command"
	"deepstore-hq/deepstore/pkg/config"
	"deepstore-hq/deepstore/pkg/retention"
	"deepstore-hq/deepstore/pkg/transfer"
)

var pruneFlags struct {
	local  bool
	remote bool
	dryRun bool
	output string
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy without creating a backup",
	Long: `Apply the retention policy to the local backup directory and/or the
remote directory.

Without --local or --remote both targets are pruned; the remote is skipped
when no remote host is configured. A listing failure on one target never
deletes anything on that target.

Examples:
  # Show what would be deleted
  deepstore prune --dry-run

  # Prune only the remote directory
  deepstore prune --remote`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().BoolVar(&pruneFlags.local, "local", false, "prune the local backup directory")
	pruneCmd.Flags().BoolVar(&pruneFlags.remote, "remote", false, "prune the remote directory")
	pruneCmd.Flags().BoolVar(&pruneFlags.dryRun, "dry-run", false, "report what would be deleted without deleting")
	pruneCmd.Flags().StringVarP(&pruneFlags.output, "output", "o", "text", "output format: text, json")
}

func runPrune(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(pruneFlags.output)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cli.SetupSignalHandler()

	stores, closeStores, err := openStores(a, pruneFlags.local, pruneFlags.remote)
	if err != nil {
		return err
	}
	defer closeStores()

	codec, err := backup.NewCodec(a.cfg)
	if err != nil {
		return cli.NewConfigError("archive", err.Error())
	}
	enforcer := backup.NewEnforcer(a.cfg, codec, a.telemetry.Metrics(), a.logger)

	if !pruneFlags.dryRun {
		locker, closer := backup.NewLocker(a.cfg)
		if closer != nil {
			defer closer.Close()
		}
		release, err := locker.Acquire(ctx)
		if err != nil {
			return cli.NewCommandError("prune", err)
		}
		defer release(context.WithoutCancel(ctx))
	}

	view := pruneView{}
	var errs []error
	for _, store := range stores {
		var res *retention.Result
		if pruneFlags.dryRun {
			res, err = enforcer.DryRun(ctx, store)
		} else {
			res, err = enforcer.Enforce(ctx, store)
		}
		if res != nil {
			view.Results = append(view.Results, res)
		}
		if err != nil {
			view.Errors = append(view.Errors, err.Error())
			errs = append(errs, err)
		}
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), view); err != nil {
		return err
	}
	if len(errs) > 0 {
		return cli.NewCommandError("prune", errors.Join(errs...))
	}
	return nil
}

// openStores returns the retention targets selected by the flags. With
// neither flag set it returns the local directory and, when configured,
// the remote one.
func openStores(a *app, local, remote bool) ([]retention.Store, func(), error) {
	if !local && !remote {
		local = true
		remote = a.cfg.Remote.Enabled()
	}

	var stores []retention.Store
	closeFn := func() {}

	if local {
		stores = append(stores, retention.NewLocalStore(a.cfg.Backup.Path))
	}
	if remote {
		runner := command.NewExecRunner(a.cfg.Remote.Timeout, a.logger)
		t, err := backup.NewTransport(a.cfg, runner, a.logger)
		if errors.Is(err, transfer.ErrDisabled) {
			return nil, nil, cli.NewConfigError("remote", "remote.host, remote.user and remote.path must be set")
		}
		if err != nil {
			return nil, nil, cli.NewConfigError("remote", err.Error())
		}
		stores = append(stores, t)
		closeFn = func() { t.Close() }
	}
	return stores, closeFn, nil
}

// enforcerFor builds an enforcer without metrics for read-only commands.
func enforcerFor(cfg *config.Config, a *app) (*retention.Enforcer, error) {
	codec, err := backup.NewCodec(cfg)
	if err != nil {
		return nil, cli.NewConfigError("archive", fmt.Sprint(err))
	}
	return backup.NewEnforcer(cfg, codec, nil, a.logger), nil
}
