package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/backup"
	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/command"
	"deepstore-hq/deepstore/pkg/dump"
	"deepstore-hq/deepstore/pkg/lock"
	"deepstore-hq/deepstore/pkg/transfer"
)

var checkFlags struct {
	timeout time.Duration
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the database, remote host and lock backend are reachable",
	Long: `Run connectivity checks without creating a backup:
  - backup directory is writable
  - database answers a ping (PostgreSQL and SQLite)
  - remote directory can be listed
  - Redis lock backend answers a ping

Examples:
  deepstore check
  deepstore check --timeout 10s`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().DurationVar(&checkFlags.timeout, "timeout", 30*time.Second, "timeout for each check")
}

type checkResult struct {
	name string
	err  error
	note string
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cli.SetupSignalHandler()
	run := func(name string, fn func(context.Context) (string, error)) checkResult {
		cctx, cancel := context.WithTimeout(ctx, checkFlags.timeout)
		defer cancel()
		note, err := fn(cctx)
		return checkResult{name: name, err: err, note: note}
	}

	results := []checkResult{
		run("backup directory", func(context.Context) (string, error) {
			return a.cfg.Backup.Path, checkWritable(a.cfg.Backup.Path)
		}),
		run("database", func(ctx context.Context) (string, error) {
			d, err := dump.New(backup.DumpConfig(a.cfg), command.NewExecRunner(checkFlags.timeout, a.logger), a.logger)
			if err != nil {
				return "", err
			}
			p, ok := d.(dump.Pinger)
			if !ok {
				return d.Name() + ": no ping available", nil
			}
			return d.Name(), p.Ping(ctx)
		}),
		run("remote", func(ctx context.Context) (string, error) {
			t, err := backup.NewTransport(a.cfg, nil, a.logger)
			if errors.Is(err, transfer.ErrDisabled) {
				return "not configured", nil
			}
			if err != nil {
				return "", err
			}
			defer t.Close()
			names, err := t.List(ctx)
			return fmt.Sprintf("%d entries", len(names)), err
		}),
		run("lock", func(ctx context.Context) (string, error) {
			l, closer := backup.NewLocker(a.cfg)
			if closer != nil {
				defer closer.Close()
			}
			if r, ok := l.(*lock.Redis); ok {
				return "redis " + a.cfg.Lock.RedisAddr, r.Ping(ctx)
			}
			return a.cfg.Lock.Backend, nil
		}),
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "✗ %-17s %v\n", r.name, r.err)
			continue
		}
		fmt.Fprintf(out, "✓ %-17s %s\n", r.name, r.note)
	}

	if failed > 0 {
		return cli.NewCommandError("check", fmt.Errorf("%d of %d checks failed", failed, len(results)))
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".deepstore-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
