package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"deepstore-hq/deepstore/pkg/backup"
	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/config"
	"deepstore-hq/deepstore/pkg/history"
	"deepstore-hq/deepstore/pkg/server"
	"deepstore-hq/deepstore/pkg/telemetry/health"
)

var daemonFlags struct {
	runOnStart bool
	listen     string
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run backups on a cron schedule",
	Long: `Run backups on the cron schedule from schedule.cron and serve metrics,
health checks and status over HTTP.

The daemon reloads the configuration file when it changes (schedule.watch_config)
and shuts down gracefully on SIGINT or SIGTERM, waiting up to
schedule.shutdown_timeout for a running backup before cancelling it.

Examples:
  # Start with the default schedule (daily at 02:00)
  deepstore daemon

  # Run a backup immediately, then follow the schedule
  deepstore daemon --run-on-start

  # Override the telemetry listen address
  deepstore daemon --listen 0.0.0.0:9090`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().BoolVar(&daemonFlags.runOnStart, "run-on-start", false, "run a backup immediately after starting")
	daemonCmd.Flags().StringVarP(&daemonFlags.listen, "listen", "l", "", "override telemetry listen address")
}

// daemonStatus is served on GET /status.
type daemonStatus struct {
	Version  string       `json:"version"`
	Schedule string       `json:"schedule"`
	Running  bool         `json:"running"`
	NextRun  *time.Time   `json:"next_run,omitempty"`
	LastRun  *history.Run `json:"last_run,omitempty"`
}

// runners owns the active runner. A reload activates a new one and the
// previous runner is closed once its in-flight run returns.
type runners struct {
	mu       sync.Mutex
	current  *backup.Runner
	retiring sync.WaitGroup
	opts     []backup.Option
	logger   *slog.Logger
}

func (r *runners) build(cfg *config.Config) (*backup.Runner, error) {
	return backup.New(cfg, r.opts...)
}

func (r *runners) activate(next *backup.Runner) {
	r.mu.Lock()
	prev := r.current
	r.current = next
	r.mu.Unlock()

	if prev == nil {
		return
	}
	r.retiring.Add(1)
	go func() {
		defer r.retiring.Done()
		if err := prev.Retire(); err != nil {
			r.logger.Warn("failed to close replaced runner", "error", err)
		}
	}()
}

func (r *runners) closeAll() {
	r.retiring.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			r.logger.Warn("failed to close runner", "error", err)
		}
		r.current = nil
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	cfg := a.cfg
	if daemonFlags.listen != "" {
		cfg.Telemetry.Metrics.ListenAddress = daemonFlags.listen
	}
	logger := a.logger.With("component", "daemon")

	var store *history.Store
	if cfg.History.Enabled {
		store, err = backup.OpenHistory(cfg, a.logger)
		if err != nil {
			a.close()
			return cli.NewCommandError("daemon", err)
		}
	}

	pool := &runners{logger: logger, opts: []backup.Option{
		backup.WithLogger(a.logger),
		backup.WithMetrics(a.telemetry.Metrics()),
		backup.WithTracer(a.telemetry.Tracer()),
	}}
	if store != nil {
		pool.opts = append(pool.opts, backup.WithHistory(store))
	}

	runner, err := pool.build(cfg)
	if err != nil {
		a.close()
		return cli.NewConfigError("", err.Error())
	}
	pool.activate(runner)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	sched := backup.NewScheduler(cfg.Schedule.Cron, runner, a.logger)
	if err := sched.Start(runCtx); err != nil {
		pool.closeAll()
		a.close()
		return cli.NewConfigError("schedule.cron", err.Error())
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCritical("scheduler", func(context.Context) error {
		if !sched.IsRunning() {
			return errors.New("scheduler is not running")
		}
		return nil
	})
	if store != nil {
		checker.RegisterCritical("last_run", health.LastRunCheck(store, cfg.Telemetry.Health.MaxRunAge))
		checker.RegisterCheck("history", health.PingCheck(store.Ping))
	}

	status := func(ctx context.Context) any {
		s := daemonStatus{
			Version:  Version,
			Schedule: sched.Schedule(),
			Running:  sched.IsRunning(),
			NextRun:  sched.NextRun(),
		}
		if store != nil {
			if last, err := store.Last(ctx, ""); err == nil {
				s.LastRun = last
			}
		}
		return s
	}

	metricsHandler := a.telemetry.Metrics().Handler()
	if !cfg.Telemetry.Metrics.Enabled {
		metricsHandler = nil
	}
	srv := server.NewServer(server.Config{
		ListenAddress:   cfg.Telemetry.Metrics.ListenAddress,
		MetricsPath:     cfg.Telemetry.Metrics.Path,
		ShutdownTimeout: cfg.Schedule.ShutdownTimeout,
		Version:         Version,
		Commit:          GitCommit,
		BuildTime:       BuildDate,
	}, checker, metricsHandler, status, a.logger)

	go func() {
		if err := srv.Start(runCtx); err != nil {
			logger.Error("telemetry server stopped", "error", err)
		}
	}()

	if cfg.Schedule.WatchConfig {
		watcher, err := config.NewWatcher(cfgFile, 0, a.logger)
		if err != nil {
			logger.Warn("config watcher disabled", "error", err)
		} else {
			go func() {
				err := watcher.Watch(runCtx, func(newCfg *config.Config) {
					reload(newCfg, a, pool, sched, logger)
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	var startup sync.WaitGroup
	if daemonFlags.runOnStart || cfg.Schedule.RunOnStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			sched.RunNow(runCtx)
		}()
	}

	logger.Info("deepstore daemon started",
		"version", Version,
		"schedule", cfg.Schedule.Cron,
		"next_run", sched.NextRun(),
		"listen", cfg.Telemetry.Metrics.ListenAddress,
	)

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Schedule.ShutdownTimeout, map[string]gfshutdown.Operation{
		"deepstore": func(ctx context.Context) error {
			logger.Info("shutting down, waiting for running backup")

			stopped := make(chan struct{})
			go func() {
				sched.Stop()
				startup.Wait()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				logger.Warn("shutdown timeout reached, cancelling running backup")
				cancelRuns()
				<-stopped
			}
			cancelRuns()

			var errs []error
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				errs = append(errs, err)
			}
			pool.closeAll()
			if store != nil {
				if err := store.Close(); err != nil {
					errs = append(errs, fmt.Errorf("history: %w", err))
				}
			}
			if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	})

	if code := <-wait; code != 0 {
		return cli.NewCommandError("daemon", fmt.Errorf("shutdown finished with exit code %d", code))
	}
	return nil
}

// reload applies a changed configuration. The schedule and runner are
// swapped; a backup already running finishes with the old settings and its
// runner is closed afterwards.
func reload(cfg *config.Config, a *app, pool *runners, sched *backup.Scheduler, logger *slog.Logger) {
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := a.telemetry.Logger().SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		logger.Warn("invalid log level in reloaded config", "error", err)
	}

	runner, err := pool.build(cfg)
	if err != nil {
		logger.Error("reloaded configuration rejected", "error", err)
		return
	}
	if err := sched.Update(cfg.Schedule.Cron, runner); err != nil {
		logger.Error("reloaded schedule rejected", "error", err)
		runner.Close()
		return
	}
	pool.activate(runner)
	logger.Info("configuration reloaded", "schedule", cfg.Schedule.Cron)
}
