package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"deepstore-hq/deepstore/pkg/archive"
	"deepstore-hq/deepstore/pkg/collect"
	"deepstore-hq/deepstore/pkg/dump"
	"deepstore-hq/deepstore/pkg/history"
	"deepstore-hq/deepstore/pkg/lock"
	"deepstore-hq/deepstore/pkg/notify"
	"deepstore-hq/deepstore/pkg/retention"
	"deepstore-hq/deepstore/pkg/telemetry/logging"
	"deepstore-hq/deepstore/pkg/telemetry/tracing"
	"deepstore-hq/deepstore/pkg/transfer"
)

// History is the part of the run ledger the runner writes to.
type History interface {
	Record(ctx context.Context, r history.Run) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Metrics receives run and stage outcomes.
type Metrics interface {
	RecordRun(status string, duration time.Duration, archiveSize int64, finished time.Time)
	RecordStage(stage string, duration time.Duration)
	RecordSkipped()
}

// Tracer starts spans. *tracing.Tracer satisfies it.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// Runner performs backup runs: dump the database, collect files, archive
// them, upload the archive and apply retention.
type Runner struct {
	BackupDir   string
	SourceDir   string
	CommandName string

	Codec            *archive.Codec
	CompressionLevel int

	Dumper    dump.Dumper
	Preflight bool
	Collector *collect.Collector

	// Transport is nil when no remote is configured.
	Transport transfer.Transport

	// Retention is nil when retention is disabled.
	Retention       *retention.Enforcer
	RemoteRetention bool

	Locker   lock.Locker
	Notifier notify.Notifier

	History       History
	HistoryMaxAge time.Duration

	Metrics Metrics
	Tracer  Tracer
	Logger  *slog.Logger

	// OnStage is called after each stage finishes. Dump and collect run
	// concurrently, so it must be safe for concurrent use.
	OnStage func(stage string, d time.Duration, err error)

	Now func() time.Time

	closers []io.Closer

	// active is held for reading by every Run so Retire can wait for them.
	active sync.RWMutex
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) tracer() Tracer {
	if r.Tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return r.Tracer
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) command() string {
	if r.CommandName == "" {
		return "deepstore:store"
	}
	return r.CommandName
}

// Run performs one backup. The returned report is never nil. A run that
// finds the lock held returns an error wrapping lock.ErrLocked with the
// report status set to skipped.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.active.RLock()
	defer r.active.RUnlock()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := r.tracer().Start(ctx, "backup.run")
	tracing.SetRunAttributes(span, runID, r.command())

	report := newReport(runID, r.command(), r.now())
	log := r.logger()
	log.InfoContext(ctx, "backup started", "backup_dir", r.BackupDir, "source_dir", r.SourceDir)

	locker := r.Locker
	if locker == nil {
		locker = lock.Noop{}
	}

	var err error
	release, lockErr := locker.Acquire(ctx)
	switch {
	case errors.Is(lockErr, lock.ErrLocked):
		log.WarnContext(ctx, "backup skipped, another run is in progress", "error", lockErr)
		report.Status = StatusSkipped
		r.complete(ctx, report, lockErr)
		if r.Metrics != nil {
			r.Metrics.RecordSkipped()
		}
		tracing.End(span, nil)
		return report, lockErr
	case lockErr != nil:
		err = &StageError{Stage: StageLock, Err: lockErr}
	default:
		err = r.execute(ctx, report)
		r.applyRetention(ctx, report)
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			log.WarnContext(ctx, "could not release run lock", "error", relErr)
		}
	}

	report.Status = StatusSuccess
	if err != nil {
		report.Status = StatusFailed
	}
	r.complete(ctx, report, err)
	r.notify(ctx, report)
	if r.Metrics != nil {
		r.Metrics.RecordRun(report.Status, report.Duration, report.ArchiveSize, report.FinishedAt)
	}

	if err != nil {
		log.ErrorContext(ctx, "backup failed", "error", err, "duration", report.Duration)
	} else {
		log.InfoContext(ctx, "backup completed",
			"archive", report.Archive,
			"size", report.ArchiveSize,
			"uploaded", report.Uploaded,
			"duration", report.Duration,
		)
	}
	tracing.End(span, err)
	return report, err
}

// execute runs every stage up to and including the upload. The staging
// directory is always removed before it returns.
func (r *Runner) execute(ctx context.Context, report *Report) error {
	if r.Codec == nil {
		return &StageError{Stage: StagePrepare, Err: errors.New("archive codec is not configured")}
	}

	report.Archive = r.Codec.Encode(report.StartedAt)
	report.ArchivePath = filepath.Join(r.BackupDir, report.Archive)

	staging := filepath.Join(r.BackupDir, "temp_"+uuid.NewString())
	sqlDir := filepath.Join(staging, "sql")
	storageDir := filepath.Join(staging, "storage")

	err := r.stage(ctx, report, StagePrepare, func(context.Context) error {
		for _, dir := range []string{r.BackupDir, sqlDir, storageDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return nil
	})
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			r.logger().WarnContext(ctx, "could not remove staging directory", "path", staging, "error", err)
		}
	}()
	if err != nil {
		return err
	}

	if p, ok := r.Dumper.(dump.Pinger); ok && r.Preflight {
		if err := r.stage(ctx, report, StagePreflight, p.Ping); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.Dumper != nil {
		g.Go(func() error {
			return r.stage(gctx, report, StageDump, func(ctx context.Context) error {
				path, err := r.Dumper.Dump(ctx, sqlDir)
				if err != nil {
					return err
				}
				report.DumpFile = path
				return nil
			})
		})
	}
	if r.Collector != nil && r.SourceDir != "" {
		g.Go(func() error {
			return r.stage(gctx, report, StageCollect, func(ctx context.Context) error {
				stats, err := r.Collector.Collect(ctx, r.SourceDir, storageDir)
				report.Files, report.Bytes = stats.Files, stats.Bytes
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	err = r.stage(ctx, report, StageArchive, func(ctx context.Context) error {
		size, err := archive.Build(ctx, staging, report.ArchivePath, r.CompressionLevel)
		if err != nil {
			return err
		}
		report.ArchiveSize = size
		report.Created = true
		tracing.SetArchiveAttributes(trace.SpanFromContext(ctx), report.Archive, size)
		return nil
	})
	if err != nil {
		return err
	}

	if r.Transport == nil {
		return nil
	}
	return r.stage(ctx, report, StageUpload, func(ctx context.Context) error {
		if err := r.Transport.Upload(ctx, report.ArchivePath, report.Archive); err != nil {
			return err
		}
		report.Uploaded = true
		return nil
	})
}

// applyRetention prunes old archives once a new archive exists. Failures
// are recorded on the report and never fail the run.
func (r *Runner) applyRetention(ctx context.Context, report *Report) {
	if r.Retention == nil || !report.Created {
		return
	}

	report.LocalRetention = r.retain(ctx, report, StageRetentionLocal, retention.NewLocalStore(r.BackupDir))

	if r.RemoteRetention && r.Transport != nil && report.Uploaded {
		report.RemoteRetention = r.retain(ctx, report, StageRetentionRemote, r.Transport)
	}
}

func (r *Runner) retain(ctx context.Context, report *Report, stage string, store retention.Store) *retention.Result {
	var result *retention.Result
	err := r.stage(ctx, report, stage, func(ctx context.Context) error {
		res, err := r.Retention.Enforce(ctx, store)
		result = res
		if res != nil {
			tracing.SetRetentionAttributes(trace.SpanFromContext(ctx),
				res.Target, len(res.Kept), len(res.Deleted), len(res.Failed))
		}
		return err
	})
	if err != nil {
		report.RetentionErrors = append(report.RetentionErrors, err.Error())
		r.logger().WarnContext(ctx, "retention incomplete", "target", store.Name(), "error", err)
	}
	return result
}

// stage runs fn inside a span, records its duration and wraps its error.
func (r *Runner) stage(ctx context.Context, report *Report, name string, fn func(context.Context) error) error {
	ctx = logging.WithStage(ctx, name)
	ctx, span := r.tracer().Start(ctx, "backup."+name)

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	report.setStage(name, elapsed)
	if r.Metrics != nil {
		r.Metrics.RecordStage(name, elapsed)
	}
	r.logger().DebugContext(ctx, "stage finished", "duration", elapsed, "error", err)
	if r.OnStage != nil {
		r.OnStage(name, elapsed, err)
	}

	if err != nil {
		err = &StageError{Stage: name, Err: err}
	}
	tracing.End(span, err)
	return err
}

// complete stamps the finish time and records the run in history.
func (r *Runner) complete(ctx context.Context, report *Report, err error) {
	report.FinishedAt = r.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
	}

	if r.History == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.History.Record(ctx, report.HistoryRun()); err != nil {
		r.logger().WarnContext(ctx, "could not record run history", "error", err)
		return
	}
	if r.HistoryMaxAge > 0 {
		if _, err := r.History.Prune(ctx, report.FinishedAt.Add(-r.HistoryMaxAge)); err != nil {
			r.logger().WarnContext(ctx, "could not prune run history", "error", err)
		}
	}
}

func (r *Runner) notify(ctx context.Context, report *Report) {
	if r.Notifier == nil {
		return
	}
	event := notify.NewEvent(report.Succeeded(), report.Command, report.FinishedAt)
	event.RunID = report.RunID
	event.Error = report.Error
	if report.Created {
		event.Archive = report.Archive
	}
	if err := r.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		r.logger().WarnContext(ctx, "notification failed", "error", err)
	}
}

// Retire waits for every in-flight Run to return and then closes the
// runner. It is used when a reloaded configuration replaces the runner.
func (r *Runner) Retire() error {
	r.active.Lock()
	defer r.active.Unlock()
	return r.Close()
}

// Close releases the transport connection and anything New opened.
func (r *Runner) Close() error {
	var errs []error
	if r.Transport != nil {
		if err := r.Transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
