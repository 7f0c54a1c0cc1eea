package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"deepstore-hq/deepstore/pkg/lock"
)

// Job is a scheduled backup. *Runner satisfies it.
type Job interface {
	Run(ctx context.Context) (*Report, error)
}

// Scheduler runs a Job on a cron schedule.
//
// Common cron expressions:
//   - "0 2 * * *"    - Daily at 2 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "0 3 * * 0"    - Weekly on Sunday at 3 AM
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	entry    cron.EntryID
	ctx      context.Context
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool

	jobMu sync.RWMutex
	job   Job
}

// NewScheduler creates a scheduler for job.
func NewScheduler(schedule string, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		job:      job,
		logger:   logger.With("component", "backup.scheduler"),
	}
}

// Start schedules the job and starts the cron loop. Runs use ctx, and the
// scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	s.ctx = ctx
	id, err := s.add(s.schedule)
	if err != nil {
		return err
	}
	s.entry = id

	s.cron.Start()
	s.running = true

	s.logger.Info("backup scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) add(schedule string) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return 0, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	id, err := s.cron.AddFunc(schedule, func() {
		s.RunNow(s.ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule backup: %w", err)
	}
	return id, nil
}

// Update swaps the job and, when the schedule changed, reschedules it.
// A run already in progress finishes with the previous job.
func (s *Scheduler) Update(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule != s.schedule && s.running {
		id, err := s.add(schedule)
		if err != nil {
			return err
		}
		s.cron.Remove(s.entry)
		s.entry = id
		s.logger.Info("backup schedule changed", "from", s.schedule, "to", schedule)
	}
	s.schedule = schedule

	if job != nil {
		s.jobMu.Lock()
		s.job = job
		s.jobMu.Unlock()
	}
	return nil
}

// RunNow runs the job once in the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.jobMu.RLock()
	job := s.job
	s.jobMu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info("starting scheduled backup")
	report, err := job.Run(ctx)
	if report == nil {
		report = &Report{}
	}
	switch {
	case errors.Is(err, lock.ErrLocked):
		s.logger.Warn("scheduled backup skipped", "reason", err)
	case err != nil:
		s.logger.Error("scheduled backup failed", "error", err, "run_id", report.RunID)
	default:
		s.logger.Info("scheduled backup completed",
			"run_id", report.RunID,
			"archive", report.Archive,
			"duration", report.Duration,
		)
	}
}

// Stop stops the scheduler and waits for a running backup to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("backup scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Schedule returns the active cron expression.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.schedule
}

// NextRun returns the next scheduled backup time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.cron.Entry(s.entry)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}
