package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deepstore-hq/deepstore/pkg/archive"
)

var (
	// ErrListing means the store could not be listed. No archive was
	// deleted during that run.
	ErrListing = errors.New("retention: listing failed, no action taken")

	// ErrDelete means at least one archive selected for deletion could not
	// be removed. The other deletions were still attempted.
	ErrDelete = errors.New("retention: some deletions failed")
)

// Metrics receives the outcome of each enforcement run.
type Metrics interface {
	RecordRetention(target string, evaluated, deleted, failed int)
}

// Failure is an archive that could not be deleted.
type Failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Result summarises one enforcement run against one store.
type Result struct {
	Target   string        `json:"target"`
	DryRun   bool          `json:"dry_run"`
	Listed   int           `json:"listed"`
	Skipped  []string      `json:"skipped,omitempty"`
	Kept     []string      `json:"kept"`
	Deleted  []string      `json:"deleted"`
	Failed   []Failure     `json:"failed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Enforcer applies a retention policy to a Store.
type Enforcer struct {
	Codec  *archive.Codec
	Policy Policy
	Logger *slog.Logger

	// Metrics is optional.
	Metrics Metrics

	// ListTimeout bounds Store.List when positive.
	ListTimeout time.Duration
}

// NewEnforcer creates an enforcer logging under the retention component.
func NewEnforcer(codec *archive.Codec, p Policy, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		Codec:  codec,
		Policy: p,
		Logger: logger.With("component", "retention"),
	}
}

func (e *Enforcer) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Enforcer) list(ctx context.Context, store Store) ([]string, error) {
	if e.ListTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ListTimeout)
		defer cancel()
	}

	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrListing, store.Name(), err)
	}
	return names, nil
}

// Plan lists the store and returns the decision without deleting anything.
func (e *Enforcer) Plan(ctx context.Context, store Store) (Decision, error) {
	names, err := e.list(ctx, store)
	if err != nil {
		return Decision{}, err
	}
	return Decide(names, e.Codec, e.Policy), nil
}

// Enforce lists the store, evaluates the policy and deletes every archive
// the decision rejects, one at a time. A failed deletion is logged and
// recorded and the remaining deletions proceed; the returned error then
// wraps ErrDelete together with each failure. A listing failure returns
// ErrListing and deletes nothing.
func (e *Enforcer) Enforce(ctx context.Context, store Store) (*Result, error) {
	return e.run(ctx, store, false)
}

// DryRun is Enforce without deletion. The result reports what would have
// been deleted.
func (e *Enforcer) DryRun(ctx context.Context, store Store) (*Result, error) {
	return e.run(ctx, store, true)
}

func (e *Enforcer) run(ctx context.Context, store Store, dryRun bool) (*Result, error) {
	start := time.Now()
	log := e.logger().With("target", store.Name())

	result := &Result{Target: store.Name(), DryRun: dryRun}

	decision, err := e.Plan(ctx, store)
	if err != nil {
		log.Warn("retention skipped", "error", err)
		result.Duration = time.Since(start)
		return result, err
	}

	result.Listed = decision.Len() + len(decision.Skipped)
	result.Skipped = decision.Skipped
	result.Kept = decision.KeepNames()

	log.Info("retention evaluated",
		"archives", decision.Len(),
		"keep", len(decision.Keep),
		"delete", len(decision.Delete),
		"skipped", len(decision.Skipped),
		"latest_to_keep", e.Policy.LatestToKeep,
		"keep_first_of_month", e.Policy.KeepFirstOfMonth,
		"dry_run", dryRun)

	var errs []error
	for _, rec := range decision.Delete {
		if dryRun {
			result.Deleted = append(result.Deleted, rec.Name)
			continue
		}
		if err := store.Delete(ctx, rec.Name); err != nil {
			log.Warn("failed to delete archive", "archive", rec.Name, "error", err)
			result.Failed = append(result.Failed, Failure{Name: rec.Name, Error: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", rec.Name, err))
			continue
		}
		log.Info("deleted archive", "archive", rec.Name, "date", rec.Date.Format(time.DateOnly))
		result.Deleted = append(result.Deleted, rec.Name)
	}

	result.Duration = time.Since(start)

	if e.Metrics != nil && !dryRun {
		e.Metrics.RecordRetention(store.Name(), decision.Len(), len(result.Deleted), len(result.Failed))
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("%w on %s: %w", ErrDelete, store.Name(), errors.Join(errs...))
	}
	return result, nil
}
