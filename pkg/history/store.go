// Package history keeps a SQLite ledger of backup runs so operators can
// see when the last good backup happened and what retention removed.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Last when no run matches.
var ErrNotFound = errors.New("no recorded runs")

// StorageError wraps a failed database operation.
type StorageError struct {
	Operation string
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history [operation=%s]: %v", e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

func storageError(op string, err error) error {
	return &StorageError{Operation: op, Cause: err}
}

// Run is one recorded backup run.
type Run struct {
	ID              string    `db:"id" json:"id"`
	Command         string    `db:"command" json:"command"`
	Status          string    `db:"status" json:"status"`
	StartedAt       time.Time `db:"started_at" json:"started_at"`
	FinishedAt      time.Time `db:"finished_at" json:"finished_at"`
	DurationMS      int64     `db:"duration_ms" json:"duration_ms"`
	Archive         string    `db:"archive" json:"archive,omitempty"`
	ArchiveSize     int64     `db:"archive_size" json:"archive_size"`
	Uploaded        bool      `db:"uploaded" json:"uploaded"`
	LocalDeleted    int       `db:"local_deleted" json:"local_deleted"`
	RemoteDeleted   int       `db:"remote_deleted" json:"remote_deleted"`
	RetentionErrors string    `db:"retention_errors" json:"retention_errors,omitempty"`
	Error           string    `db:"error" json:"error,omitempty"`
}

// Filter narrows List.
type Filter struct {
	// Status keeps only runs with this status when set.
	Status string

	// Limit caps the number of runs returned. Default 20.
	Limit int
}

// Config configures the ledger database.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store is the SQLite run ledger.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens or creates the ledger at cfg.Path.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, storageError("open", errors.New("path cannot be empty"))
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history")

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, storageError("open", err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, storageError("open", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.initialize(cfg); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history store initialized", "path", cfg.Path)
	return s, nil
}

func (s *Store) initialize(cfg Config) error {
	if cfg.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return storageError("enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		return storageError("set_busy_timeout", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return storageError("create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return storageError("insert_schema_version", err)
	}

	var version int
	if err := s.db.Get(&version, GetSchemaVersion); err != nil {
		return storageError("get_schema_version", err)
	}
	if version != SchemaVersion {
		return storageError("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Record stores a finished run. Recording the same ID twice replaces the
// earlier row.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		return storageError("record", errors.New("run id is required"))
	}

	query, args, err := sq.Insert("runs").
		Options("OR REPLACE").
		Columns(
			"id", "command", "status", "started_at", "finished_at", "duration_ms",
			"archive", "archive_size", "uploaded",
			"local_deleted", "remote_deleted", "retention_errors", "error",
		).
		Values(
			r.ID, r.Command, r.Status, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.DurationMS,
			r.Archive, r.ArchiveSize, r.Uploaded,
			r.LocalDeleted, r.RemoteDeleted, r.RetentionErrors, r.Error,
		).
		ToSql()
	if err != nil {
		return storageError("record", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storageError("record", err)
	}
	return nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	b := sq.Select("*").From("runs").OrderBy("started_at DESC", "id DESC").Limit(uint64(limit))
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, storageError("list", err)
	}

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, storageError("list", err)
	}
	return runs, nil
}

// Last returns the most recent run, optionally restricted to status.
func (s *Store) Last(ctx context.Context, status string) (*Run, error) {
	runs, err := s.List(ctx, Filter{Status: status, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

// Prune deletes runs that started before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sq.Delete("runs").Where(sq.Lt{"started_at": cutoff.UTC()}).ToSql()
	if err != nil {
		return 0, storageError("prune", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageError("prune", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned run history", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
