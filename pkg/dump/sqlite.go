package dump

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite snapshots a SQLite database file with VACUUM INTO.
type SQLite struct {
	cfg    Config
	logger *slog.Logger
}

// Name returns "sqlite".
func (s *SQLite) Name() string { return DriverSQLite }

func (s *SQLite) open() (*sql.DB, error) {
	if s.cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	// Opening a missing file would create an empty database.
	if _, err := os.Stat(s.cfg.Path); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", s.cfg.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Ping verifies the file is a readable SQLite database.
func (s *SQLite) Ping(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: read schema: %w", err)
	}
	return nil
}

// Dump writes a consistent copy of the database to dir/<base>.sqlite.
func (s *SQLite) Dump(ctx context.Context, dir string) (string, error) {
	db, err := s.open()
	if err != nil {
		return "", err
	}
	defer db.Close()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	base := strings.TrimSuffix(filepath.Base(s.cfg.Path), filepath.Ext(s.cfg.Path))
	file := filepath.Join(dir, base+".sqlite")

	s.logger.Info("dumping database", "path", s.cfg.Path)

	stmt := "VACUUM INTO '" + strings.ReplaceAll(file, "'", "''") + "'"
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("sqlite: vacuum into %s: %w", file, err)
	}
	if _, err := os.Stat(file); err != nil {
		return "", fmt.Errorf("sqlite: %w: %s", ErrNoOutput, file)
	}
	return file, nil
}
