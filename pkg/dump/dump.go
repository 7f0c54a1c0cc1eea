// Package dump exports a database into the staging directory of a backup
// run.
//
// MySQL and PostgreSQL are dumped with their client tools (mysqldump,
// pg_dump) through a command.Runner. SQLite databases are copied with
// VACUUM INTO, which produces a consistent snapshot without external tools.
package dump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"deepstore-hq/deepstore/pkg/command"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

// ErrNoOutput is returned when the dump tool reported success but the dump
// file does not exist.
var ErrNoOutput = errors.New("dump produced no output file")

// Config describes the database to dump.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Path is the database file for the sqlite driver.
	Path string

	// IncludeTables restricts the dump to these tables. When empty every
	// table except ExcludeTables is dumped.
	IncludeTables []string
	ExcludeTables []string

	Timeout time.Duration
}

// Dumper writes a dump of one database into a directory.
type Dumper interface {
	// Name returns the driver name.
	Name() string

	// Dump writes the dump into dir and returns the path of the file it
	// created. An empty path with a nil error means nothing was dumped.
	Dump(ctx context.Context, dir string) (string, error)
}

// Pinger is implemented by dumpers that can check connectivity before a
// dump is attempted.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New returns the dumper for cfg.Driver. Commands are executed with runner.
func New(cfg Config, runner command.Runner, logger *slog.Logger) (Dumper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dump", "driver", cfg.Driver)

	switch strings.ToLower(cfg.Driver) {
	case DriverMySQL, "mariadb":
		return &MySQL{cfg: cfg, runner: runner, logger: logger}, nil
	case DriverPostgres, "postgresql", "pgsql":
		return &Postgres{cfg: cfg, runner: runner, logger: logger}, nil
	case DriverSQLite, "sqlite3":
		return &SQLite{cfg: cfg, logger: logger}, nil
	case DriverNone, "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// None skips the database step.
type None struct{}

// Name returns "none".
func (None) Name() string { return DriverNone }

// Dump does nothing.
func (None) Dump(context.Context, string) (string, error) { return "", nil }

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
