package dump

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jackc/pgx/v5"

	"deepstore-hq/deepstore/pkg/command"
)

// Postgres dumps a PostgreSQL database with pg_dump.
type Postgres struct {
	cfg    Config
	runner command.Runner
	logger *slog.Logger
}

// Name returns "postgres".
func (p *Postgres) Name() string { return DriverPostgres }

// ConnString returns the connection URL used for the preflight ping.
func (p *Postgres) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port)),
		Path:   "/" + p.cfg.Name,
	}
	if p.cfg.Password != "" {
		u.User = url.UserPassword(p.cfg.User, p.cfg.Password)
	} else if p.cfg.User != "" {
		u.User = url.User(p.cfg.User)
	}
	return u.String()
}

// Ping opens a connection and pings the server.
func (p *Postgres) Ping(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, p.ConnString())
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Command builds the pg_dump invocation writing to dir. The password is
// passed through PGPASSWORD.
func (p *Postgres) Command(dir string) (command.Command, string) {
	file := filepath.Join(dir, p.cfg.Name+".sql")

	args := []string{
		"--host=" + p.cfg.Host,
		"--port=" + strconv.Itoa(p.cfg.Port),
		"--username=" + p.cfg.User,
		"--format=plain",
		"--no-password",
		"--file=" + file,
	}

	if include := nonEmpty(p.cfg.IncludeTables); len(include) > 0 {
		for _, table := range include {
			args = append(args, "--table="+table)
		}
	} else {
		for _, table := range nonEmpty(p.cfg.ExcludeTables) {
			args = append(args, "--exclude-table="+table)
		}
	}
	args = append(args, p.cfg.Name)

	cmd := command.Command{
		Name:    "pg_dump",
		Args:    args,
		Timeout: p.cfg.Timeout,
	}
	if p.cfg.Password != "" {
		cmd.Env = map[string]string{"PGPASSWORD": p.cfg.Password}
	}
	return cmd, file
}

// Dump runs pg_dump.
func (p *Postgres) Dump(ctx context.Context, dir string) (string, error) {
	if p.cfg.Name == "" {
		return "", fmt.Errorf("postgres: database name is required")
	}

	cmd, file := p.Command(dir)
	p.logger.Info("dumping database", "database", p.cfg.Name, "host", p.cfg.Host)

	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("pg_dump: %w", err)
	}
	if _, err := os.Stat(file); err != nil {
		return "", fmt.Errorf("pg_dump: %w: %s", ErrNoOutput, file)
	}
	return file, nil
}
