package dump

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"deepstore-hq/deepstore/pkg/command"
)

// MySQL dumps a MySQL or MariaDB database with mysqldump.
type MySQL struct {
	cfg    Config
	runner command.Runner
	logger *slog.Logger
}

// Name returns "mysql".
func (m *MySQL) Name() string { return DriverMySQL }

// Command builds the mysqldump invocation writing to dir. The password is
// passed through MYSQL_PWD so it never shows up in the process list.
func (m *MySQL) Command(dir string) (command.Command, string) {
	file := filepath.Join(dir, m.cfg.Name+".sql")

	args := []string{
		"--host=" + m.cfg.Host,
		"--port=" + strconv.Itoa(m.cfg.Port),
		"--user=" + m.cfg.User,
		"--routines",
		"--result-file=" + file,
		m.cfg.Name,
	}

	if include := nonEmpty(m.cfg.IncludeTables); len(include) > 0 {
		args = append(args, include...)
	} else {
		for _, table := range nonEmpty(m.cfg.ExcludeTables) {
			args = append(args, fmt.Sprintf("--ignore-table=%s.%s", m.cfg.Name, table))
		}
	}

	cmd := command.Command{
		Name:    "mysqldump",
		Args:    args,
		Timeout: m.cfg.Timeout,
	}
	if m.cfg.Password != "" {
		cmd.Env = map[string]string{"MYSQL_PWD": m.cfg.Password}
	}
	return cmd, file
}

// Dump runs mysqldump. It succeeds only if the tool exits cleanly and the
// result file exists.
func (m *MySQL) Dump(ctx context.Context, dir string) (string, error) {
	if m.cfg.Name == "" {
		return "", fmt.Errorf("mysql: database name is required")
	}

	cmd, file := m.Command(dir)
	m.logger.Info("dumping database", "database", m.cfg.Name, "host", m.cfg.Host)

	if _, err := m.runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("mysqldump: %w", err)
	}
	if _, err := os.Stat(file); err != nil {
		return "", fmt.Errorf("mysqldump: %w: %s", ErrNoOutput, file)
	}
	return file, nil
}
