package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"deepstore-hq/deepstore/pkg/command"
	"deepstore-hq/deepstore/pkg/retention"
)

// Exec is a Transport that runs the system scp and ssh binaries.
type Exec struct {
	cfg    Config
	runner command.Runner
	logger *slog.Logger
}

// NewExec creates an exec transport.
func NewExec(cfg Config, runner command.Runner, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{cfg: cfg, runner: runner, logger: logger}
}

// Name returns "remote".
func (e *Exec) Name() string { return "remote" }

// options are shared by scp and ssh. portFlag is -P for scp and -p for ssh.
func (e *Exec) options(portFlag string) []string {
	args := []string{
		portFlag, strconv.Itoa(e.cfg.port()),
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
	}
	if key := e.cfg.keyFile(); key != "" {
		args = append(args, "-i", key)
	}
	return args
}

// UploadCommand builds the scp invocation for localPath.
func (e *Exec) UploadCommand(localPath, name string) command.Command {
	args := e.options("-P")
	args = append(args, localPath, fmt.Sprintf("%s:%s/%s", e.cfg.Target(), e.cfg.RemoteDir(), name))
	return command.Command{Name: "scp", Args: args, Timeout: e.cfg.Timeout}
}

// RemoteCommand builds an ssh invocation running script on the remote host.
func (e *Exec) RemoteCommand(script string) command.Command {
	args := e.options("-p")
	args = append(args, e.cfg.Target(), script)
	return command.Command{Name: "ssh", Args: args, Timeout: e.cfg.Timeout}
}

// Upload copies localPath to the remote directory with scp.
func (e *Exec) Upload(ctx context.Context, localPath, name string) error {
	if err := validName(name); err != nil {
		return err
	}

	e.logger.Info("uploading archive", "archive", name, "destination", e.cfg.RemoteDir())
	return withRetry(ctx, e.cfg.UploadRetries, e.logger, func() error {
		if _, err := e.runner.Run(ctx, e.UploadCommand(localPath, name)); err != nil {
			return fmt.Errorf("scp: %w", err)
		}
		return nil
	})
}

// List returns the names in the remote directory.
func (e *Exec) List(ctx context.Context) ([]string, error) {
	res, err := e.runner.Run(ctx, e.RemoteCommand(listCommand(e.cfg.RemoteDir())))
	if err != nil {
		return nil, fmt.Errorf("ssh ls: %w", err)
	}
	return retention.ParseListing(res.Stdout), nil
}

// Delete removes one archive from the remote directory.
func (e *Exec) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := e.runner.Run(ctx, e.RemoteCommand(deleteCommand(e.cfg.RemoteDir(), name))); err != nil {
		return fmt.Errorf("ssh rm: %w", err)
	}
	return nil
}

// Close is a no-op.
func (e *Exec) Close() error { return nil }
