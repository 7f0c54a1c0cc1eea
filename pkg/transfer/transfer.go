// Package transfer ships archives to a remote host over SSH and exposes
// the remote backup directory as a retention.Store.
//
// Two transports are available. The exec transport shells out to the
// system scp and ssh binaries. The native transport speaks SSH directly
// with golang.org/x/crypto/ssh and uploads with the scp sink protocol, so
// no client binaries are needed on the host.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"deepstore-hq/deepstore/pkg/command"
	"deepstore-hq/deepstore/pkg/retention"
)

// Transport modes.
const (
	ModeExec   = "exec"
	ModeNative = "native"
)

// ErrDisabled is returned by New when host, user or path is missing.
var ErrDisabled = errors.New("remote transfer is not configured")

// Config describes the remote destination.
type Config struct {
	Host    string
	User    string
	Path    string
	Port    int
	KeyPath string

	// Mode selects the transport: "exec" (default) or "native".
	Mode string

	// KnownHostsPath enables host key verification in native mode. When
	// empty any host key is accepted, matching the exec transport.
	KnownHostsPath string

	// Timeout bounds a single remote operation.
	Timeout time.Duration

	// UploadRetries is the number of extra upload attempts after a failure.
	UploadRetries int
}

// Enabled reports whether host, user and path are all set.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" &&
		strings.TrimSpace(c.User) != "" &&
		strings.TrimSpace(c.Path) != ""
}

// RemoteDir returns Path without trailing slashes.
func (c Config) RemoteDir() string {
	p := strings.TrimRight(c.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

// Target returns user@host.
func (c Config) Target() string {
	return c.User + "@" + c.Host
}

func (c Config) port() int {
	if c.Port <= 0 {
		return 22
	}
	return c.Port
}

// keyFile returns the configured key path if the file exists.
func (c Config) keyFile() string {
	if c.KeyPath == "" {
		return ""
	}
	if _, err := os.Stat(c.KeyPath); err != nil {
		return ""
	}
	return c.KeyPath
}

// Transport uploads archives and manages the remote archive directory.
type Transport interface {
	retention.Store

	// Upload copies the local file to <remote path>/<name>.
	Upload(ctx context.Context, localPath, name string) error

	// Close releases any open connection.
	Close() error
}

// New returns the transport selected by cfg.Mode.
func New(cfg Config, runner command.Runner, logger *slog.Logger) (Transport, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transfer", "host", cfg.Host, "mode", cfg.Mode)

	switch cfg.Mode {
	case ModeExec, "":
		return NewExec(cfg, runner, logger), nil
	case ModeNative:
		return NewNative(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown transfer mode %q", cfg.Mode)
	}
}

// listCommand is the remote shell command that lists the archive directory.
func listCommand(dir string) string {
	return "ls -1 " + command.Quote(dir) + " 2>/dev/null"
}

// deleteCommand is the remote shell command that removes one archive.
func deleteCommand(dir, name string) string {
	return "rm -f " + command.Quote(dir+"/"+name)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\n\x00") {
		return fmt.Errorf("invalid archive name %q", name)
	}
	return nil
}

// withRetry runs op, retrying up to retries more times with exponential
// backoff. Context cancellation stops retrying.
func withRetry(ctx context.Context, retries int, logger *slog.Logger, op func() error) error {
	if retries <= 0 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op()
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			logger.Warn("upload attempt failed", "attempt", attempt, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(retries+1)))
	return err
}
