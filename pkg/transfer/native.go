package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"deepstore-hq/deepstore/pkg/command"
	"deepstore-hq/deepstore/pkg/retention"
)

const defaultDialTimeout = 30 * time.Second

// CommandError is a remote command that exited with a non-zero status.
type CommandError struct {
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q exited with status %d: %s",
		e.Command, e.ExitStatus, strings.TrimSpace(e.Stderr))
}

// Native is a Transport that speaks SSH in-process. The connection is
// opened on first use and reused until Close.
type Native struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	client    *ssh.Client
	agentConn net.Conn
}

// NewNative creates a native SSH transport.
func NewNative(cfg Config, logger *slog.Logger) *Native {
	if logger == nil {
		logger = slog.Default()
	}
	return &Native{cfg: cfg, logger: logger}
}

// Name returns "remote".
func (n *Native) Name() string { return "remote" }

func (n *Native) clientConfig() (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod

	if key := n.cfg.keyFile(); key != "" {
		pem, err := os.ReadFile(key)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", key, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	if n.agentConn != nil {
		n.agentConn.Close()
		n.agentConn = nil
	}
	if sshagent.Available() {
		ag, conn, err := sshagent.New()
		if err != nil {
			n.logger.Debug("ssh agent unavailable", "error", err)
		} else {
			n.agentConn = conn
			auths = append(auths, ssh.PublicKeysCallback(ag.Signers))
		}
	}

	if len(auths) == 0 {
		return nil, errors.New("no ssh credentials: set ssh_key_path or run an ssh agent")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if n.cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(n.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	timeout := n.cfg.Timeout
	if timeout <= 0 || timeout > defaultDialTimeout {
		timeout = defaultDialTimeout
	}

	return &ssh.ClientConfig{
		User:            n.cfg.User,
		Auth:            auths,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

func (n *Native) connect(ctx context.Context) (*ssh.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil {
		return n.client, nil
	}

	cfg, err := n.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.port()))
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// ssh.ClientConfig.Timeout only applies inside ssh.Dial, so the
	// handshake is bounded here by the dial timeout and ctx.
	deadline := time.Now().Add(cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if !stop() || err != nil {
		conn.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	n.client = ssh.NewClient(c, chans, reqs)
	n.logger.Debug("ssh connection established", "address", addr)
	return n.client, nil
}

// reset drops a connection that may be broken so the next call redials.
func (n *Native) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil {
		n.client.Close()
		n.client = nil
	}
}

func (n *Native) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, n.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// run executes script in a new session and returns its stdout.
func (n *Native) run(ctx context.Context, script string) (string, error) {
	ctx, cancel := n.opContext(ctx)
	defer cancel()

	client, err := n.connect(ctx)
	if err != nil {
		return "", err
	}

	sess, err := client.NewSession()
	if err != nil {
		n.reset()
		return "", fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(script) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		sess.Close()
		return "", ctx.Err()
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &CommandError{
				Command:    script,
				ExitStatus: exitErr.ExitStatus(),
				Stderr:     stderr.String(),
			}
		}
		n.reset()
		return "", err
	}
	return stdout.String(), nil
}

// Upload sends localPath with the scp sink protocol.
func (n *Native) Upload(ctx context.Context, localPath, name string) error {
	if err := validName(name); err != nil {
		return err
	}

	n.logger.Info("uploading archive", "archive", name, "destination", n.cfg.RemoteDir())
	return withRetry(ctx, n.cfg.UploadRetries, n.logger, func() error {
		err := n.upload(ctx, localPath, name)
		if err != nil {
			n.reset()
		}
		return err
	})
}

func (n *Native) upload(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	ctx, cancel := n.opContext(ctx)
	defer cancel()

	client, err := n.connect(ctx)
	if err != nil {
		return err
	}

	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	if err := sess.Start("scp -qt " + command.Quote(n.cfg.RemoteDir())); err != nil {
		return fmt.Errorf("start scp sink: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()

	sendErr := scpSend(stdin, stdout, name, 0o644, info.Size(), f)
	stdin.Close()
	waitErr := sess.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sendErr != nil {
		return fmt.Errorf("scp %s: %w", name, sendErr)
	}
	if waitErr != nil {
		return fmt.Errorf("scp %s: %w: %s", name, waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// List returns the names in the remote directory.
func (n *Native) List(ctx context.Context) ([]string, error) {
	out, err := n.run(ctx, listCommand(n.cfg.RemoteDir()))
	if err != nil {
		return nil, err
	}
	return retention.ParseListing(out), nil
}

// Delete removes one archive from the remote directory.
func (n *Native) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	_, err := n.run(ctx, deleteCommand(n.cfg.RemoteDir(), name))
	return err
}

// Close closes the SSH connection and the agent socket.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	if n.client != nil {
		errs = append(errs, n.client.Close())
		n.client = nil
	}
	if n.agentConn != nil {
		errs = append(errs, n.agentConn.Close())
		n.agentConn = nil
	}
	return errors.Join(errs...)
}
