package backup

import (
	"errors"
	"path/filepath"
	"testing"

	"deepstore-hq/deepstore/pkg/config"
	"deepstore-hq/deepstore/pkg/dump"
	"deepstore-hq/deepstore/pkg/lock"
	"deepstore-hq/deepstore/pkg/notify"
	"deepstore-hq/deepstore/pkg/transfer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backup.Path = filepath.Join(dir, "backups")
	cfg.Backup.SourcePath = dir
	cfg.Database.Driver = dump.DriverNone
	cfg.History.Enabled = false
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig(t)

	r, err := New(cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer r.Close()

	if r.Transport != nil {
		t.Error("transport configured without a remote")
	}
	if r.Retention == nil || r.Retention.Policy.LatestToKeep != 7 || !r.Retention.Policy.KeepFirstOfMonth {
		t.Errorf("retention = %+v", r.Retention)
	}
	if r.Retention.ListTimeout != cfg.Retention.ListTimeout {
		t.Errorf("ListTimeout = %v", r.Retention.ListTimeout)
	}
	if _, ok := r.Locker.(*lock.File); !ok {
		t.Errorf("Locker = %T, want *lock.File", r.Locker)
	}
	if _, ok := r.Notifier.(notify.Nop); !ok {
		t.Errorf("Notifier = %T, want notify.Nop", r.Notifier)
	}
	if r.History != nil {
		t.Error("history opened while disabled")
	}
	if r.Dumper.Name() != dump.DriverNone {
		t.Errorf("Dumper = %s", r.Dumper.Name())
	}
	if got := r.Codec.Encode(r.now()); filepath.Ext(got) != ".gz" {
		t.Errorf("codec encodes %q", got)
	}
}

func TestNew_FullConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention.Enabled = false
	cfg.Remote.Host = "backup.example.com"
	cfg.Remote.User = "deploy"
	cfg.Remote.Path = "/srv/backups/"
	cfg.Lock.Backend = "none"
	cfg.Notify.WebhookURL = "https://forge.example.com/hook"
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")

	r, err := New(cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer r.Close()

	if r.Transport == nil || r.Transport.Name() != "remote" {
		t.Errorf("Transport = %v", r.Transport)
	}
	if r.Retention != nil {
		t.Error("retention built while disabled")
	}
	if _, ok := r.Locker.(lock.Noop); !ok {
		t.Errorf("Locker = %T", r.Locker)
	}
	if m, ok := r.Notifier.(notify.Multi); !ok || len(m) != 1 {
		t.Errorf("Notifier = %#v", r.Notifier)
	}
	if r.History == nil {
		t.Error("history not opened")
	}
}

func TestNew_InvalidArchiveFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Prefix = "backups/archive_"

	if _, err := New(cfg, WithLogger(quietLogger())); err == nil {
		t.Error("New() with a prefix containing a path separator should fail")
	}
}

func TestNewTransport_Disabled(t *testing.T) {
	cfg := testConfig(t)
	if _, err := NewTransport(cfg, nil, quietLogger()); !errors.Is(err, transfer.ErrDisabled) {
		t.Errorf("NewTransport() error = %v, want ErrDisabled", err)
	}
}

func TestTransferConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Host = "h"
	cfg.Remote.User = "u"
	cfg.Remote.Path = "/p"
	cfg.Remote.SSHKeyPath = "/keys/id_ed25519"

	tc := TransferConfig(cfg)
	if !tc.Enabled() || tc.KeyPath != "/keys/id_ed25519" || tc.Port != 22 || tc.UploadRetries != 3 {
		t.Errorf("TransferConfig() = %+v", tc)
	}
}
