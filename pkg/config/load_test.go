package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deepstore.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
backup:
  path: /srv/backups
archive:
  prefix: site_
retention:
  latest: 0
  keep_first_of_month: false
  list_timeout: 1m
database:
  driver: postgres
  name: app
remote:
  host: backup.example.com
  user: deploy
  path: /backups/
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Backup.Path != "/srv/backups" || cfg.Archive.Prefix != "site_" {
		t.Errorf("file values not applied: %+v", cfg.Backup)
	}
	if cfg.Retention.Latest != 0 || cfg.Retention.KeepFirstOfMonth {
		t.Errorf("explicit zero values lost: %+v", cfg.Retention)
	}
	if !cfg.Retention.Enabled {
		t.Error("retention.enabled default lost")
	}
	if cfg.Retention.ListTimeout != time.Minute {
		t.Errorf("list_timeout = %v", cfg.Retention.ListTimeout)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("postgres port default = %d", cfg.Database.Port)
	}
	if !cfg.Remote.Enabled() {
		t.Error("remote should be enabled")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := LoadConfig(path)

	// Defaults alone fail validation: the mysql driver needs a name.
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("LoadConfig() error = %v, want ValidationError", err)
	}
	if len(ve.Errors) != 1 || ve.Errors[0].Field != "database.name" {
		t.Errorf("errors = %v", ve.Errors)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "backup: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() should fail on invalid YAML")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"DEEPSTORE_BACKUP_PATH":                   "/data/backups",
		"DEEPSTORE_REMOTE_HOST":                   "vault.example.com",
		"DEEPSTORE_REMOTE_PORT":                   "2222",
		"DEEPSTORE_INCLUDE_DIRECTORIES":           "app, uploads,,",
		"DEEPSTORE_WHITELIST_FILES":               "*.pdf",
		"DEEPSTORE_BLACKLIST_FILES":               ".env",
		"DEEPSTORE_INCLUDE_FILES":                 "manifest.json",
		"DEEPSTORE_EXCLUDE_TABLES":                "sessions,cache",
		"DEEPSTORE_FORGE_WEBHOOK_URL":             "https://forge.example/hook",
		"DEEPSTORE_RETENTION_LATEST":              "3",
		"DEEPSTORE_RETENTION_KEEP_FIRST_OF_MONTH": "false",
		"DEEPSTORE_LOCK_TTL":                      "2h",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := applyEnvOverrides(cfg, lookup); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Backup.Path != "/data/backups" || cfg.Remote.Host != "vault.example.com" || cfg.Remote.Port != 2222 {
		t.Errorf("scalar overrides = %+v %+v", cfg.Backup, cfg.Remote)
	}
	if !reflect.DeepEqual(cfg.Storage.IncludeDirectories, []string{"app", "uploads"}) {
		t.Errorf("include_directories = %q", cfg.Storage.IncludeDirectories)
	}
	if !reflect.DeepEqual(cfg.Storage.IncludeFiles, []string{"*.pdf"}) ||
		!reflect.DeepEqual(cfg.Storage.ExcludeFiles, []string{".env"}) ||
		!reflect.DeepEqual(cfg.Storage.AlwaysIncludeFiles, []string{"manifest.json"}) {
		t.Errorf("file lists = %+v", cfg.Storage)
	}
	if !reflect.DeepEqual(cfg.Database.ExcludeTables, []string{"sessions", "cache"}) {
		t.Errorf("exclude_tables = %q", cfg.Database.ExcludeTables)
	}
	if cfg.Notify.WebhookURL != "https://forge.example/hook" {
		t.Errorf("webhook_url = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Retention.Latest != 3 || cfg.Retention.KeepFirstOfMonth {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if cfg.Lock.TTL != 2*time.Hour {
		t.Errorf("lock.ttl = %v", cfg.Lock.TTL)
	}
}

func TestApplyEnvOverrides_InvalidValue(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "DEEPSTORE_REMOTE_PORT" {
			return "twenty-two", true
		}
		return "", false
	}

	err := applyEnvOverrides(Default(), lookup)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Errors[0].Field != "DEEPSTORE_REMOTE_PORT" {
		t.Errorf("applyEnvOverrides() error = %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: none\n")
	t.Setenv("DEEPSTORE_ARCHIVE_PREFIX", "env_")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Archive.Prefix != "env_" {
		t.Errorf("prefix = %q, want env_", cfg.Archive.Prefix)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{",,", nil},
		{"a", []string{"a"}},
		{" a , b ,", []string{"a", "b"}},
	}
	for _, tt := range tests {
		if got := SplitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
