package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "DEEPSTORE_"

// LoadConfig loads configuration from a YAML file on top of the defaults
// and validates it. A missing file is not an error: deployments configured
// purely through the environment have none.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads the file and applies DEEPSTORE_*
// environment overrides. Environment variables take precedence.
//
// The loading sequence is:
// 1. Start from the base defaults
// 2. Decode the YAML file over it
// 3. Apply environment variable overrides
// 4. Fill remaining empty fields and validate
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := baseConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	key   string
	apply func(cfg *Config, val string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = val
		return nil
	}
}

func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*field(cfg) = SplitList(val)
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"BACKUP_PATH", str(func(c *Config) *string { return &c.Backup.Path })},
	{"SOURCE_PATH", str(func(c *Config) *string { return &c.Backup.SourcePath })},
	{"COMMAND_NAME", str(func(c *Config) *string { return &c.Backup.CommandName })},

	{"ARCHIVE_PREFIX", str(func(c *Config) *string { return &c.Archive.Prefix })},
	{"ARCHIVE_DATE_FORMAT", str(func(c *Config) *string { return &c.Archive.DateFormat })},

	{"RETENTION_ENABLED", boolean(func(c *Config) *bool { return &c.Retention.Enabled })},
	{"RETENTION_LATEST", integer(func(c *Config) *int { return &c.Retention.Latest })},
	{"RETENTION_KEEP_FIRST_OF_MONTH", boolean(func(c *Config) *bool { return &c.Retention.KeepFirstOfMonth })},
	{"RETENTION_REMOTE", boolean(func(c *Config) *bool { return &c.Retention.Remote })},

	{"DB_DRIVER", str(func(c *Config) *string { return &c.Database.Driver })},
	{"DB_HOST", str(func(c *Config) *string { return &c.Database.Host })},
	{"DB_PORT", integer(func(c *Config) *int { return &c.Database.Port })},
	{"DB_USER", str(func(c *Config) *string { return &c.Database.User })},
	{"DB_PASSWORD", str(func(c *Config) *string { return &c.Database.Password })},
	{"DB_NAME", str(func(c *Config) *string { return &c.Database.Name })},
	{"DB_PATH", str(func(c *Config) *string { return &c.Database.Path })},
	{"INCLUDE_TABLES", list(func(c *Config) *[]string { return &c.Database.IncludeTables })},
	{"EXCLUDE_TABLES", list(func(c *Config) *[]string { return &c.Database.ExcludeTables })},

	{"INCLUDE_DIRECTORIES", list(func(c *Config) *[]string { return &c.Storage.IncludeDirectories })},
	{"EXCLUDE_DIRECTORIES", list(func(c *Config) *[]string { return &c.Storage.ExcludeDirectories })},
	{"WHITELIST_FILES", list(func(c *Config) *[]string { return &c.Storage.IncludeFiles })},
	{"BLACKLIST_FILES", list(func(c *Config) *[]string { return &c.Storage.ExcludeFiles })},
	{"INCLUDE_FILES", list(func(c *Config) *[]string { return &c.Storage.AlwaysIncludeFiles })},

	{"REMOTE_HOST", str(func(c *Config) *string { return &c.Remote.Host })},
	{"REMOTE_USER", str(func(c *Config) *string { return &c.Remote.User })},
	{"REMOTE_PATH", str(func(c *Config) *string { return &c.Remote.Path })},
	{"REMOTE_PORT", integer(func(c *Config) *int { return &c.Remote.Port })},
	{"REMOTE_MODE", str(func(c *Config) *string { return &c.Remote.Mode })},
	{"SSH_KEY_PATH", str(func(c *Config) *string { return &c.Remote.SSHKeyPath })},
	{"KNOWN_HOSTS_PATH", str(func(c *Config) *string { return &c.Remote.KnownHostsPath })},

	{"FORGE_WEBHOOK_URL", str(func(c *Config) *string { return &c.Notify.WebhookURL })},
	{"NATS_URL", str(func(c *Config) *string { return &c.Notify.NATSURL })},
	{"NATS_SUBJECT", str(func(c *Config) *string { return &c.Notify.NATSSubject })},

	{"SCHEDULE", str(func(c *Config) *string { return &c.Schedule.Cron })},
	{"SHUTDOWN_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Schedule.ShutdownTimeout })},

	{"LOCK_BACKEND", str(func(c *Config) *string { return &c.Lock.Backend })},
	{"LOCK_PATH", str(func(c *Config) *string { return &c.Lock.Path })},
	{"LOCK_TTL", duration(func(c *Config) *time.Duration { return &c.Lock.TTL })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Lock.RedisAddr })},

	{"HISTORY_ENABLED", boolean(func(c *Config) *bool { return &c.History.Enabled })},
	{"HISTORY_PATH", str(func(c *Config) *string { return &c.History.Path })},

	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"METRICS_ENABLED", boolean(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{"METRICS_LISTEN_ADDRESS", str(func(c *Config) *string { return &c.Telemetry.Metrics.ListenAddress })},
	{"TRACING_ENABLED", boolean(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{"TRACING_ENDPOINT", str(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint })},
}

// applyEnvOverrides applies DEEPSTORE_* variables. Unset variables leave the
// field alone; a set but unparsable value is an error.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []FieldError
	for _, b := range envBindings {
		val, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{EnvPrefix + b.key, err.Error()})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// SplitList splits a comma separated value, trimming items and dropping
// empty ones.
func SplitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
