package config

import (
	"path/filepath"
	"time"

	"deepstore-hq/deepstore/pkg/retention"
)

// Config is the root configuration structure for deepstore.
// It contains all configuration sections for the backup runner, retention,
// transport, scheduling and telemetry.
type Config struct {
	// Backup contains the local archive directory and the source tree.
	Backup BackupConfig `yaml:"backup"`

	// Archive controls archive naming and compression.
	Archive ArchiveConfig `yaml:"archive"`

	// Retention controls which archives are kept.
	Retention RetentionConfig `yaml:"retention"`

	// Database selects the database dumped into each archive.
	Database DatabaseConfig `yaml:"database"`

	// Storage selects the files collected into each archive.
	Storage StorageConfig `yaml:"storage"`

	// Remote is the off-site copy target.
	Remote RemoteConfig `yaml:"remote"`

	// Notify configures completion notifications.
	Notify NotifyConfig `yaml:"notify"`

	// Schedule configures the daemon.
	Schedule ScheduleConfig `yaml:"schedule"`

	// Lock prevents overlapping runs.
	Lock LockConfig `yaml:"lock"`

	// History configures the run ledger.
	History HistoryConfig `yaml:"history"`

	// Telemetry contains logging, metrics, and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackupConfig contains the paths a run works with.
type BackupConfig struct {
	// Path is the local directory archives are written to.
	// Default: "storage/app/deepstore"
	Path string `yaml:"path"`

	// SourcePath is the file tree collected into the archive.
	// Default: "storage"
	SourcePath string `yaml:"source_path"`

	// CommandName is reported in notifications.
	// Default: "deepstore:store"
	CommandName string `yaml:"command_name"`
}

// ArchiveConfig controls archive naming and compression.
type ArchiveConfig struct {
	// Prefix starts every archive name.
	// Default: "archive_"
	Prefix string `yaml:"prefix"`

	// DateFormat is the date pattern embedded in names (YYYY, MM, DD, HH,
	// mm, ss tokens, or a Go reference layout).
	// Default: "YYYY-MM-DD"
	DateFormat string `yaml:"date_format"`

	// CompressionLevel is the gzip level (-1 for the library default, 1-9).
	// Default: -1
	CompressionLevel int `yaml:"compression_level"`
}

// RetentionConfig controls which archives survive pruning.
type RetentionConfig struct {
	// Enabled runs retention after each successful archive build.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Latest is the number of newest archives always kept.
	// Default: 7
	Latest int `yaml:"latest"`

	// KeepFirstOfMonth keeps the earliest archive of every month.
	// Default: true
	KeepFirstOfMonth bool `yaml:"keep_first_of_month"`

	// Remote also prunes the remote directory.
	// Default: true
	Remote bool `yaml:"remote"`

	// ListTimeout bounds listing a target.
	// Default: 30s
	ListTimeout time.Duration `yaml:"list_timeout"`
}

// DatabaseConfig selects the database dumped into each archive.
type DatabaseConfig struct {
	// Driver is one of "mysql", "postgres", "sqlite" or "none".
	// Default: "mysql"
	Driver string `yaml:"driver"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`

	// IncludeTables limits the dump to these tables when set.
	IncludeTables []string `yaml:"include_tables"`

	// ExcludeTables are skipped. Ignored when IncludeTables is set.
	ExcludeTables []string `yaml:"exclude_tables"`

	// Timeout bounds the dump command.
	// Default: 30m
	Timeout time.Duration `yaml:"timeout"`

	// Preflight pings the database before dumping.
	// Default: true
	Preflight bool `yaml:"preflight"`
}

// StorageConfig selects files from Backup.SourcePath.
type StorageConfig struct {
	IncludeDirectories []string `yaml:"include_directories"`
	ExcludeDirectories []string `yaml:"exclude_directories"`

	// IncludeFiles is a file name whitelist (globs allowed).
	IncludeFiles []string `yaml:"include_files"`

	// ExcludeFiles is a file name blacklist. It always wins.
	ExcludeFiles []string `yaml:"exclude_files"`

	// AlwaysIncludeFiles are added on top of the whitelist.
	AlwaysIncludeFiles []string `yaml:"always_include_files"`
}

// RemoteConfig is the off-site copy target. Remote copies are enabled only
// when Host, User and Path are all set.
type RemoteConfig struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Path string `yaml:"path"`

	// Port is the SSH port.
	// Default: 22
	Port int `yaml:"port"`

	// SSHKeyPath is passed to ssh/scp when the file exists.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// Mode is "exec" (ssh and scp binaries) or "native" (in-process SSH).
	// Default: "exec"
	Mode string `yaml:"mode"`

	// KnownHostsPath enables host key checking in native mode.
	KnownHostsPath string `yaml:"known_hosts_path"`

	// Timeout bounds each remote operation.
	// Default: 10m
	Timeout time.Duration `yaml:"timeout"`

	// UploadRetries is how many times a failed upload is retried.
	// Default: 3
	UploadRetries int `yaml:"upload_retries"`
}

// Enabled reports whether a remote target is configured.
func (r RemoteConfig) Enabled() bool {
	return r.Host != "" && r.User != "" && r.Path != ""
}

// NotifyConfig configures completion notifications.
type NotifyConfig struct {
	// WebhookURL receives a JSON POST after each run.
	WebhookURL string `yaml:"webhook_url"`

	// WebhookTimeout bounds the POST.
	// Default: 5s
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`

	// NATSURL enables publishing run events to NATS.
	NATSURL string `yaml:"nats_url"`

	// NATSSubject is the subject events are published on.
	// Default: "deepstore.runs"
	NATSSubject string `yaml:"nats_subject"`
}

// ScheduleConfig configures the daemon.
type ScheduleConfig struct {
	// Cron is a standard five-field cron expression.
	// Default: "0 2 * * *"
	Cron string `yaml:"cron"`

	// RunOnStart runs a backup as soon as the daemon starts.
	RunOnStart bool `yaml:"run_on_start"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// WatchConfig reloads the configuration file when it changes.
	// Default: true
	WatchConfig bool `yaml:"watch_config"`
}

// LockConfig prevents overlapping runs.
type LockConfig struct {
	// Backend is "file", "redis" or "none".
	// Default: "file"
	Backend string `yaml:"backend"`

	// Path is the lock file for the file backend.
	// Default: "<backup.path>/.deepstore.lock"
	Path string `yaml:"path"`

	// TTL after which a held lock is considered abandoned.
	// Default: 6h
	TTL time.Duration `yaml:"ttl"`

	RedisAddr string `yaml:"redis_addr"`

	// RedisKey is the key the lock is stored under.
	// Default: "deepstore:lock"
	RedisKey string `yaml:"redis_key"`
}

// HistoryConfig configures the run ledger.
type HistoryConfig struct {
	// Enabled records every run in a SQLite database.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the database file.
	// Default: "data/deepstore.db"
	Path string `yaml:"path"`

	// MaxAge prunes older runs after each run. Zero keeps everything.
	// Default: 2160h (90 days)
	MaxAge time.Duration `yaml:"max_age"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks passwords and tokens in log output.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are recorded and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where the daemon serves metrics and health.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "deepstore"
	Namespace string `yaml:"namespace"`

	// Subsystem is an optional second prefix.
	Subsystem string `yaml:"subsystem"`

	// RunDurationBuckets are histogram buckets in seconds.
	RunDurationBuckets []float64 `yaml:"run_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Sampler is "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is used with the "ratio" sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service.name resource attribute.
	// Default: "deepstore"
	ServiceName string `yaml:"service_name"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains daemon health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// MaxRunAge fails readiness when the last successful run is older.
	// Zero disables the check.
	// Default: 26h
	MaxRunAge time.Duration `yaml:"max_run_age"`
}

// RetentionPolicy returns the policy value a run evaluates archives with.
func (c *Config) RetentionPolicy() retention.Policy {
	return retention.Policy{
		LatestToKeep:     c.Retention.Latest,
		KeepFirstOfMonth: c.Retention.KeepFirstOfMonth,
	}
}

// LockFile returns the lock file path, defaulting to a file inside the
// backup directory.
func (c *Config) LockFile() string {
	if c.Lock.Path != "" {
		return c.Lock.Path
	}
	return filepath.Join(c.Backup.Path, DefaultLockFileName)
}
