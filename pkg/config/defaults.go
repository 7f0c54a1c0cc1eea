package config

import "time"

// Default values for configuration fields.
const (
	DefaultBackupPath  = "storage/app/deepstore"
	DefaultSourcePath  = "storage"
	DefaultCommandName = "deepstore:store"

	DefaultArchivePrefix     = "archive_"
	DefaultArchiveDateFormat = "YYYY-MM-DD"
	DefaultCompressionLevel  = -1

	DefaultRetentionLatest      = 7
	DefaultRetentionListTimeout = 30 * time.Second

	DefaultDatabaseDriver  = "mysql"
	DefaultDatabaseHost    = "127.0.0.1"
	DefaultDatabaseTimeout = 30 * time.Minute

	DefaultRemotePort          = 22
	DefaultRemoteMode          = "exec"
	DefaultRemoteTimeout       = 10 * time.Minute
	DefaultRemoteUploadRetries = 3

	DefaultWebhookTimeout = 5 * time.Second
	DefaultNATSSubject    = "deepstore.runs"

	DefaultScheduleCron    = "0 2 * * *"
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLockBackend  = "file"
	DefaultLockFileName = ".deepstore.lock"
	DefaultLockTTL      = 6 * time.Hour
	DefaultLockRedisKey = "deepstore:lock"

	DefaultHistoryPath   = "data/deepstore.db"
	DefaultHistoryMaxAge = 90 * 24 * time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "deepstore"

	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampler     = "always"
	DefaultTracingRatio       = 1.0
	DefaultTracingServiceName = "deepstore"
	DefaultTracingTimeout     = 10 * time.Second

	DefaultHealthCheckTimeout = 5 * time.Second
	DefaultHealthMaxRunAge    = 26 * time.Hour
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := baseConfig()
	ApplyDefaults(cfg)
	return cfg
}

// baseConfig holds the defaults whose zero value is meaningful. Loading
// decodes the YAML file on top of it, so booleans and counts that default
// to non-zero values can still be set to false or 0 explicitly.
func baseConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			CompressionLevel: DefaultCompressionLevel,
		},
		Retention: RetentionConfig{
			Enabled:          true,
			Latest:           DefaultRetentionLatest,
			KeepFirstOfMonth: true,
			Remote:           true,
		},
		Database: DatabaseConfig{
			Preflight: true,
		},
		Schedule: ScheduleConfig{
			WatchConfig: true,
		},
		History: HistoryConfig{
			Enabled: true,
			MaxAge:  DefaultHistoryMaxAge,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactSecrets: true},
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{Insecure: true, SampleRatio: DefaultTracingRatio},
			Health:  HealthConfig{MaxRunAge: DefaultHealthMaxRunAge},
		},
	}
}

// ApplyDefaults fills empty string, duration and port fields. Fields whose
// zero value is meaningful (retention.latest, booleans) are left alone.
func ApplyDefaults(cfg *Config) {
	b := &cfg.Backup
	setString(&b.Path, DefaultBackupPath)
	setString(&b.SourcePath, DefaultSourcePath)
	setString(&b.CommandName, DefaultCommandName)

	a := &cfg.Archive
	setString(&a.Prefix, DefaultArchivePrefix)
	setString(&a.DateFormat, DefaultArchiveDateFormat)

	setDuration(&cfg.Retention.ListTimeout, DefaultRetentionListTimeout)

	d := &cfg.Database
	setString(&d.Driver, DefaultDatabaseDriver)
	setString(&d.Host, DefaultDatabaseHost)
	if d.Port == 0 {
		switch d.Driver {
		case "mysql", "mariadb":
			d.Port = 3306
		case "postgres", "postgresql", "pgsql":
			d.Port = 5432
		}
	}
	setDuration(&d.Timeout, DefaultDatabaseTimeout)

	r := &cfg.Remote
	if r.Port == 0 {
		r.Port = DefaultRemotePort
	}
	setString(&r.Mode, DefaultRemoteMode)
	setDuration(&r.Timeout, DefaultRemoteTimeout)
	if r.UploadRetries == 0 {
		r.UploadRetries = DefaultRemoteUploadRetries
	}

	setDuration(&cfg.Notify.WebhookTimeout, DefaultWebhookTimeout)
	setString(&cfg.Notify.NATSSubject, DefaultNATSSubject)

	setString(&cfg.Schedule.Cron, DefaultScheduleCron)
	setDuration(&cfg.Schedule.ShutdownTimeout, DefaultShutdownTimeout)

	l := &cfg.Lock
	setString(&l.Backend, DefaultLockBackend)
	setDuration(&l.TTL, DefaultLockTTL)
	setString(&l.RedisKey, DefaultLockRedisKey)

	setString(&cfg.History.Path, DefaultHistoryPath)

	t := &cfg.Telemetry
	setString(&t.Logging.Level, DefaultLogLevel)
	setString(&t.Logging.Format, DefaultLogFormat)
	setString(&t.Metrics.ListenAddress, DefaultMetricsListenAddress)
	setString(&t.Metrics.Path, DefaultMetricsPath)
	setString(&t.Metrics.Namespace, DefaultMetricsNamespace)
	setString(&t.Tracing.Endpoint, DefaultTracingEndpoint)
	setString(&t.Tracing.Sampler, DefaultTracingSampler)
	setString(&t.Tracing.ServiceName, DefaultTracingServiceName)
	setDuration(&t.Tracing.Timeout, DefaultTracingTimeout)
	setDuration(&t.Health.CheckTimeout, DefaultHealthCheckTimeout)
}

func setString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

func setDuration(field *time.Duration, def time.Duration) {
	if *field == 0 {
		*field = def
	}
}
