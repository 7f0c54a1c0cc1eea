package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"deepstore-hq/deepstore/pkg/archive"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "retention.latest").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the whole configuration and returns every problem found
// as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateBackup(&cfg.Backup)...)
	errs = append(errs, validateArchive(&cfg.Archive)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateSchedule(&cfg.Schedule)...)
	errs = append(errs, validateLock(&cfg.Lock)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateBackup(b *BackupConfig) []FieldError {
	var errs []FieldError
	if b.Path == "" {
		errs = append(errs, FieldError{"backup.path", "must not be empty"})
	}
	if b.SourcePath == "" {
		errs = append(errs, FieldError{"backup.source_path", "must not be empty"})
	}
	return errs
}

func validateArchive(a *ArchiveConfig) []FieldError {
	var errs []FieldError
	if _, err := archive.NewCodec(a.Prefix, a.DateFormat); err != nil {
		errs = append(errs, FieldError{"archive.date_format", err.Error()})
	}
	if a.CompressionLevel < -1 || a.CompressionLevel > 9 {
		errs = append(errs, FieldError{"archive.compression_level", "must be between -1 and 9"})
	}
	return errs
}

func validateRetention(r *RetentionConfig) []FieldError {
	var errs []FieldError
	if r.Latest < 0 {
		errs = append(errs, FieldError{"retention.latest", "must not be negative"})
	}
	if r.ListTimeout < 0 {
		errs = append(errs, FieldError{"retention.list_timeout", "must not be negative"})
	}
	return errs
}

func validateDatabase(d *DatabaseConfig) []FieldError {
	var errs []FieldError
	switch strings.ToLower(d.Driver) {
	case "mysql", "mariadb", "postgres", "postgresql", "pgsql":
		if d.Name == "" {
			errs = append(errs, FieldError{"database.name", "required for driver " + d.Driver})
		}
		if d.Port < 1 || d.Port > 65535 {
			errs = append(errs, FieldError{"database.port", "must be between 1 and 65535"})
		}
	case "sqlite", "sqlite3":
		if d.Path == "" {
			errs = append(errs, FieldError{"database.path", "required for driver sqlite"})
		}
	case "none":
	default:
		errs = append(errs, FieldError{"database.driver", fmt.Sprintf("unsupported driver %q (valid: mysql, postgres, sqlite, none)", d.Driver)})
	}
	return errs
}

func validateRemote(r *RemoteConfig) []FieldError {
	var errs []FieldError

	set := 0
	for _, v := range []string{r.Host, r.User, r.Path} {
		if v != "" {
			set++
		}
	}
	if set > 0 && set < 3 {
		errs = append(errs, FieldError{"remote", "host, user and path must be set together"})
	}
	if r.Port < 1 || r.Port > 65535 {
		errs = append(errs, FieldError{"remote.port", "must be between 1 and 65535"})
	}
	if r.Mode != "exec" && r.Mode != "native" {
		errs = append(errs, FieldError{"remote.mode", fmt.Sprintf("must be exec or native, got %q", r.Mode)})
	}
	if r.UploadRetries < 0 {
		errs = append(errs, FieldError{"remote.upload_retries", "must not be negative"})
	}
	return errs
}

func validateNotify(n *NotifyConfig) []FieldError {
	var errs []FieldError
	if n.WebhookURL != "" {
		u, err := url.Parse(n.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{"notify.webhook_url", "must be an http or https URL"})
		}
	}
	if n.NATSURL != "" && n.NATSSubject == "" {
		errs = append(errs, FieldError{"notify.nats_subject", "required when nats_url is set"})
	}
	return errs
}

func validateSchedule(s *ScheduleConfig) []FieldError {
	if _, err := cron.ParseStandard(s.Cron); err != nil {
		return []FieldError{{"schedule.cron", fmt.Sprintf("invalid cron expression: %v", err)}}
	}
	return nil
}

func validateLock(l *LockConfig) []FieldError {
	var errs []FieldError
	switch l.Backend {
	case "file", "none":
	case "redis":
		if l.RedisAddr == "" {
			errs = append(errs, FieldError{"lock.redis_addr", "required for backend redis"})
		}
	default:
		errs = append(errs, FieldError{"lock.backend", fmt.Sprintf("must be file, redis or none, got %q", l.Backend)})
	}
	if l.TTL < 0 {
		errs = append(errs, FieldError{"lock.ttl", "must not be negative"})
	}
	return errs
}

func validateHistory(h *HistoryConfig) []FieldError {
	if h.Enabled && h.Path == "" {
		return []FieldError{{"history.path", "required when history is enabled"}}
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(t.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{"telemetry.logging.level", fmt.Sprintf("invalid level %q", t.Logging.Level)})
	}
	switch strings.ToLower(t.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{"telemetry.logging.format", fmt.Sprintf("invalid format %q", t.Logging.Format)})
	}

	if t.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(t.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{"telemetry.metrics.listen_address", err.Error()})
		}
		if !strings.HasPrefix(t.Metrics.Path, "/") {
			errs = append(errs, FieldError{"telemetry.metrics.path", "must start with /"})
		}
	}

	if t.Tracing.Enabled {
		if t.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{"telemetry.tracing.endpoint", "required when tracing is enabled"})
		}
		switch t.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{"telemetry.tracing.sampler", fmt.Sprintf("invalid sampler %q", t.Tracing.Sampler)})
		}
	}
	if t.Tracing.SampleRatio < 0 || t.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{"telemetry.tracing.sample_ratio", "must be between 0.0 and 1.0"})
	}
	return errs
}
