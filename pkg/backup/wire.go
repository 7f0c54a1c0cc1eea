package backup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"deepstore-hq/deepstore/pkg/archive"
	"deepstore-hq/deepstore/pkg/collect"
	"deepstore-hq/deepstore/pkg/command"
	"deepstore-hq/deepstore/pkg/config"
	"deepstore-hq/deepstore/pkg/dump"
	"deepstore-hq/deepstore/pkg/history"
	"deepstore-hq/deepstore/pkg/lock"
	"deepstore-hq/deepstore/pkg/notify"
	"deepstore-hq/deepstore/pkg/retention"
	"deepstore-hq/deepstore/pkg/transfer"
)

// Option customises a Runner built by New.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics Metrics
	tracer  Tracer
	history History
	runner  command.Runner
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records run and retention metrics.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer traces runs.
func WithTracer(t Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithHistory uses an already open ledger instead of opening the one in
// the configuration.
func WithHistory(h History) Option {
	return func(o *options) { o.history = h }
}

// WithCommandRunner replaces the process runner used for dump tools and
// the exec transport.
func WithCommandRunner(r command.Runner) Option {
	return func(o *options) { o.runner = r }
}

// New builds a Runner from configuration. Call Close when done.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "backup")
	if o.runner == nil {
		o.runner = command.NewExecRunner(cfg.Database.Timeout, o.logger)
	}

	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}

	dumper, err := dump.New(DumpConfig(cfg), o.runner, o.logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	r := &Runner{
		BackupDir:        cfg.Backup.Path,
		SourceDir:        cfg.Backup.SourcePath,
		CommandName:      cfg.Backup.CommandName,
		Codec:            codec,
		CompressionLevel: cfg.Archive.CompressionLevel,
		Dumper:           dumper,
		Preflight:        cfg.Database.Preflight,
		Collector:        NewCollector(cfg, o.logger),
		RemoteRetention:  cfg.Retention.Remote,
		HistoryMaxAge:    cfg.History.MaxAge,
		Metrics:          o.metrics,
		Tracer:           o.tracer,
		Logger:           logger,
	}

	transport, err := NewTransport(cfg, o.runner, o.logger)
	switch {
	case errors.Is(err, transfer.ErrDisabled):
	case err != nil:
		return nil, fmt.Errorf("remote: %w", err)
	default:
		r.Transport = transport
	}

	if cfg.Retention.Enabled {
		rm, _ := o.metrics.(retention.Metrics)
		r.Retention = NewEnforcer(cfg, codec, rm, o.logger)
	}

	locker, closeLock := NewLocker(cfg)
	r.Locker = locker
	if closeLock != nil {
		r.closers = append(r.closers, closeLock)
	}

	notifier, closers := NewNotifier(cfg)
	r.Notifier = notifier
	r.closers = append(r.closers, closers...)

	switch {
	case o.history != nil:
		r.History = o.history
	case cfg.History.Enabled:
		store, err := OpenHistory(cfg, o.logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.History = store
		r.closers = append(r.closers, store)
	}

	return r, nil
}

// NewCodec builds the archive name codec from configuration.
func NewCodec(cfg *config.Config) (*archive.Codec, error) {
	codec, err := archive.NewCodec(cfg.Archive.Prefix, cfg.Archive.DateFormat)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return codec, nil
}

// NewEnforcer builds the retention enforcer from configuration. m may be
// nil.
func NewEnforcer(cfg *config.Config, codec *archive.Codec, m retention.Metrics, logger *slog.Logger) *retention.Enforcer {
	e := retention.NewEnforcer(codec, cfg.RetentionPolicy(), logger)
	e.ListTimeout = cfg.Retention.ListTimeout
	if m != nil {
		e.Metrics = m
	}
	return e
}

// DumpConfig maps the database section onto the dumper configuration.
func DumpConfig(cfg *config.Config) dump.Config {
	d := cfg.Database
	return dump.Config{
		Driver:        d.Driver,
		Host:          d.Host,
		Port:          d.Port,
		User:          d.User,
		Password:      d.Password,
		Name:          d.Name,
		Path:          d.Path,
		IncludeTables: d.IncludeTables,
		ExcludeTables: d.ExcludeTables,
		Timeout:       d.Timeout,
	}
}

// TransferConfig maps the remote section onto the transport configuration.
func TransferConfig(cfg *config.Config) transfer.Config {
	r := cfg.Remote
	return transfer.Config{
		Host:           r.Host,
		User:           r.User,
		Path:           r.Path,
		Port:           r.Port,
		KeyPath:        r.SSHKeyPath,
		Mode:           r.Mode,
		KnownHostsPath: r.KnownHostsPath,
		Timeout:        r.Timeout,
		UploadRetries:  r.UploadRetries,
	}
}

// NewTransport opens the configured remote transport. It returns
// transfer.ErrDisabled when no remote is configured.
func NewTransport(cfg *config.Config, runner command.Runner, logger *slog.Logger) (transfer.Transport, error) {
	if runner == nil {
		runner = command.NewExecRunner(cfg.Remote.Timeout, logger)
	}
	return transfer.New(TransferConfig(cfg), runner, logger)
}

// NewCollector builds the file collector. The backup directory is always
// skipped so archives are never collected into newer archives.
func NewCollector(cfg *config.Config, logger *slog.Logger) *collect.Collector {
	s := cfg.Storage
	return collect.New(collect.Rules{
		IncludeDirectories: s.IncludeDirectories,
		ExcludeDirectories: s.ExcludeDirectories,
		IncludeFiles:       s.IncludeFiles,
		ExcludeFiles:       s.ExcludeFiles,
		AlwaysIncludeFiles: s.AlwaysIncludeFiles,
		SkipPaths:          []string{cfg.Backup.Path},
	}, logger)
}

// NewLocker builds the run lock. The returned closer is non-nil when a
// connection was opened for the lock.
func NewLocker(cfg *config.Config) (lock.Locker, io.Closer) {
	switch cfg.Lock.Backend {
	case "none":
		return lock.Noop{}, nil
	case "redis":
		l, client := lock.NewRedisFromAddr(cfg.Lock.RedisAddr, cfg.Lock.RedisKey, cfg.Lock.TTL)
		return l, client
	default:
		return lock.NewFile(cfg.LockFile(), cfg.Lock.TTL), nil
	}
}

// NewNotifier builds the notifiers configured in the notify section.
func NewNotifier(cfg *config.Config) (notify.Notifier, []io.Closer) {
	var (
		multi   notify.Multi
		closers []io.Closer
	)
	if cfg.Notify.WebhookURL != "" {
		multi = append(multi, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout))
	}
	if cfg.Notify.NATSURL != "" {
		n := notify.NewNATS(cfg.Notify.NATSURL, cfg.Notify.NATSSubject)
		multi = append(multi, n)
		closers = append(closers, n)
	}
	if len(multi) == 0 {
		return notify.Nop{}, nil
	}
	return multi, closers
}

// OpenHistory opens the run ledger configured in the history section.
func OpenHistory(cfg *config.Config, logger *slog.Logger) (*history.Store, error) {
	store, err := history.Open(history.Config{Path: cfg.History.Path}, logger)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return store, nil
}
