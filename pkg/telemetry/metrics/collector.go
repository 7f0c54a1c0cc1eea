package metrics

import (
	"time"

	"deepstore-hq/deepstore/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric deepstore exports. All methods are
// safe for concurrent use and no-ops when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	runMetrics       *RunMetrics
	retentionMetrics *RetentionMetrics
}

// NewCollector creates a collector and registers its metrics with registry.
// A nil registry gets a fresh one.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "deepstore"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "deepstore"
	}
	if len(cfg.RunDurationBuckets) == 0 {
		// Backups take from seconds to hours.
		cfg.RunDurationBuckets = []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}
	c.runMetrics = NewRunMetrics(cfg, registry)
	c.retentionMetrics = NewRetentionMetrics(cfg, registry)
	return c
}

// Registry returns the registry the collector registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRun records a finished backup run. status is "success" or "failed";
// archiveSize is ignored when zero.
func (c *Collector) RecordRun(status string, duration time.Duration, archiveSize int64, finished time.Time) {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordRun(status, duration, archiveSize, finished)
}

// RecordStage records how long one stage of a run took.
//
// Parameters:
//   - stage: "dump", "collect", "archive", "upload", "retention_local", ...
//   - duration: wall time of the stage
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordStage(stage, duration)
}

// RecordSkipped counts a run that did not start because the lock was held.
func (c *Collector) RecordSkipped() {
	if !c.config.Enabled {
		return
	}
	c.runMetrics.RecordRun("skipped", 0, 0, time.Time{})
}

// RecordRetention records one enforcement pass against target ("local" or
// "remote").
func (c *Collector) RecordRetention(target string, evaluated, deleted, failed int) {
	if !c.config.Enabled {
		return
	}
	c.retentionMetrics.Record(target, evaluated, deleted, failed)
}
