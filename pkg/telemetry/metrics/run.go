package metrics

import (
	"time"

	"deepstore-hq/deepstore/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics tracks backup runs.
//
// Metrics:
//   - deepstore_runs_total: runs by status
//   - deepstore_run_duration_seconds: run duration histogram
//   - deepstore_stage_duration_seconds: per-stage duration histogram
//   - deepstore_archive_size_bytes: size of the newest archive
//   - deepstore_last_success_timestamp_seconds: unix time of the last good run
type RunMetrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	archiveSize   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewRunMetrics creates and registers run metrics with the provided registry.
func NewRunMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RunMetrics {
	rm := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "runs_total",
				Help:      "Total number of backup runs by status",
			},
			[]string{"status"},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of backup runs in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Duration of individual backup stages in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"stage"},
		),

		archiveSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "archive_size_bytes",
				Help:      "Size of the most recently built archive",
			},
		),

		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix timestamp of the last successful backup run",
			},
		),
	}

	registry.MustRegister(
		rm.runsTotal,
		rm.runDuration,
		rm.stageDuration,
		rm.archiveSize,
		rm.lastSuccess,
	)

	return rm
}

// RecordRun records a finished run.
func (rm *RunMetrics) RecordRun(status string, duration time.Duration, archiveSize int64, finished time.Time) {
	rm.runsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		rm.runDuration.Observe(duration.Seconds())
	}
	if archiveSize > 0 {
		rm.archiveSize.Set(float64(archiveSize))
	}
	if status == "success" && !finished.IsZero() {
		rm.lastSuccess.Set(float64(finished.Unix()))
	}
}

// RecordStage records one stage duration.
func (rm *RunMetrics) RecordStage(stage string, duration time.Duration) {
	rm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
