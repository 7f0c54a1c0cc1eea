package metrics

import (
	"deepstore-hq/deepstore/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RetentionMetrics tracks retention enforcement per target.
//
// Metrics:
//   - deepstore_retention_evaluated: archives evaluated in the last pass
//   - deepstore_retention_deleted_total: archives deleted
//   - deepstore_retention_failures_total: deletions that failed
type RetentionMetrics struct {
	evaluated    *prometheus.GaugeVec
	deletedTotal *prometheus.CounterVec
	failedTotal  *prometheus.CounterVec
}

// NewRetentionMetrics creates and registers retention metrics.
func NewRetentionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RetentionMetrics {
	rm := &RetentionMetrics{
		evaluated: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_evaluated",
				Help:      "Number of archives evaluated by the last retention pass",
			},
			[]string{"target"},
		),

		deletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_deleted_total",
				Help:      "Total number of archives deleted by retention",
			},
			[]string{"target"},
		),

		failedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_failures_total",
				Help:      "Total number of archive deletions that failed",
			},
			[]string{"target"},
		),
	}

	registry.MustRegister(rm.evaluated, rm.deletedTotal, rm.failedTotal)
	return rm
}

// Record records one enforcement pass.
func (rm *RetentionMetrics) Record(target string, evaluated, deleted, failed int) {
	rm.evaluated.WithLabelValues(target).Set(float64(evaluated))
	rm.deletedTotal.WithLabelValues(target).Add(float64(deleted))
	rm.failedTotal.WithLabelValues(target).Add(float64(failed))
}
