// Package metrics exports backup and retention metrics to Prometheus.
//
// # Metrics
//
//   - deepstore_runs_total{status}
//   - deepstore_run_duration_seconds
//   - deepstore_stage_duration_seconds{stage}
//   - deepstore_archive_size_bytes
//   - deepstore_last_success_timestamp_seconds
//   - deepstore_retention_evaluated{target}
//   - deepstore_retention_deleted_total{target}
//   - deepstore_retention_failures_total{target}
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	enforcer.Metrics = collector
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
