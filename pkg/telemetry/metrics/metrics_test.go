package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deepstore-hq/deepstore/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:            true,
		Namespace:          "test",
		RunDurationBuckets: []float64{1, 10, 100},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}

	defaults := &config.MetricsConfig{Enabled: true}
	NewCollector(defaults, nil)
	if defaults.Namespace != "deepstore" || len(defaults.RunDurationBuckets) == 0 {
		t.Errorf("defaults not applied: %+v", defaults)
	}
}

func TestCollector_RecordRun(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	finished := time.Date(2024, 3, 1, 2, 5, 0, 0, time.UTC)

	collector.RecordRun("success", 90*time.Second, 4096, finished)
	collector.RecordRun("failed", 5*time.Second, 0, finished)
	collector.RecordSkipped()

	rm := collector.runMetrics
	if got := testutil.ToFloat64(rm.runsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("runs_total{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.runsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("runs_total{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.runsTotal.WithLabelValues("skipped")); got != 1 {
		t.Errorf("runs_total{skipped} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.archiveSize); got != 4096 {
		t.Errorf("archive_size_bytes = %v, want 4096", got)
	}
	if got := testutil.ToFloat64(rm.lastSuccess); got != float64(finished.Unix()) {
		t.Errorf("last_success_timestamp_seconds = %v", got)
	}
	if got := testutil.CollectAndCount(rm.runDuration); got != 1 {
		t.Errorf("run_duration_seconds series = %d, want 1", got)
	}
}

func TestCollector_RecordStage(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordStage("dump", 3*time.Second)
	collector.RecordStage("upload", 30*time.Second)

	if got := testutil.CollectAndCount(collector.runMetrics.stageDuration); got != 2 {
		t.Errorf("stage_duration_seconds series = %d, want 2", got)
	}
}

func TestCollector_RecordRetention(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordRetention("local", 10, 3, 0)
	collector.RecordRetention("local", 8, 1, 0)
	collector.RecordRetention("remote", 10, 2, 1)

	rm := collector.retentionMetrics
	if got := testutil.ToFloat64(rm.evaluated.WithLabelValues("local")); got != 8 {
		t.Errorf("retention_evaluated{local} = %v, want 8", got)
	}
	if got := testutil.ToFloat64(rm.deletedTotal.WithLabelValues("local")); got != 4 {
		t.Errorf("retention_deleted_total{local} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(rm.failedTotal.WithLabelValues("remote")); got != 1 {
		t.Errorf("retention_failures_total{remote} = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordRun("success", time.Second, 10, time.Now())
	collector.RecordRetention("local", 1, 1, 0)

	if got := testutil.ToFloat64(collector.runMetrics.runsTotal.WithLabelValues("success")); got != 0 {
		t.Errorf("disabled collector recorded runs_total = %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordRun("success", time.Second, 1, time.Now())

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_runs_total") {
		t.Errorf("body missing test_runs_total:\n%s", rec.Body.String())
	}
}
