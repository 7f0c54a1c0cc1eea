package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"deepstore-hq/deepstore/pkg/config"
)

func TestNew(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.TelemetryConfig{
		Logging: config.LoggingConfig{Level: "debug", Format: "text"},
		Metrics: config.MetricsConfig{Enabled: true},
	}

	tel, err := New(&cfg, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tel.Shutdown(context.Background())

	if tel.Logger() == nil || tel.Metrics() == nil || tel.Tracer() == nil {
		t.Fatal("component missing")
	}
	if tel.Tracer().Enabled() {
		t.Error("tracing enabled without config")
	}
	if slog.Default() != tel.Logger().Slog() {
		t.Error("logger not installed as default")
	}
}

func TestNew_InvalidLogLevel(t *testing.T) {
	cfg := config.TelemetryConfig{Logging: config.LoggingConfig{Level: "chatty"}}
	if _, err := New(&cfg, "test"); err == nil {
		t.Error("New() should fail on invalid log level")
	}
}
