// Package telemetry wires logging, metrics, tracing and health checks for
// deepstore.
//
// # Components
//
//   - logging: slog handler with secret redaction
//   - metrics: Prometheus collector for runs and retention
//   - tracing: OpenTelemetry spans per run and stage
//   - health: readiness checks for the daemon
//
// # Usage
//
//	tel, err := telemetry.New(&cfg.Telemetry, version)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer().Start(ctx, "backup.run")
//	defer span.End()
package telemetry
