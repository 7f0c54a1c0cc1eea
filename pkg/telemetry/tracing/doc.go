// Package tracing exports OpenTelemetry spans for backup runs.
//
// Each run gets a root span ("backup.run") with one child span per stage
// (lock, dump, collect, archive, upload, retention, notify). Spans are sent
// to an OTLP gRPC collector. With tracing disabled the tracer is a noop.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "backup.upload")
//	err = transport.Upload(ctx, path, name)
//	tracing.End(span, err)
package tracing
