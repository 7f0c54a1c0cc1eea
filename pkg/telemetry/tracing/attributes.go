package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on backup spans.
const (
	AttrRunID       = "deepstore.run_id"
	AttrCommand     = "deepstore.command"
	AttrStage       = "deepstore.stage"
	AttrArchive     = "deepstore.archive.name"
	AttrArchiveSize = "deepstore.archive.size_bytes"
	AttrDriver      = "deepstore.database.driver"
	AttrTarget      = "deepstore.retention.target"
	AttrKept        = "deepstore.retention.kept"
	AttrDeleted     = "deepstore.retention.deleted"
	AttrFailed      = "deepstore.retention.failed"
	AttrRemoteHost  = "deepstore.remote.host"
)

// SetRunAttributes tags the root span of a run.
func SetRunAttributes(span trace.Span, runID, command string) {
	span.SetAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrCommand, command),
	)
}

// SetArchiveAttributes records the archive a run produced.
func SetArchiveAttributes(span trace.Span, name string, size int64) {
	span.SetAttributes(
		attribute.String(AttrArchive, name),
		attribute.Int64(AttrArchiveSize, size),
	)
}

// SetRetentionAttributes records the outcome of one enforcement pass.
func SetRetentionAttributes(span trace.Span, target string, kept, deleted, failed int) {
	span.SetAttributes(
		attribute.String(AttrTarget, target),
		attribute.Int(AttrKept, kept),
		attribute.Int(AttrDeleted, deleted),
		attribute.Int(AttrFailed, failed),
	)
}
