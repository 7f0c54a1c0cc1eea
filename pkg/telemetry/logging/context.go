package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RunIDKey is the context key for backup run IDs.
	RunIDKey contextKey = "run_id"

	// StageKey is the context key for the current backup stage.
	StageKey contextKey = "stage"
)

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// WithStage adds the current stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

// GetStage retrieves the stage name from the context.
func GetStage(ctx context.Context) string {
	if stage, ok := ctx.Value(StageKey).(string); ok {
		return stage
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := GetRunID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(RunIDKey), id))
	}
	if stage := GetStage(ctx); stage != "" {
		attrs = append(attrs, slog.String(string(StageKey), stage))
	}
	return attrs
}
