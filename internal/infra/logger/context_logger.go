package logger

import (
	"context"
	"log/slog"
)

type contextKey string

// Business context keys propagated through a run's call tree.
const (
	runIDKey       contextKey = "run_id"
	workspaceIDKey contextKey = "workspace_id"
)

// WithRunID attaches a run ID to the context for logging.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithWorkspaceID attaches a workspace ID to the context for logging.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, workspaceID)
}

// FromContext returns base enriched with whatever business context the
// context carries.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		logger = logger.With(slog.String(string(runIDKey), runID))
	}
	if workspaceID, ok := ctx.Value(workspaceIDKey).(string); ok {
		logger = logger.With(slog.String(string(workspaceIDKey), workspaceID))
	}
	return logger
}
