package function

import (
	"context"
	"log/slog"
)

// Ambient values travel on the context with typed accessors instead of
// being injected by parameter-name sniffing. Adapters populate them
// before dispatch; functions that don't care never see them.

type ctxKey int

const (
	loggerKey ctxKey = iota
	invocationIDKey
)

// WithLogger returns a context carrying a logger for the invocation.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFrom returns the ambient logger, falling back to the default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithInvocationID returns a context carrying the invocation id.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// InvocationIDFrom returns the ambient invocation id, or "" when the
// adapter set none.
func InvocationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey).(string)
	return id
}
