// Package slogutil carries slog attributes through a context so task-scoped
// fields follow the work across goroutines.
package slogutil

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With returns a context carrying the given slog args in addition to any
// already present.
func With(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, append(Args(ctx), args...))
}

// Args returns the slog args attached to ctx, or nil.
func Args(ctx context.Context) []any {
	args, _ := ctx.Value(ctxKey{}).([]any)
	return args
}

// Logger returns logger extended with the args attached to ctx.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if args := Args(ctx); len(args) > 0 {
		return logger.With(args...)
	}
	return logger
}
