package logmanager

import (
	"context"
)

type ctxKey struct{}

var loggerKey = &ctxKey{}

// WithLogger returns a new context carrying l.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger carried by ctx.  If there isn't one, the
// named logger of lc is returned.
func FromContext(ctx context.Context, lc *LogContext, name string) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}

	return lc.Logger(name)
}
