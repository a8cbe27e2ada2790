// Package logmanager is a small, hierarchical log manager: a LogContext
// owns a tree of named Loggers; records pass through Filters and are
// published to Handlers, which render them with Formatters.
//
// The types here are safe for concurrent use, so loggers can keep logging
// while a configuration session swaps their handlers, filters and levels.
//
// A Logger can back a *slog.Logger:
//
//	ctx := logmanager.NewLogContext()
//	log := slog.New(ctx.Logger("billing").Handler())
//
// and a SlogHandler can forward records into flume.
package logmanager
