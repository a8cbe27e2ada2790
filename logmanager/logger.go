package logmanager

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Logger is a node in a LogContext's logger tree.
//
// A Logger with no level of its own inherits the effective level of its
// parent.  Records accepted by the logger's filter are published to its
// handlers and, while useParentHandlers is true, to its ancestors' handlers.
type Logger struct {
	name   string
	parent *Logger
	ctx    *LogContext

	mu                sync.RWMutex
	level             slog.Leveler
	filter            Filter
	handlers          []Handler
	useParentHandlers bool
	useParentFilters  bool
}

func newLogger(ctx *LogContext, name string, parent *Logger) *Logger {
	return &Logger{
		name:              name,
		parent:            parent,
		ctx:               ctx,
		useParentHandlers: true,
	}
}

// Name returns the dotted logger name; the root logger's name is "".
func (l *Logger) Name() string {
	return l.name
}

// Parent returns the parent logger, or nil for the root logger.
func (l *Logger) Parent() *Logger {
	return l.parent
}

// Context returns the LogContext which owns this logger.
func (l *Logger) Context() *LogContext {
	return l.ctx
}

// Level returns the logger's own level, or nil if the level is inherited.
func (l *Logger) Level() slog.Leveler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.level
}

// SetLevel sets the logger's level.  nil means inherit from the parent.
func (l *Logger) SetLevel(level slog.Leveler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = level
}

// EffectiveLevel returns the first level set on this logger or an ancestor.
func (l *Logger) EffectiveLevel() slog.Level {
	for cur := l; cur != nil; cur = cur.parent {
		if lvl := cur.Level(); lvl != nil {
			return lvl.Level()
		}
	}

	return LevelInfo
}

func (l *Logger) Filter() Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.filter
}

func (l *Logger) SetFilter(f Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.filter = f
}

// Handlers returns a copy of the logger's handlers.
func (l *Logger) Handlers() []Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.handlers)
}

func (l *Logger) SetHandlers(handlers []Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handlers = slices.Clone(handlers)
}

func (l *Logger) AddHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handlers = append(l.handlers, h)
}

// RemoveHandler removes the first occurrence of h.
func (l *Logger) RemoveHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx := slices.Index(l.handlers, h); idx >= 0 {
		l.handlers = slices.Delete(slices.Clone(l.handlers), idx, idx+1)
	}
}

func (l *Logger) UseParentHandlers() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.useParentHandlers
}

func (l *Logger) SetUseParentHandlers(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.useParentHandlers = b
}

func (l *Logger) UseParentFilters() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.useParentFilters
}

func (l *Logger) SetUseParentFilters(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.useParentFilters = b
}

// LoggerState is a snapshot of a logger's configurable state.
type LoggerState struct {
	Level             slog.Leveler
	Filter            Filter
	Handlers          []Handler
	UseParentHandlers bool
	UseParentFilters  bool
}

// State captures the logger's current configuration.
func (l *Logger) State() LoggerState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LoggerState{
		Level:             l.level,
		Filter:            l.filter,
		Handlers:          slices.Clone(l.handlers),
		UseParentHandlers: l.useParentHandlers,
		UseParentFilters:  l.useParentFilters,
	}
}

// Restore reapplies a state captured with State.
func (l *Logger) Restore(s LoggerState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = s.Level
	l.filter = s.Filter
	l.handlers = slices.Clone(s.Handlers)
	l.useParentHandlers = s.UseParentHandlers
	l.useParentFilters = s.UseParentFilters
}

// Reset returns the logger to the state of a newly created logger.
func (l *Logger) Reset() {
	l.Restore(LoggerState{UseParentHandlers: true})
}

// IsLoggable returns true if a record at level would pass the level check.
func (l *Logger) IsLoggable(level slog.Level) bool {
	eff := l.EffectiveLevel()
	if eff == LevelOff {
		return false
	}

	return level >= eff
}

// Log builds a record and logs it.  See NewRecord for the handling of args.
func (l *Logger) Log(level slog.Level, msg string, args ...any) {
	if !l.IsLoggable(level) {
		return
	}

	l.LogRecord(NewRecord(level, l.name, msg, args...))
}

// LogRecord runs the record through the filters, then publishes it.  The
// level check is not repeated here.
func (l *Logger) LogRecord(r *Record) {
	if f := l.Filter(); f != nil && !f.IsLoggable(r) {
		return
	}

	if l.UseParentFilters() {
		for p := l.parent; p != nil; p = p.parent {
			if f := p.Filter(); f != nil && !f.IsLoggable(r) {
				return
			}

			if !p.UseParentFilters() {
				break
			}
		}
	}

	for cur := l; cur != nil; cur = cur.parent {
		for _, h := range cur.Handlers() {
			h.Publish(r)
		}

		if !cur.UseParentHandlers() {
			break
		}
	}
}

// Handler returns a slog.Handler which logs into this logger, so the
// logger can back a *slog.Logger.
func (l *Logger) Handler() slog.Handler {
	return &slogBridge{logger: l}
}

type slogBridge struct {
	logger *Logger
	attrs  []slog.Attr
	prefix string
}

func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return b.logger.IsLoggable(level)
}

func (b *slogBridge) Handle(_ context.Context, sr slog.Record) error {
	r := &Record{
		Time:       sr.Time,
		Level:      sr.Level,
		LoggerName: b.logger.name,
		Message:    sr.Message,
		Attrs:      slices.Clone(b.attrs),
	}

	sr.Attrs(func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok && r.Err == nil && a.Key == "error" {
			r.Err = err
			return true
		}

		a.Key = b.prefix + a.Key
		r.Attrs = append(r.Attrs, a)

		return true
	})

	b.logger.LogRecord(r)

	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := &slogBridge{logger: b.logger, prefix: b.prefix, attrs: slices.Clone(b.attrs)}
	for _, a := range attrs {
		a.Key = b.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}

	return c
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}

	return &slogBridge{logger: b.logger, attrs: b.attrs, prefix: b.prefix + name + "."}
}
