package logconf

import (
	"log/slog"
	"slices"

	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// LoggerConfiguration configures a logger of the LogContext.  The logger
// itself is created by the LogContext, so it has no type or properties.
type LoggerConfiguration struct {
	entityBase

	filter            expression.Value
	level             expression.Value
	useParentFilters  expression.Value
	useParentHandlers expression.Value
	handlerNames      []string
}

func (l *LoggerConfiguration) constructAction() Action {
	registered := false

	return ActionFuncs{
		PreCreateFn: func(any) error {
			l.conf.refs[KindLogger].set(l.name, l.conf.logctx.Logger(l.name))
			registered = true

			return nil
		},
		RollbackFn: func() error {
			delete(l.conf.configs[KindLogger], l.name)

			if registered {
				l.conf.refs[KindLogger].delete(l.name)
			}

			return nil
		},
	}
}

func applyToLogger(fn func(lg *logmanager.Logger, v any)) func(obj, v any) error {
	return func(obj, v any) error {
		lg, ok := obj.(*logmanager.Logger)
		if !ok {
			return merry.Errorf("%w: %T is not a logger", ErrInvalidValue, obj)
		}

		fn(lg, v)

		return nil
	}
}

func (l *LoggerConfiguration) Filter() string {
	return l.filter.Value()
}

func (l *LoggerConfiguration) FilterExpression() expression.Value {
	return l.filter
}

// SetFilter sets a filter expression.  "" clears it.
func (l *LoggerConfiguration) SetFilter(filter string) error {
	return l.setFilter(l.valueOf(filter))
}

func (l *LoggerConfiguration) SetFilterExpression(expr, filter string) error {
	return l.setFilter(explicitValue(expr, filter))
}

func (l *LoggerConfiguration) setFilter(v expression.Value) error {
	return l.setAttribute("filter", &l.filter, v, TypeFilter, applyToLogger(func(lg *logmanager.Logger, v any) {
		f, _ := v.(logmanager.Filter)
		lg.SetFilter(f)
	}))
}

func (l *LoggerConfiguration) Level() string {
	return l.level.Value()
}

func (l *LoggerConfiguration) LevelExpression() expression.Value {
	return l.level
}

// SetLevel sets the logger's level.  "" makes the logger inherit its
// parent's level.
func (l *LoggerConfiguration) SetLevel(level string) error {
	return l.setLevel(l.valueOf(level))
}

func (l *LoggerConfiguration) SetLevelExpression(expr, level string) error {
	return l.setLevel(explicitValue(expr, level))
}

func (l *LoggerConfiguration) setLevel(v expression.Value) error {
	return l.setAttribute("level", &l.level, v, TypeLevel, applyToLogger(func(lg *logmanager.Logger, v any) {
		if lvl, ok := v.(slog.Level); ok {
			lg.SetLevel(lvl)
		} else {
			lg.SetLevel(nil)
		}
	}))
}

// optionalBool converts bool attributes, which unlike bool properties may
// be cleared.
type optionalBool struct{}

func (optionalBool) Name() string { return "bool" }

func (optionalBool) Primitive() bool { return false }

func (optionalBool) Convert(c *Configuration, v expression.Value, immediate bool) (Producer, error) {
	if v.IsNull() {
		return NullProducer, nil
	}

	return TypeBool.Convert(c, v, immediate)
}

func (l *LoggerConfiguration) UseParentFilters() string {
	return l.useParentFilters.Value()
}

func (l *LoggerConfiguration) UseParentFiltersExpression() expression.Value {
	return l.useParentFilters
}

// SetUseParentFilters sets whether records must also pass the filters of
// ancestor loggers.  "" resets it to false.
func (l *LoggerConfiguration) SetUseParentFilters(value string) error {
	return l.setUseParentFilters(l.valueOf(value))
}

func (l *LoggerConfiguration) SetUseParentFiltersExpression(expr, value string) error {
	return l.setUseParentFilters(explicitValue(expr, value))
}

func (l *LoggerConfiguration) setUseParentFilters(v expression.Value) error {
	return l.setAttribute("use parent filters", &l.useParentFilters, v, optionalBool{}, applyToLogger(func(lg *logmanager.Logger, v any) {
		b, _ := v.(bool)
		lg.SetUseParentFilters(b)
	}))
}

func (l *LoggerConfiguration) UseParentHandlers() string {
	return l.useParentHandlers.Value()
}

func (l *LoggerConfiguration) UseParentHandlersExpression() expression.Value {
	return l.useParentHandlers
}

// SetUseParentHandlers sets whether records are also published to the
// handlers of ancestor loggers.  "" resets it to true.
func (l *LoggerConfiguration) SetUseParentHandlers(value string) error {
	return l.setUseParentHandlers(l.valueOf(value))
}

func (l *LoggerConfiguration) SetUseParentHandlersExpression(expr, value string) error {
	return l.setUseParentHandlers(explicitValue(expr, value))
}

func (l *LoggerConfiguration) setUseParentHandlers(v expression.Value) error {
	return l.setAttribute("use parent handlers", &l.useParentHandlers, v, optionalBool{}, applyToLogger(func(lg *logmanager.Logger, v any) {
		b, ok := v.(bool)
		if !ok {
			b = true
		}

		lg.SetUseParentHandlers(b)
	}))
}

func (l *LoggerConfiguration) HandlerNames() []string {
	return slices.Clone(l.handlerNames)
}

// SetHandlerNames replaces the logger's handlers.
func (l *LoggerConfiguration) SetHandlerNames(names ...string) error {
	var deduped []string
	for _, n := range names {
		deduped, _ = addName(deduped, n)
	}

	return l.setHandlers(deduped)
}

// AddHandlerName returns false if the name was already there.
func (l *LoggerConfiguration) AddHandlerName(name string) (bool, error) {
	names, ok := addName(l.handlerNames, name)
	if !ok {
		return false, nil
	}

	return true, l.setHandlers(names)
}

// RemoveHandlerName returns false if the name wasn't there.
func (l *LoggerConfiguration) RemoveHandlerName(name string) (bool, error) {
	names, ok := removeName(l.handlerNames, name)
	if !ok {
		return false, nil
	}

	return true, l.setHandlers(names)
}

func (l *LoggerConfiguration) setHandlers(names []string) error {
	return l.setHandlerNames(&l.handlerNames, names, func(obj any, hs []logmanager.Handler) {
		if lg, ok := obj.(*logmanager.Logger); ok {
			lg.SetHandlers(hs)
		}
	})
}
