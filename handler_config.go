package logconf

import (
	"log/slog"
	"slices"

	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// HandlerConfiguration configures a handler.  Besides the properties of its
// type, every handler has a formatter, level, filter, encoding and error
// manager, and nested handler types have a list of handler names.
type HandlerConfiguration struct {
	*PropertyConfiguration

	formatter    expression.Value
	level        expression.Value
	filter       expression.Value
	encoding     expression.Value
	errorManager expression.Value
	handlerNames []string
}

func applyToHandler(fn func(h logmanager.Handler, v any) error) func(obj, v any) error {
	return func(obj, v any) error {
		h, ok := obj.(logmanager.Handler)
		if !ok {
			return merry.Errorf("%w: %T is not a handler", ErrInvalidValue, obj)
		}

		return fn(h, v)
	}
}

func (h *HandlerConfiguration) FormatterName() string {
	return h.formatter.Value()
}

func (h *HandlerConfiguration) FormatterNameExpression() expression.Value {
	return h.formatter
}

// SetFormatterName sets the name of the handler's formatter.  "" clears it.
func (h *HandlerConfiguration) SetFormatterName(name string) error {
	return h.setFormatter(h.valueOf(name))
}

func (h *HandlerConfiguration) SetFormatterNameExpression(expr, name string) error {
	return h.setFormatter(explicitValue(expr, name))
}

func (h *HandlerConfiguration) setFormatter(v expression.Value) error {
	return h.setAttribute("formatter", &h.formatter, v, TypeFormatter, applyToHandler(func(hd logmanager.Handler, v any) error {
		f, _ := v.(logmanager.Formatter)
		hd.SetFormatter(f)

		return nil
	}))
}

func (h *HandlerConfiguration) Level() string {
	return h.level.Value()
}

func (h *HandlerConfiguration) LevelExpression() expression.Value {
	return h.level
}

// SetLevel sets the handler's level.  "" resets it to ALL.
func (h *HandlerConfiguration) SetLevel(level string) error {
	return h.setLevel(h.valueOf(level))
}

func (h *HandlerConfiguration) SetLevelExpression(expr, level string) error {
	return h.setLevel(explicitValue(expr, level))
}

func (h *HandlerConfiguration) setLevel(v expression.Value) error {
	return h.setAttribute("level", &h.level, v, TypeLevel, applyToHandler(func(hd logmanager.Handler, v any) error {
		l, ok := v.(slog.Level)
		if !ok {
			l = logmanager.LevelAll
		}

		hd.SetLevel(l)

		return nil
	}))
}

// FilterExpression returns the filter expression text.
func (h *HandlerConfiguration) Filter() string {
	return h.filter.Value()
}

func (h *HandlerConfiguration) FilterExpression() expression.Value {
	return h.filter
}

// SetFilter sets a filter expression, which may be the name of a
// configured filter.  "" clears it.
func (h *HandlerConfiguration) SetFilter(filter string) error {
	return h.setFilter(h.valueOf(filter))
}

func (h *HandlerConfiguration) SetFilterExpression(expr, filter string) error {
	return h.setFilter(explicitValue(expr, filter))
}

func (h *HandlerConfiguration) setFilter(v expression.Value) error {
	return h.setAttribute("filter", &h.filter, v, TypeFilter, applyToHandler(func(hd logmanager.Handler, v any) error {
		f, _ := v.(logmanager.Filter)
		hd.SetFilter(f)

		return nil
	}))
}

func (h *HandlerConfiguration) Encoding() string {
	return h.encoding.Value()
}

func (h *HandlerConfiguration) EncodingExpression() expression.Value {
	return h.encoding
}

// SetEncoding sets the charset the handler writes.  Unsupported charsets
// fail when the batch is validated.
func (h *HandlerConfiguration) SetEncoding(name string) error {
	return h.setEncoding(h.valueOf(name))
}

func (h *HandlerConfiguration) SetEncodingExpression(expr, name string) error {
	return h.setEncoding(explicitValue(expr, name))
}

func (h *HandlerConfiguration) setEncoding(v expression.Value) error {
	return h.setAttribute("encoding", &h.encoding, v, TypeCharset, applyToHandler(func(hd logmanager.Handler, v any) error {
		name, _ := v.(string)
		return hd.SetEncoding(name)
	}))
}

func (h *HandlerConfiguration) ErrorManagerName() string {
	return h.errorManager.Value()
}

func (h *HandlerConfiguration) ErrorManagerNameExpression() expression.Value {
	return h.errorManager
}

func (h *HandlerConfiguration) SetErrorManagerName(name string) error {
	return h.setErrorManager(h.valueOf(name))
}

func (h *HandlerConfiguration) SetErrorManagerNameExpression(expr, name string) error {
	return h.setErrorManager(explicitValue(expr, name))
}

func (h *HandlerConfiguration) setErrorManager(v expression.Value) error {
	return h.setAttribute("error manager", &h.errorManager, v, TypeErrorManager, applyToHandler(func(hd logmanager.Handler, v any) error {
		m, _ := v.(logmanager.ErrorManager)
		hd.SetErrorManager(m)

		return nil
	}))
}

// HandlerNames returns the names of the nested handlers.
func (h *HandlerConfiguration) HandlerNames() []string {
	return slices.Clone(h.handlerNames)
}

func (h *HandlerConfiguration) checkNested() error {
	if !h.typ.Nested() {
		return merry.Errorf("%w: %s %q of type %s", ErrNestedHandlersUnsupported, h.kind, h.name, h.typeName)
	}

	return nil
}

// SetHandlerNames replaces the nested handlers.  Fails if the handler type
// doesn't support nested handlers.
func (h *HandlerConfiguration) SetHandlerNames(names ...string) error {
	if err := h.checkNested(); err != nil {
		return err
	}

	var deduped []string
	for _, n := range names {
		deduped, _ = addName(deduped, n)
	}

	return h.setNested(deduped)
}

// AddHandlerName returns false if the name was already there.
func (h *HandlerConfiguration) AddHandlerName(name string) (bool, error) {
	if err := h.checkNested(); err != nil {
		return false, err
	}

	names, ok := addName(h.handlerNames, name)
	if !ok {
		return false, nil
	}

	return true, h.setNested(names)
}

// RemoveHandlerName returns false if the name wasn't there.
func (h *HandlerConfiguration) RemoveHandlerName(name string) (bool, error) {
	if err := h.checkNested(); err != nil {
		return false, err
	}

	names, ok := removeName(h.handlerNames, name)
	if !ok {
		return false, nil
	}

	return true, h.setNested(names)
}

func (h *HandlerConfiguration) setNested(names []string) error {
	return h.setHandlerNames(&h.handlerNames, names, func(obj any, hs []logmanager.Handler) {
		if n, ok := obj.(logmanager.NestedHandler); ok {
			n.SetHandlers(hs)
		}
	})
}

// FormatterConfiguration configures a formatter.
type FormatterConfiguration struct {
	*PropertyConfiguration
}

// FilterConfiguration configures a named filter, which filter expressions
// can refer to by name.
type FilterConfiguration struct {
	*PropertyConfiguration
}

type ErrorManagerConfiguration struct {
	*PropertyConfiguration
}

// PojoConfiguration configures a plain object of any type.
type PojoConfiguration struct {
	*PropertyConfiguration
}
