package logconf

import (
	"io"
	"slices"
	"sync"

	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// Kind is the kind of a configured object.  Each kind is a separate
// namespace.
type Kind int

const (
	KindLogger Kind = iota
	KindHandler
	KindFormatter
	KindFilter
	KindErrorManager
	KindPojo
	kindCount
)

var kindNames = [...]string{
	KindLogger:       "logger",
	KindHandler:      "handler",
	KindFormatter:    "formatter",
	KindFilter:       "filter",
	KindErrorManager: "error manager",
	KindPojo:         "pojo",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}

	return kindNames[k]
}

// Kinds lists every kind, in the order they are applied from documents.
var Kinds = []Kind{KindPojo, KindErrorManager, KindFilter, KindFormatter, KindHandler, KindLogger}

// accepts checks a constructed instance can serve as this kind.
func (k Kind) accepts(v any) bool {
	switch k {
	case KindHandler:
		_, ok := v.(logmanager.Handler)
		return ok
	case KindFormatter:
		_, ok := v.(logmanager.Formatter)
		return ok
	case KindFilter:
		_, ok := v.(logmanager.Filter)
		return ok
	case KindErrorManager:
		_, ok := v.(logmanager.ErrorManager)
		return ok
	case KindLogger:
		_, ok := v.(*logmanager.Logger)
		return ok
	}

	return v != nil
}

// entity is implemented by every configuration object.
type entity interface {
	base() *entityBase
}

// entityBase is the state shared by all configuration objects.
type entityBase struct {
	conf    *Configuration
	kind    Kind
	name    string
	removed bool
}

func (e *entityBase) base() *entityBase {
	return e
}

// Name returns the configuration's name.
func (e *entityBase) Name() string {
	return e.name
}

// Kind returns the kind of object configured.
func (e *entityBase) Kind() Kind {
	return e.kind
}

// Removed returns true once the configuration has been removed.  Removed
// configurations can't be changed.
func (e *entityBase) Removed() bool {
	return e.removed
}

func (e *entityBase) checkRemoved() error {
	if e.removed {
		return merry.Errorf("%w: %s %q", ErrRemoved, e.kind, e.name)
	}

	return nil
}

func (e *entityBase) instance() (any, bool) {
	return e.conf.ref(e.kind, e.name)
}

func (e *entityBase) describe(what string) string {
	return e.kind.String() + " " + quote(e.name) + ": " + what
}

// orderedValues is a map of expression values which remembers insertion
// order.
type orderedValues struct {
	keys   []string
	values map[string]expression.Value
}

func (o *orderedValues) get(k string) (expression.Value, bool) {
	v, ok := o.values[k]
	return v, ok
}

func (o *orderedValues) set(k string, v expression.Value) {
	if o.values == nil {
		o.values = map[string]expression.Value{}
	}

	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}

	o.values[k] = v
}

func (o *orderedValues) delete(k string) {
	if _, ok := o.values[k]; !ok {
		return
	}

	delete(o.values, k)
	o.keys = slices.DeleteFunc(o.keys, func(s string) bool { return s == k })
}

// restore puts back a previous value, or deletes k if there was none.
func (o *orderedValues) restore(k string, v expression.Value, existed bool) {
	if existed {
		o.set(k, v)
	} else {
		o.delete(k)
	}
}

func (o *orderedValues) names() []string {
	return slices.Clone(o.keys)
}

// refTable holds the live instances of one kind.  Deferred producers read
// it while records are being logged, so unlike the rest of a Configuration
// it is locked.
type refTable struct {
	mu sync.RWMutex
	m  map[string]any
}

func newRefTable() *refTable {
	return &refTable{m: map[string]any{}}
}

func (t *refTable) get(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.m[name]

	return v, ok
}

func (t *refTable) set(name string, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m[name] = v
}

func (t *refTable) delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.m, name)
}

func (t *refTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m = map[string]any{}
}

// dispose closes an instance which holds resources.
func dispose(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
