package logconf

import (
	"slices"
	"sync"

	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// Registry resolves type names to type descriptors.  Types are registered
// under an optional module name, which qualifies the lookup.
type Registry struct {
	types sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

func registryKey(module, name string) string {
	return module + ":" + name
}

// Register adds or replaces a type.
func (r *Registry) Register(module string, t *Type) {
	if t == nil || t.name == "" {
		panic("type registered with empty name")
	}

	r.types.Store(registryKey(module, t.name), t)
}

// Lookup returns the type registered under module and name.
func (r *Registry) Lookup(module, name string) (*Type, error) {
	v, ok := r.types.Load(registryKey(module, name))
	if !ok {
		if module == "" {
			return nil, merry.Errorf("%w %q", ErrUnknownType, name)
		}

		return nil, merry.Errorf("%w %q in module %q", ErrUnknownType, name, module)
	}

	return v.(*Type), nil //nolint:forcetypeassert
}

// Names returns the registered names, as "module:name", sorted.
func (r *Registry) Names() []string {
	var names []string

	r.types.Range(func(k, _ any) bool {
		names = append(names, k.(string)) //nolint:forcetypeassert
		return true
	})

	slices.Sort(names)

	return names
}

// Clone returns a copy of the registry, so tests can add types without
// affecting the original.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()

	r.types.Range(func(k, v any) bool {
		c.types.Store(k, v)
		return true
	})

	return c
}

var (
	defaultRegistry     *Registry
	initDefaultRegistry sync.Once
)

// DefaultRegistry returns the package registry, which starts out with the
// built-in logmanager types.
func DefaultRegistry() *Registry {
	initDefaultRegistry.Do(func() {
		defaultRegistry = NewRegistry()
		registerBuiltinTypes(defaultRegistry)
	})

	return defaultRegistry
}

// RegisterType adds a type to the default registry.
func RegisterType(module string, t *Type) {
	DefaultRegistry().Register(module, t)
}

func isNestedHandler[T any]() bool {
	var zero T

	_, ok := any(zero).(logmanager.NestedHandler)

	return ok
}
