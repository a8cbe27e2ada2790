package logconf

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Type describes a configurable component: how to construct it, which
// properties can be set on it, and which no-argument methods can run after
// configuration.  Build one with NewType and the Property, PropertyE,
// Constructor and Method functions.
type Type struct {
	name         string
	nested       bool
	props        map[string]*PropertyInfo
	propNames    []string
	constructors []*ConstructorInfo
	methods      map[string]func(any) error
}

// PropertyInfo describes one settable property.
type PropertyInfo struct {
	Name string
	Type ValueType

	set func(obj, v any) error
	get func(obj any) any
}

// Settable returns true if the property has a setter.
func (p *PropertyInfo) Settable() bool {
	return p.set != nil
}

// Param is a named, typed constructor parameter.  Constructor parameters
// are configured like properties, with SetPropertyValueString.
type Param struct {
	Name string
	Type ValueType
}

// ConstructorInfo describes one way to build an instance.
type ConstructorInfo struct {
	Params []Param

	fn func(args []any) (any, error)
}

// TypeBuilder builds a Type for instances of T.
type TypeBuilder[T any] struct {
	t *Type
}

// NewType starts a type descriptor.  If newFn is not nil, it is registered
// as the no-argument constructor.
//
// T should be the type the instance is used as, typically a pointer type.
// If a T implements logmanager.NestedHandler, the type supports nested
// handlers.
func NewType[T any](name string, newFn func() T) *TypeBuilder[T] {
	b := &TypeBuilder[T]{t: &Type{
		name:    name,
		props:   map[string]*PropertyInfo{},
		methods: map[string]func(any) error{},
		nested:  isNestedHandler[T](),
	}}

	if newFn != nil {
		Constructor(b, nil, func([]any) (T, error) {
			return newFn(), nil
		})
	}

	return b
}

// Type returns the finished descriptor.
func (b *TypeBuilder[T]) Type() *Type {
	return b.t
}

// Property adds a property backed by a getter and a setter.  Either may be
// nil.  When a property is unset, or rolled back to unset, the setter is
// called with the zero value of V.
func Property[T, V any](b *TypeBuilder[T], name string, vt ValueType, get func(T) V, set func(T, V)) *TypeBuilder[T] {
	var seterr func(T, V) error
	if set != nil {
		seterr = func(obj T, v V) error {
			set(obj, v)
			return nil
		}
	}

	return PropertyE(b, name, vt, get, seterr)
}

// PropertyE is like Property, for setters which can fail.
func PropertyE[T, V any](b *TypeBuilder[T], name string, vt ValueType, get func(T) V, set func(T, V) error) *TypeBuilder[T] {
	p := &PropertyInfo{Name: name, Type: vt}

	if set != nil {
		p.set = func(obj, v any) error {
			t, err := castTo[T](obj, b.t.name)
			if err != nil {
				return err
			}

			val, err := castTo[V](v, b.t.name+"."+name)
			if err != nil {
				return err
			}

			return set(t, val)
		}
	}

	if get != nil {
		p.get = func(obj any) any {
			t, err := castTo[T](obj, b.t.name)
			if err != nil {
				return nil
			}

			return get(t)
		}
	}

	key := propertyKey(name)
	if _, ok := b.t.props[key]; !ok {
		b.t.propNames = append(b.t.propNames, name)
	}

	b.t.props[key] = p

	return b
}

// Constructor adds a constructor taking the named parameters, in order.
func Constructor[T any](b *TypeBuilder[T], params []Param, fn func(args []any) (T, error)) *TypeBuilder[T] {
	b.t.constructors = append(b.t.constructors, &ConstructorInfo{
		Params: params,
		fn: func(args []any) (any, error) {
			return fn(args)
		},
	})

	return b
}

// Method adds a no-argument method which can be used as a post
// configuration method.
func Method[T any](b *TypeBuilder[T], name string, fn func(T) error) *TypeBuilder[T] {
	b.t.methods[name] = func(obj any) error {
		t, err := castTo[T](obj, b.t.name)
		if err != nil {
			return err
		}

		return fn(t)
	}

	return b
}

// castTo converts v to T.  nil converts to the zero T.
func castTo[T any](v any, what string) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s: can't use %T as %T", ErrInvalidValue, what, v, zero)
	}

	return t, nil
}

func (t *Type) Name() string {
	return t.name
}

// Nested returns true if instances of the type accept nested handlers.
func (t *Type) Nested() bool {
	return t.nested
}

// Property looks up a property.  The first letter of the name is not case
// sensitive.
func (t *Type) Property(name string) (*PropertyInfo, bool) {
	p, ok := t.props[propertyKey(name)]
	return p, ok
}

// PropertyNames returns the declared property names, in declaration order.
func (t *Type) PropertyNames() []string {
	return append([]string(nil), t.propNames...)
}

// HasMethod returns true if name is a declared method.
func (t *Type) HasMethod(name string) bool {
	_, ok := t.methods[name]
	return ok
}

func (t *Type) invoke(obj any, method string) error {
	fn, ok := t.methods[method]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, t.name, method)
	}

	return fn(obj)
}

// constructor finds the constructor whose parameter names match params.
func (t *Type) constructor(params []string) (*ConstructorInfo, bool) {
	for _, c := range t.constructors {
		if len(c.Params) != len(params) {
			continue
		}

		match := true

		for i, p := range c.Params {
			if propertyKey(p.Name) != propertyKey(params[i]) {
				match = false
				break
			}
		}

		if match {
			return c, true
		}
	}

	return nil, false
}

// constructorParam finds the declared type of a constructor parameter in
// any of the constructors.
func (t *Type) constructorParam(name string) (Param, bool) {
	key := propertyKey(name)

	for _, c := range t.constructors {
		for _, p := range c.Params {
			if propertyKey(p.Name) == key {
				return p, true
			}
		}
	}

	return Param{}, false
}

// propertyKey folds the first letter to lower case, so "Encoding" and
// "encoding" name the same property.
func propertyKey(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return name
	}

	var b strings.Builder

	b.WriteRune(unicode.ToLower(r))
	b.WriteString(name[size:])

	return b.String()
}
