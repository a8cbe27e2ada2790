package logconf

import (
	"slices"

	"github.com/ThalesGroup/logconf/expression"
	"github.com/ansel1/merry/v2"
)

// PropertyConfiguration configures an object built from a registered Type:
// constructor properties, settable properties and post configuration
// methods.  It is embedded in the handler, formatter, filter, error manager
// and pojo configurations.
type PropertyConfiguration struct {
	entityBase

	module    string
	typeName  string
	typ       *Type
	ctorProps []string
	props     orderedValues
	methods   []string
}

// ModuleName returns the module the type was looked up in.
func (p *PropertyConfiguration) ModuleName() string {
	return p.module
}

func (p *PropertyConfiguration) TypeName() string {
	return p.typeName
}

func (p *PropertyConfiguration) Type() *Type {
	return p.typ
}

// ConstructorProperties returns the names of the properties passed to the
// constructor, in order.
func (p *PropertyConfiguration) ConstructorProperties() []string {
	return slices.Clone(p.ctorProps)
}

func (p *PropertyConfiguration) HasConstructorProperty(name string) bool {
	key := propertyKey(name)

	return slices.ContainsFunc(p.ctorProps, func(s string) bool {
		return propertyKey(s) == key
	})
}

// PropertyNames returns the names of the configured properties, in the
// order they were first set.
func (p *PropertyConfiguration) PropertyNames() []string {
	return p.props.names()
}

func (p *PropertyConfiguration) HasProperty(name string) bool {
	_, ok := p.props.get(propertyKey(name))
	return ok
}

// PropertyValueString returns the resolved value of a property, or "".
func (p *PropertyConfiguration) PropertyValueString(name string) string {
	v, _ := p.props.get(propertyKey(name))
	return v.Value()
}

// PropertyValueExpression returns the value of a property with its
// expression text.  Unset properties are null.
func (p *PropertyConfiguration) PropertyValueExpression(name string) expression.Value {
	v, _ := p.props.get(propertyKey(name))
	return v
}

// SetPropertyValueString sets a property, resolving any ${...} expression
// in value.
func (p *PropertyConfiguration) SetPropertyValueString(name, value string) error {
	return p.setProperty(name, p.conf.resolver.Resolve(value))
}

// SetPropertyValueExpression sets a property from an already resolved
// expression.
func (p *PropertyConfiguration) SetPropertyValueExpression(name, expr, value string) error {
	return p.setProperty(name, expression.NewValue(expr, value))
}

// RemoveProperty unsets a property.  The live instance's property is reset
// to its zero value.  Returns false if the property wasn't set.
func (p *PropertyConfiguration) RemoveProperty(name string) (bool, error) {
	if err := p.checkRemoved(); err != nil {
		return false, err
	}

	key := propertyKey(name)

	prop, err := p.lookupProperty(key)
	if err != nil {
		return false, err
	}

	old, existed := p.props.get(key)
	if !existed {
		return false, nil
	}

	p.props.delete(key)
	p.queueProperty(key, prop, old, existed, expression.Null)

	return true, nil
}

// lookupProperty returns the settable property, or nil for a property
// which can only be passed to the constructor.
func (p *PropertyConfiguration) lookupProperty(key string) (*PropertyInfo, error) {
	ctor := p.HasConstructorProperty(key)
	if ctor {
		if _, ok := p.instance(); ok {
			return nil, merry.Errorf("%w: constructor property %q of %s %q can't change once constructed", ErrInvalidValue, key, p.kind, p.name)
		}
	}

	prop, ok := p.typ.Property(key)
	if ok && prop.Settable() {
		return prop, nil
	}

	if !ctor {
		return nil, merry.Errorf("%w %q on %s %q of type %s", ErrNoSuchProperty, key, p.kind, p.name, p.typeName)
	}

	return nil, nil //nolint:nilnil
}

func (p *PropertyConfiguration) setProperty(name string, v expression.Value) error {
	if err := p.checkRemoved(); err != nil {
		return err
	}

	key := propertyKey(name)

	prop, err := p.lookupProperty(key)
	if err != nil {
		return err
	}

	old, existed := p.props.get(key)
	p.props.set(key, v)
	p.queueProperty(key, prop, old, existed, v)

	return nil
}

// queueProperty queues the application of a property change.  A nil prop
// means the property is only read by the constructor, so there's nothing
// to apply.
func (p *PropertyConfiguration) queueProperty(key string, prop *PropertyInfo, old expression.Value, existed bool, v expression.Value) {
	desc := p.describe("set property " + quote(key))
	if v.IsNull() {
		desc = p.describe("remove property " + quote(key))
	}

	if prop == nil {
		p.conf.enqueue(desc, ActionFuncs{
			RollbackFn: func() error {
				p.props.restore(key, old, existed)
				return nil
			},
		})

		return
	}

	applied := false

	p.conf.enqueue(desc, ActionFuncs{
		ValidateFn: func() (any, error) {
			if v.IsNull() {
				return NullProducer, nil
			}

			return p.conf.convert(p.typ, key, prop.Type, v, false)
		},
		PreCreateFn: func(any) error {
			p.addPostConfigurationActions(false)
			return nil
		},
		PostCreateFn: func(prepared any) error {
			obj, err := p.requireInstance()
			if err != nil {
				return err
			}

			applied = true

			return prop.set(obj, prepared.(Producer).Object()) //nolint:forcetypeassert
		},
		RollbackFn: func() error {
			p.props.restore(key, old, existed)

			if !applied {
				return nil
			}

			obj, ok := p.instance()
			if !ok {
				return nil
			}

			var val any

			if existed && !old.IsNull() {
				prod, err := p.conf.convert(p.typ, key, prop.Type, old, false)
				if err != nil {
					return err
				}

				val = prod.Object()
			}

			return prop.set(obj, val)
		},
	})
}

func (p *PropertyConfiguration) requireInstance() (any, error) {
	obj, ok := p.instance()
	if !ok {
		return nil, merry.Errorf("%w: %s %q has no instance", ErrNotFound, p.kind, p.name)
	}

	return obj, nil
}

// PostConfigurationMethods returns the methods run after construction and
// after every batch of property changes, in order.
func (p *PropertyConfiguration) PostConfigurationMethods() []string {
	return slices.Clone(p.methods)
}

// AddPostConfigurationMethod appends a method.  Returns false if it was
// already there.
func (p *PropertyConfiguration) AddPostConfigurationMethod(name string) (bool, error) {
	if err := p.checkRemoved(); err != nil {
		return false, err
	}

	if err := p.checkMethod(name); err != nil {
		return false, err
	}

	if slices.Contains(p.methods, name) {
		return false, nil
	}

	p.queueMethods(append(slices.Clone(p.methods), name))

	return true, nil
}

// SetPostConfigurationMethods replaces the methods.
func (p *PropertyConfiguration) SetPostConfigurationMethods(names ...string) error {
	if err := p.checkRemoved(); err != nil {
		return err
	}

	var methods []string

	for _, name := range names {
		if err := p.checkMethod(name); err != nil {
			return err
		}

		if !slices.Contains(methods, name) {
			methods = append(methods, name)
		}
	}

	p.queueMethods(methods)

	return nil
}

// RemovePostConfigurationMethod returns false if the method wasn't there.
func (p *PropertyConfiguration) RemovePostConfigurationMethod(name string) (bool, error) {
	if err := p.checkRemoved(); err != nil {
		return false, err
	}

	if !slices.Contains(p.methods, name) {
		return false, nil
	}

	p.queueMethods(slices.DeleteFunc(slices.Clone(p.methods), func(s string) bool { return s == name }))

	return true, nil
}

func (p *PropertyConfiguration) checkMethod(name string) error {
	if !p.typ.HasMethod(name) {
		return merry.Errorf("%w %q on %s %q of type %s", ErrNoSuchMethod, name, p.kind, p.name, p.typeName)
	}

	return nil
}

func (p *PropertyConfiguration) queueMethods(methods []string) {
	old := p.methods
	p.methods = methods

	p.conf.enqueue(p.describe("set post configuration methods"), ActionFuncs{
		PreCreateFn: func(any) error {
			p.addPostConfigurationActions(true)
			return nil
		},
		RollbackFn: func() error {
			p.methods = old
			return nil
		},
	})
}

func (p *PropertyConfiguration) postConfigurationKey() string {
	return p.kind.String() + ":" + p.name
}

// addPostConfigurationActions queues a call to each post configuration
// method.  Unless replace is set, a queue already registered for this
// object is left alone, so the methods run once per batch.
func (p *PropertyConfiguration) addPostConfigurationActions(replace bool) {
	key := p.postConfigurationKey()
	if !replace && p.conf.PostConfigurationActionsExist(key) {
		return
	}

	actions := make([]Action, 0, len(p.methods))

	for _, m := range p.methods {
		actions = append(actions, describedAction{
			desc: p.describe("invoke " + m),
			Action: ActionFuncs{
				PostCreateFn: func(any) error {
					obj, err := p.requireInstance()
					if err != nil {
						return err
					}

					return p.typ.invoke(obj, m)
				},
			},
		})
	}

	p.conf.AddPostConfigurationActions(key, actions)
}

// constructAction builds the instance during validation, and registers it
// before any property is applied.  Validating again disposes the instance
// built last time.
func (p *PropertyConfiguration) constructAction() Action {
	var (
		created    any
		registered bool
	)

	return ActionFuncs{
		ValidateFn: func() (any, error) {
			// an instance built by a Prepare which then failed validation
			if created != nil && !registered {
				old := created
				created = nil

				if err := dispose(old); err != nil {
					p.conf.log().Warn("disposing unused instance failed", "action", p.describe("construct "+p.typeName), "error", err)
				}
			}

			args := make([]any, len(p.ctorProps))

			for i, name := range p.ctorProps {
				param, ok := p.typ.constructorParam(name)
				if !ok {
					return nil, merry.Errorf("%w: %s %q: type %s has no constructor property %q", ErrNoSuchProperty, p.kind, p.name, p.typeName, name)
				}

				v, ok := p.props.get(propertyKey(name))
				if !ok || v.IsNull() {
					return nil, merry.Errorf("%w: %s %q: no value for constructor property %q", ErrInvalidValue, p.kind, p.name, name)
				}

				prod, err := p.conf.convert(p.typ, name, param.Type, v, true)
				if err != nil {
					return nil, merry.Prependf(err, "%s %q", p.kind, p.name)
				}

				args[i] = prod.Object()
			}

			ctor, ok := p.typ.constructor(p.ctorProps)
			if !ok {
				return nil, merry.Errorf("%w: %s %q: type %s has no constructor for %v", ErrNoConstructor, p.kind, p.name, p.typeName, p.ctorProps)
			}

			obj, err := ctor.fn(args)
			if err != nil {
				return nil, merry.Errorf("%w: %s %q: %w", ErrInvalidValue, p.kind, p.name, err)
			}

			if !p.kind.accepts(obj) {
				_ = dispose(obj)
				return nil, merry.Errorf("%w: %s %q: type %s does not build a %s", ErrInvalidValue, p.kind, p.name, p.typeName, p.kind)
			}

			created = obj

			return obj, nil
		},
		PreCreateFn: func(prepared any) error {
			p.conf.refs[p.kind].set(p.name, prepared)
			registered = true

			p.addPostConfigurationActions(false)

			return nil
		},
		RollbackFn: func() error {
			delete(p.conf.configs[p.kind], p.name)

			if registered {
				p.conf.refs[p.kind].delete(p.name)
			}

			if created != nil {
				return dispose(created)
			}

			return nil
		},
	}
}
