package logconf

import (
	"slices"

	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// valueOf builds the expression for the plain attribute setters: "" clears
// the attribute.
func (e *entityBase) valueOf(text string) expression.Value {
	if text == "" {
		return expression.Null
	}

	return e.conf.resolver.Resolve(text)
}

func explicitValue(expr, value string) expression.Value {
	if expr == "" && value == "" {
		return expression.Null
	}

	return expression.NewValue(expr, value)
}

// setAttribute queues a change to one of the fixed attributes of a logger
// or handler, like its level or formatter.  apply receives the converted
// value, nil when the attribute is cleared.
func (e *entityBase) setAttribute(what string, field *expression.Value, v expression.Value, vt ValueType, apply func(obj, val any) error) error {
	if err := e.checkRemoved(); err != nil {
		return err
	}

	old := *field
	*field = v
	applied := false

	e.conf.enqueue(e.describe("set "+what), ActionFuncs{
		ValidateFn: func() (any, error) {
			p, err := vt.Convert(e.conf, v, false)
			if err != nil {
				return nil, merry.Prependf(err, "%s %q: %s", e.kind, e.name, what)
			}

			return p, nil
		},
		PostCreateFn: func(prepared any) error {
			obj, ok := e.instance()
			if !ok {
				return merry.Errorf("%w: %s %q has no instance", ErrNotFound, e.kind, e.name)
			}

			applied = true

			return apply(obj, prepared.(Producer).Object()) //nolint:forcetypeassert
		},
		RollbackFn: func() error {
			*field = old

			if !applied {
				return nil
			}

			obj, ok := e.instance()
			if !ok {
				return nil
			}

			p, err := vt.Convert(e.conf, old, false)
			if err != nil {
				return err
			}

			return apply(obj, p.Object())
		},
	})

	return nil
}

// setHandlerNames queues a change to a list of handler names.  Names are
// checked when the batch is validated, and looked up again when the list
// is applied.
func (e *entityBase) setHandlerNames(field *[]string, names []string, apply func(obj any, handlers []logmanager.Handler)) error {
	if err := e.checkRemoved(); err != nil {
		return err
	}

	old := *field
	*field = names
	applied := false

	e.conf.enqueue(e.describe("set handlers"), ActionFuncs{
		ValidateFn: func() (any, error) {
			producers := make([]Producer, 0, len(names))

			for _, n := range names {
				p, err := e.conf.reference(KindHandler, n, false)
				if err != nil {
					return nil, merry.Prependf(err, "%s %q", e.kind, e.name)
				}

				producers = append(producers, p)
			}

			return producers, nil
		},
		PostCreateFn: func(prepared any) error {
			obj, ok := e.instance()
			if !ok {
				return merry.Errorf("%w: %s %q has no instance", ErrNotFound, e.kind, e.name)
			}

			applied = true

			apply(obj, handlers(prepared.([]Producer))) //nolint:forcetypeassert

			return nil
		},
		RollbackFn: func() error {
			*field = old

			if !applied {
				return nil
			}

			obj, ok := e.instance()
			if !ok {
				return nil
			}

			producers := make([]Producer, 0, len(old))
			for _, n := range old {
				producers = append(producers, Deferred(n, e.conf.refLookup(KindHandler)))
			}

			apply(obj, handlers(producers))

			return nil
		},
	})

	return nil
}

// handlers resolves handler producers, skipping missing handlers.
func handlers(producers []Producer) []logmanager.Handler {
	hs := make([]logmanager.Handler, 0, len(producers))

	for _, p := range producers {
		if h, ok := p.Object().(logmanager.Handler); ok {
			hs = append(hs, h)
		}
	}

	return hs
}

func addName(names []string, name string) ([]string, bool) {
	if slices.Contains(names, name) {
		return names, false
	}

	return append(slices.Clone(names), name), true
}

func removeName(names []string, name string) ([]string, bool) {
	if !slices.Contains(names, name) {
		return names, false
	}

	return slices.DeleteFunc(slices.Clone(names), func(s string) bool { return s == name }), true
}
