package logconf

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ThalesGroup/logconf/expression"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// ValueType converts configured text into the value passed to a property
// setter or constructor.  New value types are added by implementing this
// interface.
type ValueType interface {
	Name() string
	// Primitive types have no null value: converting a null expression
	// fails instead of producing nil.
	Primitive() bool
	// Convert converts the resolved value.  With immediate set, references
	// to other configured objects must already have a live instance.
	Convert(c *Configuration, v expression.Value, immediate bool) (Producer, error)
}

type scalarType struct {
	name      string
	primitive bool
	parse     func(c *Configuration, s string) (any, error)
}

func (t *scalarType) Name() string { return t.name }

func (t *scalarType) Primitive() bool { return t.primitive }

func (t *scalarType) Convert(c *Configuration, v expression.Value, _ bool) (Producer, error) {
	if v.IsNull() {
		if t.primitive {
			return nil, merry.Errorf("%w: %s value required", ErrInvalidValue, t.name)
		}

		return NullProducer, nil
	}

	val, err := t.parse(c, strings.TrimSpace(v.Value()))
	if err != nil {
		return nil, merry.Errorf("%w %q for %s: %v", ErrInvalidValue, v.Value(), t.name, err)
	}

	return Immediate(val), nil
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Primitive() bool { return false }

func (stringType) Convert(_ *Configuration, v expression.Value, _ bool) (Producer, error) {
	if v.IsNull() {
		return NullProducer, nil
	}

	return Immediate(v.Value()), nil
}

var (
	// TypeString passes the resolved text through untrimmed.
	TypeString ValueType = stringType{}

	TypeBool ValueType = &scalarType{name: "bool", primitive: true, parse: func(_ *Configuration, s string) (any, error) {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}

		return nil, fmt.Errorf("expected true or false")
	}}

	TypeInt ValueType = &scalarType{name: "int", primitive: true, parse: func(_ *Configuration, s string) (any, error) {
		return strconv.Atoi(s)
	}}

	TypeInt64 ValueType = &scalarType{name: "int64", primitive: true, parse: func(_ *Configuration, s string) (any, error) {
		return strconv.ParseInt(s, 10, 64)
	}}

	TypeFloat64 ValueType = &scalarType{name: "float64", primitive: true, parse: func(_ *Configuration, s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	}}

	TypeRune ValueType = &scalarType{name: "rune", primitive: true, parse: func(_ *Configuration, s string) (any, error) {
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("expected a single character")
		}

		r, _ := utf8.DecodeRuneInString(s)

		return r, nil
	}}

	TypeDuration ValueType = &scalarType{name: "duration", parse: func(_ *Configuration, s string) (any, error) {
		return time.ParseDuration(s)
	}}

	// TypeLevel parses level names against the configuration's LogContext.
	TypeLevel ValueType = &scalarType{name: "level", parse: func(c *Configuration, s string) (any, error) {
		return c.logctx.LevelForName(s)
	}}

	// TypeTimeZone produces a *time.Location.
	TypeTimeZone ValueType = &scalarType{name: "time zone", parse: func(_ *Configuration, s string) (any, error) {
		return time.LoadLocation(s)
	}}

	// TypeCharset checks the charset is supported, and produces its name.
	TypeCharset ValueType = &scalarType{name: "charset", parse: func(_ *Configuration, s string) (any, error) {
		if _, err := logmanager.LookupEncoding(s); err != nil {
			return nil, err
		}

		return s, nil
	}}
)

// TypeEnum accepts exactly one of values, producing it as a string.
func TypeEnum(name string, values ...string) ValueType {
	return &scalarType{name: name, parse: func(_ *Configuration, s string) (any, error) {
		if slices.Contains(values, s) {
			return s, nil
		}

		return nil, fmt.Errorf("expected one of %s", strings.Join(values, ", "))
	}}
}

// refType names another configured object.
type refType struct {
	kind Kind
}

func (t refType) Name() string { return t.kind.String() }

func (t refType) Primitive() bool { return false }

func (t refType) Convert(c *Configuration, v expression.Value, immediate bool) (Producer, error) {
	if v.IsNull() {
		return NullProducer, nil
	}

	name := strings.TrimSpace(v.Value())
	if name == "" {
		return NullProducer, nil
	}

	return c.reference(t.kind, name, immediate)
}

type filterType struct{}

func (filterType) Name() string { return "filter" }

func (filterType) Primitive() bool { return false }

func (filterType) Convert(c *Configuration, v expression.Value, immediate bool) (Producer, error) {
	if v.IsNull() {
		return NullProducer, nil
	}

	return c.ResolveFilter(v.Value(), immediate)
}

var (
	TypeHandler      ValueType = refType{kind: KindHandler}
	TypeFormatter    ValueType = refType{kind: KindFormatter}
	TypeErrorManager ValueType = refType{kind: KindErrorManager}
	TypeLogger       ValueType = refType{kind: KindLogger}
	TypePojo         ValueType = refType{kind: KindPojo}
	// TypeFilter accepts a filter expression, which may be just the name
	// of a configured filter.
	TypeFilter ValueType = filterType{}
)
