// Package expression resolves `${...}` property expressions found in logging
// configuration values.
//
// A value is either a literal, or text containing one or more placeholders:
//
//	${name}                // value of property "name"
//	${name:default}        // "default" if "name" is undefined
//	${a,b,c:default}       // first defined of a, b, c, else "default"
//	${env.HOME}            // falls back to the HOME environment variable
//	${/} ${:}              // os.PathSeparator, os.PathListSeparator
//	$$                     // a literal "$"
//
// Resolution never fails.  A placeholder which can't be resolved and has no
// default is emitted verbatim, so the original text survives a round trip.
//
// The resolved Value keeps the original expression text alongside the
// resolved value, so configuration can be exported with expressions intact.
package expression

import (
	"os"
	"strings"
	"sync"
)

// Value is an immutable value which was either given literally, or resolved
// from an expression.  The zero Value is null.
type Value struct {
	expression string
	value      string
	isExpr     bool
	valid      bool
}

// Null is the null Value.
var Null = Value{}

// Literal returns a non-expression Value.
func Literal(value string) Value {
	return Value{value: value, valid: true}
}

// NewValue pairs an expression with an already resolved value.  If expr is
// empty, the result is a literal.
func NewValue(expr, value string) Value {
	if expr == "" {
		return Literal(value)
	}

	return Value{
		expression: expr,
		value:      value,
		isExpr:     expr != value || strings.Contains(expr, "$"),
		valid:      true,
	}
}

// Value returns the resolved value.  Empty if the Value is null.
func (v Value) Value() string {
	return v.value
}

// Expression returns the raw expression text, or "" if the Value is a
// literal.
func (v Value) Expression() string {
	if !v.isExpr {
		return ""
	}

	return v.expression
}

// IsExpression returns true if the value was derived from an expression.
func (v Value) IsExpression() bool {
	return v.isExpr
}

// IsNull returns true for the null value.
func (v Value) IsNull() bool {
	return !v.valid
}

// String returns the text which should be used when exporting the value:
// the expression if there is one, otherwise the resolved value.
func (v Value) String() string {
	if v.isExpr {
		return v.expression
	}

	return v.value
}

// BoolValue is a Value whose resolved text has been parsed as a boolean.
type BoolValue struct {
	Value
	Bool bool
}

// Source supplies property values to a Resolver.
type Source interface {
	Lookup(name string) (string, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(name string) (string, bool)

// Lookup implements Source
func (f SourceFunc) Lookup(name string) (string, bool) {
	return f(name)
}

// MapSource is a Source backed by a map.
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

var properties sync.Map

// SetProperty sets a process-wide property, visible to the default resolver.
func SetProperty(name, value string) {
	properties.Store(name, value)
}

// ClearProperty removes a process-wide property.
func ClearProperty(name string) {
	properties.Delete(name)
}

// LookupProperty returns a process-wide property.
func LookupProperty(name string) (string, bool) {
	v, ok := properties.Load(name)
	if !ok {
		return "", false
	}

	s, _ := v.(string)

	return s, true
}

// Properties is the Source of process-wide properties set with SetProperty.
var Properties Source = SourceFunc(LookupProperty)

// Resolver resolves expressions against a property Source.
type Resolver struct {
	source Source
}

// NewResolver returns a Resolver which looks properties up in source.  If
// source is nil, the process-wide Properties are used.
func NewResolver(source Source) *Resolver {
	if source == nil {
		source = Properties
	}

	return &Resolver{source: source}
}

var defaultResolver = NewResolver(nil)

// DefaultResolver returns the resolver backed by the process-wide properties.
func DefaultResolver() *Resolver {
	return defaultResolver
}

// Resolve resolves text with the default resolver.
func Resolve(text string) Value {
	return defaultResolver.Resolve(text)
}

// ResolveBool resolves text with the default resolver, and parses the result
// as a boolean.
func ResolveBool(text string) BoolValue {
	return defaultResolver.ResolveBool(text)
}

// Resolve resolves all placeholders in text.
func (r *Resolver) Resolve(text string) Value {
	value, isExpr := r.expand(text)
	if !isExpr {
		return Literal(value)
	}

	return Value{expression: text, value: value, isExpr: true, valid: true}
}

// ResolveBool resolves text, then parses "true" (case-insensitive) as true,
// anything else as false.  Empty text is null.
func (r *Resolver) ResolveBool(text string) BoolValue {
	if text == "" {
		return BoolValue{}
	}

	v := r.Resolve(text)

	return BoolValue{Value: v, Bool: strings.EqualFold(strings.TrimSpace(v.value), "true")}
}

func (r *Resolver) lookup(name string) (string, bool) {
	if v, ok := r.source.Lookup(name); ok {
		return v, true
	}

	if rest, ok := strings.CutPrefix(name, "env."); ok {
		return os.LookupEnv(rest)
	}

	return "", false
}

// expand returns the expanded text, and whether any expression syntax was
// seen.
func (r *Resolver) expand(s string) (string, bool) {
	if !strings.Contains(s, "$") {
		return s, false
	}

	var b strings.Builder

	sawExpr := false

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			i++

			continue
		}

		if i+1 == len(s) {
			// trailing dollar is kept
			b.WriteByte('$')
			i++

			continue
		}

		switch s[i+1] {
		case '$':
			sawExpr = true

			b.WriteByte('$')

			i += 2
		case '{':
			sawExpr = true

			end := closingBrace(s, i+2)
			if end < 0 {
				// unterminated, echo the rest
				b.WriteString(s[i:])
				i = len(s)

				continue
			}

			b.WriteString(r.placeholder(s[i+2:end], s[i:end+1]))

			i = end + 1
		default:
			b.WriteByte('$')
			i++
		}
	}

	return b.String(), sawExpr
}

// placeholder resolves the body of a single ${...}.  raw is the whole
// placeholder, returned when nothing resolves.
func (r *Resolver) placeholder(body, raw string) string {
	switch body {
	case "/":
		return string(os.PathSeparator)
	case ":":
		return string(os.PathListSeparator)
	}

	names, def, hasDefault := splitDefault(body)

	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "":
			continue
		case "/":
			return string(os.PathSeparator)
		}

		if v, ok := r.lookup(name); ok {
			return v
		}
	}

	if hasDefault {
		v, _ := r.expand(def)
		return v
	}

	return raw
}

// splitDefault splits "names:default" on the first colon which is not nested
// inside another placeholder.
func splitDefault(body string) (names, def string, ok bool) {
	depth := 0

	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '$':
			if i+1 < len(body) && body[i+1] == '{' {
				depth++
				i++
			}
		case '}':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 {
				return body[:i], body[i+1:], true
			}
		}
	}

	return body, "", false
}

// closingBrace returns the index of the '}' closing a placeholder whose body
// starts at start, or -1.
func closingBrace(s string, start int) int {
	depth := 0

	for i := start; i < len(s); i++ {
		switch s[i] {
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				depth++
				i++
			}
		case '}':
			if depth == 0 {
				return i
			}

			depth--
		}
	}

	return -1
}
