package logconf

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
)

// ResolveFilter parses a filter expression:
//
//	accept
//	deny
//	not(expr)
//	all(expr, expr...)
//	any(expr, expr...)
//	levelChange(LEVEL)
//	levels(LEVEL, LEVEL...)
//	levelRange[MIN, MAX)      "[" and "]" are inclusive, "(" and ")" exclusive
//	match("regex")
//	substitute("regex", "replacement")
//	substituteAll("regex", "replacement")
//	name                      a configured filter
//
// Text which is exactly the name of a configured filter resolves to that
// filter.  Empty text produces nil.  Level names are resolved immediately;
// configured filters named inside an expression are looked up when records
// are filtered, unless immediate is set, in which case they must already
// exist.
func (c *Configuration) ResolveFilter(expr string, immediate bool) (Producer, error) {
	if _, ok := c.entity(KindFilter, expr); ok {
		return c.reference(KindFilter, expr, immediate)
	}

	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	if len(toks) == 0 {
		return NullProducer, nil
	}

	p := &filterParser{c: c, toks: toks, immediate: immediate, expr: expr}

	f, err := p.parse()
	if err != nil {
		return nil, err
	}

	if p.pos < len(p.toks) {
		return nil, p.syntaxError("extra data after filter expression")
	}

	return Immediate(f), nil
}

type token struct {
	text string
	str  bool
	pos  int
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(expr string) ([]token, error) {
	var toks []token

	rs := []rune(expr)

	for i := 0; i < len(rs); {
		r := rs[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case isIdentRune(r):
			start := i
			for i < len(rs) && isIdentRune(rs[i]) {
				i++
			}

			toks = append(toks, token{text: string(rs[start:i]), pos: start})
		case r == '"':
			start := i

			var b strings.Builder

			i++

			for {
				if i >= len(rs) {
					return nil, merry.Errorf("%w: unterminated string at position %d in filter expression %q", ErrSyntax, start, expr)
				}

				r = rs[i]
				i++

				if r == '"' {
					break
				}

				if r != '\\' {
					b.WriteRune(r)
					continue
				}

				if i >= len(rs) {
					return nil, merry.Errorf("%w: unterminated string at position %d in filter expression %q", ErrSyntax, start, expr)
				}

				esc := rs[i]
				i++

				switch esc {
				case '\\', '\'', '"':
					b.WriteRune(esc)
				case 'b':
					b.WriteRune('\b')
				case 'f':
					b.WriteRune('\f')
				case 'n':
					b.WriteRune('\n')
				case 'r':
					b.WriteRune('\r')
				case 't':
					b.WriteRune('\t')
				default:
					return nil, merry.Errorf("%w: invalid escape \\%c at position %d in filter expression %q", ErrSyntax, esc, i-2, expr)
				}
			}

			toks = append(toks, token{text: b.String(), str: true, pos: start})
		default:
			toks = append(toks, token{text: string(r), pos: i})
			i++
		}
	}

	return toks, nil
}

type filterParser struct {
	c         *Configuration
	toks      []token
	pos       int
	immediate bool
	expr      string
}

func (p *filterParser) syntaxError(msg string) error {
	at := len(p.expr)
	if p.pos < len(p.toks) {
		at = p.toks[p.pos].pos
	}

	return merry.Errorf("%w: %s at position %d in filter expression %q", ErrSyntax, msg, at, p.expr)
}

func (p *filterParser) next() (token, error) {
	if p.pos >= len(p.toks) {
		return token{}, p.syntaxError("unexpected end of expression")
	}

	t := p.toks[p.pos]
	p.pos++

	return t, nil
}

func (p *filterParser) expect(punct ...string) (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}

	if !t.str {
		for _, s := range punct {
			if t.text == s {
				return s, nil
			}
		}
	}

	p.pos--

	return "", p.syntaxError("expected " + strings.Join(punct, " or "))
}

func (p *filterParser) ident() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}

	if !t.str && (t.text == ")" || t.text == "," || t.text == "]") {
		p.pos--
		return "", p.syntaxError("unexpected end of expression")
	}

	if t.str || !isIdentRune([]rune(t.text)[0]) {
		p.pos--
		return "", p.syntaxError("expected a name")
	}

	return t.text, nil
}

func (p *filterParser) str() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}

	if !t.str {
		p.pos--
		return "", p.syntaxError("expected a quoted string")
	}

	return t.text, nil
}

func (p *filterParser) level() (slog.Level, error) {
	name, err := p.ident()
	if err != nil {
		return 0, err
	}

	l, err := p.c.logctx.LevelForName(name)
	if err != nil {
		return 0, merry.Errorf("%w: filter expression %q: %w", ErrInvalidValue, p.expr, err)
	}

	return l, nil
}

// list parses "(" item {"," item} ")".
func (p *filterParser) list(item func() error) error {
	if _, err := p.expect("("); err != nil {
		return err
	}

	for {
		if err := item(); err != nil {
			return err
		}

		sep, err := p.expect(",", ")")
		if err != nil {
			return err
		}

		if sep == ")" {
			return nil
		}
	}
}

func (p *filterParser) parse() (logmanager.Filter, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	switch name {
	case "accept":
		return logmanager.AcceptAll, nil
	case "deny":
		return logmanager.DenyAll, nil
	case "not":
		var inner logmanager.Filter

		err := p.list(func() error {
			if inner != nil {
				return p.syntaxError("not takes one filter")
			}

			var err error
			inner, err = p.parse()

			return err
		})
		if err != nil {
			return nil, err
		}

		return &logmanager.NotFilter{Filter: inner}, nil
	case "all", "any":
		var fs []logmanager.Filter

		err := p.list(func() error {
			f, err := p.parse()
			fs = append(fs, f)

			return err
		})
		if err != nil {
			return nil, err
		}

		if name == "all" {
			return logmanager.AllFilter(fs), nil
		}

		return logmanager.AnyFilter(fs), nil
	case "levelChange":
		var (
			l   slog.Level
			set bool
		)

		err := p.list(func() error {
			if set {
				return p.syntaxError("levelChange takes one level")
			}

			var err error
			l, err = p.level()
			set = true

			return err
		})
		if err != nil {
			return nil, err
		}

		return &logmanager.LevelChangeFilter{Level: l}, nil
	case "levels":
		var levels []slog.Level

		err := p.list(func() error {
			l, err := p.level()
			levels = append(levels, l)

			return err
		})
		if err != nil {
			return nil, err
		}

		return logmanager.NewLevelFilter(levels...), nil
	case "levelRange":
		open, err := p.expect("[", "(")
		if err != nil {
			return nil, err
		}

		lo, err := p.level()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(","); err != nil {
			return nil, err
		}

		hi, err := p.level()
		if err != nil {
			return nil, err
		}

		closing, err := p.expect("]", ")")
		if err != nil {
			return nil, err
		}

		return &logmanager.LevelRangeFilter{
			Min:          lo,
			Max:          hi,
			MinInclusive: open == "[",
			MaxInclusive: closing == "]",
		}, nil
	case "match":
		var pattern string

		if err := p.args(&pattern); err != nil {
			return nil, err
		}

		f, err := logmanager.NewRegexFilter(pattern)
		if err != nil {
			return nil, merry.Errorf("%w: filter expression %q: %w", ErrInvalidValue, p.expr, err)
		}

		return f, nil
	case "substitute", "substituteAll":
		var pattern, replacement string

		if err := p.args(&pattern, &replacement); err != nil {
			return nil, err
		}

		f, err := logmanager.NewSubstituteFilter(pattern, replacement, name == "substituteAll")
		if err != nil {
			return nil, merry.Errorf("%w: filter expression %q: %w", ErrInvalidValue, p.expr, err)
		}

		return f, nil
	}

	prod, err := p.c.reference(KindFilter, name, p.immediate)
	if err != nil {
		return nil, merry.Prependf(err, "filter expression %q", p.expr)
	}

	if p.immediate {
		f, _ := prod.Object().(logmanager.Filter)
		return f, nil
	}

	return &namedFilter{name: name, p: prod}, nil
}

// args parses a parenthesized list of exactly len(dst) strings.
func (p *filterParser) args(dst ...*string) error {
	if _, err := p.expect("("); err != nil {
		return err
	}

	for i, d := range dst {
		if i > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}

		s, err := p.str()
		if err != nil {
			return err
		}

		*d = s
	}

	_, err := p.expect(")")

	return err
}

// namedFilter looks up a configured filter each time a record is checked.
// Records pass while the filter doesn't exist.
type namedFilter struct {
	name string
	p    Producer
}

func (f *namedFilter) IsLoggable(r *logmanager.Record) bool {
	if inner, ok := f.p.Object().(logmanager.Filter); ok {
		return inner.IsLoggable(r)
	}

	return true
}

func (f *namedFilter) String() string {
	return f.name
}
