package logmanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	console "github.com/ansel1/console-slog"
	"github.com/mgutz/ansi"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formatter renders a record as text.
type Formatter interface {
	Format(r *Record) string
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(r *Record) string

func (f FormatterFunc) Format(r *Record) string {
	return f(r)
}

const DefaultPattern = "%d{HH:mm:ss,SSS} %-5p [%c] %s%e%n"

// PatternFormatter formats records according to a pattern string.
//
// Supported conversions:
//
//	%d{fmt}  timestamp; fmt uses y M d H m s S a z Z letters, default yyyy-MM-dd HH:mm:ss,SSS
//	%p       level name
//	%c{n}    logger name, optionally only the last n segments
//	%m       message
//	%s       message followed by the record attributes
//	%e       error, preceded by ": ", if there is one
//	%n       newline
//	%%       percent
//
// Each conversion may carry a width, e.g. %-5p left justifies to 5 runes,
// %10c right justifies, and %.20m truncates to 20 runes.
type PatternFormatter struct {
	mu      sync.RWMutex
	pattern string
	steps   []patternStep
	color   bool
}

func NewPatternFormatter(pattern string) (*PatternFormatter, error) {
	f := &PatternFormatter{}

	if err := f.SetPattern(pattern); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *PatternFormatter) Pattern() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.pattern
}

// SetPattern compiles and installs a new pattern.  An empty pattern selects
// DefaultPattern.
func (f *PatternFormatter) SetPattern(pattern string) error {
	if pattern == "" {
		pattern = DefaultPattern
	}

	steps, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pattern = pattern
	f.steps = steps

	return nil
}

func (f *PatternFormatter) Color() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.color
}

// SetColor enables ANSI coloring of the level name.
func (f *PatternFormatter) SetColor(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.color = b
}

func (f *PatternFormatter) Format(r *Record) string {
	f.mu.RLock()
	steps, color := f.steps, f.color
	f.mu.RUnlock()

	var b strings.Builder

	for _, s := range steps {
		if s.literal != "" {
			b.WriteString(s.literal)
			continue
		}

		text := s.render(r)
		text = s.pad(text)

		if color && s.verb == 'p' {
			text = ansi.Color(text, levelColor(r.Level))
		}

		b.WriteString(text)
	}

	return b.String()
}

func levelColor(l slog.Level) string {
	switch {
	case l >= LevelError:
		return "red+b"
	case l >= LevelWarn:
		return "yellow"
	case l >= LevelInfo:
		return "green"
	default:
		return "cyan"
	}
}

var errBadPattern = errors.New("invalid pattern")

type patternStep struct {
	literal  string
	verb     byte
	arg      string
	left     bool
	minWidth int
	maxWidth int
	layout   string
	segments int
}

func compilePattern(pattern string) ([]patternStep, error) {
	var (
		steps []patternStep
		lit   strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			steps = append(steps, patternStep{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' {
			lit.WriteByte(c)
			continue
		}

		i++
		if i == len(pattern) {
			return nil, fmt.Errorf("%w %q: dangling %%", errBadPattern, pattern)
		}

		if pattern[i] == '%' {
			lit.WriteByte('%')
			continue
		}

		s := patternStep{}

		if pattern[i] == '-' {
			s.left = true
			i++
		}

		s.minWidth, i = scanInt(pattern, i)

		if i < len(pattern) && pattern[i] == '.' {
			s.maxWidth, i = scanInt(pattern, i+1)
		}

		if i == len(pattern) {
			return nil, fmt.Errorf("%w %q: missing conversion", errBadPattern, pattern)
		}

		s.verb = pattern[i]

		if i+1 < len(pattern) && pattern[i+1] == '{' {
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w %q: unterminated {", errBadPattern, pattern)
			}

			s.arg = pattern[i+2 : i+1+end]
			i += end + 1
		}

		switch s.verb {
		case 'd':
			s.layout = "2006-01-02 15:04:05,000"
			if s.arg != "" {
				s.layout = javaDateLayout(s.arg)
			}
		case 'c':
			if s.arg != "" {
				n, err := strconv.Atoi(s.arg)
				if err != nil || n < 1 {
					return nil, fmt.Errorf("%w %q: bad category precision %q", errBadPattern, pattern, s.arg)
				}

				s.segments = n
			}
		case 'p', 'm', 's', 'e', 'n':
		default:
			return nil, fmt.Errorf("%w %q: unknown conversion %%%c", errBadPattern, pattern, s.verb)
		}

		flush()
		steps = append(steps, s)
	}

	flush()

	return steps, nil
}

func scanInt(s string, i int) (int, int) {
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}

	return n, i
}

func (s patternStep) render(r *Record) string {
	switch s.verb {
	case 'd':
		return r.Time.Format(s.layout)
	case 'p':
		return LevelString(r.Level)
	case 'c':
		name := r.LoggerName
		if s.segments > 0 {
			parts := strings.Split(name, ".")
			if len(parts) > s.segments {
				name = strings.Join(parts[len(parts)-s.segments:], ".")
			}
		}

		return name
	case 'm':
		return r.Message
	case 's':
		if attrs := r.AttrsString(); attrs != "" {
			return r.Message + " " + attrs
		}

		return r.Message
	case 'e':
		if r.Err != nil {
			return ": " + r.Err.Error()
		}

		return ""
	case 'n':
		return "\n"
	}

	return ""
}

func (s patternStep) pad(text string) string {
	if s.maxWidth > 0 {
		if runes := []rune(text); len(runes) > s.maxWidth {
			text = string(runes[:s.maxWidth])
		}
	}

	if n := len([]rune(text)); n < s.minWidth {
		fill := strings.Repeat(" ", s.minWidth-n)
		if s.left {
			return text + fill
		}

		return fill + text
	}

	return text
}

// javaDateLayout converts a SimpleDateFormat style pattern to a Go time
// layout.  Quoted text is copied literally.
func javaDateLayout(p string) string {
	var b strings.Builder

	for i := 0; i < len(p); {
		c := p[i]

		if c == '\'' {
			end := strings.IndexByte(p[i+1:], '\'')
			if end < 0 {
				b.WriteString(p[i+1:])
				break
			}

			b.WriteString(p[i+1 : i+1+end])
			i += end + 2

			continue
		}

		n := 1
		for i+n < len(p) && p[i+n] == c {
			n++
		}

		switch c {
		case 'y':
			if n == 2 {
				b.WriteString("06")
			} else {
				b.WriteString("2006")
			}
		case 'M':
			switch {
			case n >= 4:
				b.WriteString("January")
			case n == 3:
				b.WriteString("Jan")
			default:
				b.WriteString("01")
			}
		case 'd':
			b.WriteString("02")
		case 'E':
			if n >= 4 {
				b.WriteString("Monday")
			} else {
				b.WriteString("Mon")
			}
		case 'H':
			b.WriteString("15")
		case 'h':
			b.WriteString("03")
		case 'm':
			b.WriteString("04")
		case 's':
			b.WriteString("05")
		case 'S':
			b.WriteString(strings.Repeat("0", n))
		case 'a':
			b.WriteString("PM")
		case 'z':
			b.WriteString("MST")
		case 'Z':
			b.WriteString("-0700")
		case 'X':
			b.WriteString("Z07:00")
		default:
			b.WriteString(p[i : i+n])
		}

		i += n
	}

	return b.String()
}

// JSONFormatter renders each record as a single JSON object using zap's JSON
// encoder.
type JSONFormatter struct {
	mu         sync.RWMutex
	dateFormat string
	metaData   string
	meta       []zapcore.Field
	encoder    zapcore.Encoder
}

func NewJSONFormatter() *JSONFormatter {
	f := &JSONFormatter{}
	f.rebuild()

	return f
}

func (f *JSONFormatter) DateFormat() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.dateFormat
}

// SetDateFormat sets the Go time layout for the "time" field.  Empty means
// RFC 3339 with nanoseconds.
func (f *JSONFormatter) SetDateFormat(layout string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dateFormat = layout
	f.rebuild()
}

func (f *JSONFormatter) MetaData() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.metaData
}

// SetMetaData sets static fields added to every record, written as
// comma separated key=value pairs.
func (f *JSONFormatter) SetMetaData(s string) error {
	fields, err := parseMetaData(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.metaData = s
	f.meta = fields

	return nil
}

var errInvalidMetaData = errors.New("invalid meta data pair")

func parseMetaData(s string) ([]zapcore.Field, error) {
	var (
		fields []zapcore.Field
		errs   error
	)

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: %q", errInvalidMetaData, pair))
			continue
		}

		fields = append(fields, zap.String(strings.TrimSpace(k), strings.TrimSpace(v)))
	}

	return fields, errs
}

// rebuild must be called with the lock held.
func (f *JSONFormatter) rebuild() {
	timeEncoder := zapcore.RFC3339NanoTimeEncoder
	if f.dateFormat != "" {
		timeEncoder = zapcore.TimeEncoderOfLayout(f.dateFormat)
	}

	f.encoder = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "time",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	})
}

func (f *JSONFormatter) Format(r *Record) string {
	f.mu.RLock()
	enc, meta := f.encoder, f.meta
	f.mu.RUnlock()

	fields := make([]zapcore.Field, 0, len(meta)+len(r.Attrs)+2)
	fields = append(fields, zap.String("level", LevelString(r.Level)))
	fields = append(fields, meta...)

	for _, a := range r.Attrs {
		fields = append(fields, zap.Any(a.Key, a.Value.Resolve().Any()))
	}

	if r.Err != nil {
		fields = append(fields, zap.Error(r.Err))
	}

	buf, err := enc.EncodeEntry(zapcore.Entry{
		Time:       r.Time,
		LoggerName: r.LoggerName,
		Message:    r.Message,
	}, fields)
	if err != nil {
		return fmt.Sprintf("{\"msg\":%q,\"formatError\":%q}\n", r.Message, err.Error())
	}

	s := buf.String()
	buf.Free()

	return s
}

// TermFormatter renders records for a terminal using console-slog.
type TermFormatter struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	noColor    bool
	timeFormat string
	handler    slog.Handler
}

func NewTermFormatter() *TermFormatter {
	f := &TermFormatter{timeFormat: "15:04:05.000"}
	f.rebuild()

	return f
}

func (f *TermFormatter) NoColor() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.noColor
}

func (f *TermFormatter) SetNoColor(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.noColor = b
	f.rebuild()
}

func (f *TermFormatter) TimeFormat() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.timeFormat
}

func (f *TermFormatter) SetTimeFormat(layout string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.timeFormat = layout
	f.rebuild()
}

func (f *TermFormatter) rebuild() {
	f.handler = console.NewHandler(&f.buf, &console.HandlerOptions{
		NoColor:    f.noColor,
		Level:      LevelAll,
		TimeFormat: f.timeFormat,
		Theme:      console.NewDefaultTheme(),
	})
}

func (f *TermFormatter) Format(r *Record) string {
	sr := slog.NewRecord(r.Time, r.Level, r.Message, 0)
	sr.AddAttrs(slog.String("logger", r.LoggerName))
	sr.AddAttrs(r.Attrs...)

	if r.Err != nil {
		sr.AddAttrs(slog.Any("error", r.Err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.Reset()

	if err := f.handler.Handle(context.Background(), sr); err != nil {
		return r.Message + "\n"
	}

	return f.buf.String()
}
