package logmanager

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Record is a single log event travelling through loggers, filters and
// handlers.  Filters may rewrite Level and Message.
type Record struct {
	Time       time.Time
	Level      slog.Level
	LoggerName string
	Message    string
	Err        error
	Attrs      []slog.Attr
}

// NewRecord creates a Record stamped with the current time.  args are
// converted into attributes using slog's key/value conventions.  An error
// value among the args is attached as the record's Err.
func NewRecord(level slog.Level, loggerName, msg string, args ...any) *Record {
	r := &Record{
		Time:       time.Now(),
		Level:      level,
		LoggerName: loggerName,
		Message:    msg,
	}

	for len(args) > 0 {
		switch v := args[0].(type) {
		case error:
			r.Err = v
			args = args[1:]
		case slog.Attr:
			r.Attrs = append(r.Attrs, v)
			args = args[1:]
		case string:
			if len(args) == 1 {
				r.Attrs = append(r.Attrs, slog.String("!BADKEY", v))
				args = nil

				continue
			}

			r.Attrs = append(r.Attrs, slog.Any(v, args[1]))
			args = args[2:]
		default:
			r.Attrs = append(r.Attrs, slog.Any("!BADKEY", v))
			args = args[1:]
		}
	}

	return r
}

// Clone returns a copy which can be modified without affecting r.
func (r *Record) Clone() *Record {
	c := *r
	c.Attrs = append([]slog.Attr(nil), r.Attrs...)

	return &c
}

// AttrsString renders the attributes as space separated key=value pairs.
func (r *Record) AttrsString() string {
	if len(r.Attrs) == 0 {
		return ""
	}

	var b strings.Builder

	for i, a := range r.Attrs {
		if i > 0 {
			b.WriteByte(' ')
		}

		fmt.Fprintf(&b, "%s=%v", a.Key, a.Value.Resolve())
	}

	return b.String()
}
