// Package logconftest provides types and helpers for testing code which
// configures a logmanager.LogContext.
//
// Registry returns a registry with the built-in types plus a few recording
// types, so tests can observe what a configuration did:
//
//	c := logconf.New(logmanager.NewLogContext(), logconf.WithRegistry(logconftest.Registry()))
//	h, _ := c.AddHandlerConfiguration("", logconftest.RecordingHandlerType, "REC")
//
// Start captures the records logged through a LogContext during a test,
// and dumps them to t.Log() if the test fails:
//
//	defer logconftest.Start(t, ctx)()
package logconftest

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ThalesGroup/logconf"
	"github.com/ThalesGroup/logconf/logmanager"
)

// Verbose forwards captured records to t.Log() as they are published.  It
// is initialized from the LOGCONF_TEST_VERBOSE environment variable.
var Verbose bool

//nolint:gochecknoinits
func init() {
	Verbose, _ = strconv.ParseBool(os.Getenv("LOGCONF_TEST_VERBOSE"))
}

// Start publishes every record logged through ctx's root logger to a
// buffer.  If the test fails or panics, the buffer is dumped to t.Log().
// The returned function restores the root logger; it is also registered
// with t.Cleanup.
func Start(t testing.TB, ctx *logmanager.LogContext) func() {
	return start(t, ctx)
}

type lockedBuf struct {
	buf bytes.Buffer
	sync.Mutex
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.Lock()
	defer l.Unlock()

	return l.buf.Write(p)
}

func (l *lockedBuf) Len() int {
	l.Lock()
	defer l.Unlock()

	return l.buf.Len()
}

func (l *lockedBuf) String() string {
	l.Lock()
	defer l.Unlock()

	return l.buf.String()
}

// logWriter forwards each write to a log function.
type logWriter func(args ...any)

func (f logWriter) Write(p []byte) (int, error) {
	f(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

type testingTB interface {
	Failed() bool
	Log(args ...any)
	Cleanup(func())
}

func start(t testingTB, ctx *logmanager.LogContext) func() {
	root := ctx.Root()
	state := root.State()

	buf := &lockedBuf{}

	h := logmanager.NewWriterHandler(buf)
	if Verbose {
		h.SetWriter(logWriter(t.Log))
	}

	root.AddHandler(h)

	ran := atomic.Bool{}
	revert := func() {
		if !ran.CompareAndSwap(false, true) {
			return
		}

		root.Restore(state)

		// recover must be called directly by the deferred function
		recovered := recover()
		if buf.Len() > 0 && (recovered != nil || t.Failed()) {
			t.Log(buf.String())
		}

		if recovered != nil {
			panic(recovered)
		}
	}

	t.Cleanup(revert)

	return revert
}

// Type names registered by Registry.
const (
	// ConsoleHandlerType is the ConsoleHandler under a qualified name.
	ConsoleHandlerType   = "some.ConsoleHandler"
	RecordingHandlerType = "RecordingHandler"
	RecordingFilterType  = "RecordingFilter"
	WidgetType           = "Widget"
)

// Registry returns a copy of the default registry, with the recording
// types added.
func Registry() *logconf.Registry {
	r := logconf.DefaultRegistry().Clone()

	r.Register("", consoleHandlerType())
	r.Register("", recordingHandlerType())
	r.Register("", recordingFilterType())
	r.Register("", widgetType())

	return r
}

func consoleHandlerType() *logconf.Type {
	b := logconf.NewType(ConsoleHandlerType, logmanager.NewConsoleHandler)
	logconf.PropertyE(b, "encoding", logconf.TypeCharset,
		(*logmanager.ConsoleHandler).Encoding,
		(*logmanager.ConsoleHandler).SetEncoding,
	)
	logconf.Property(b, "autoFlush", logconf.TypeBool,
		(*logmanager.ConsoleHandler).AutoFlush,
		(*logmanager.ConsoleHandler).SetAutoFlush,
	)

	return b.Type()
}

// RecordingHandler keeps every record it publishes.
type RecordingHandler struct {
	logmanager.HandlerBase

	mu      sync.Mutex
	records []*logmanager.Record
	tag     string
	flushes int
	closes  int
}

func NewRecordingHandler() *RecordingHandler {
	h := &RecordingHandler{}
	h.SetLevel(logmanager.LevelAll)

	return h
}

func (h *RecordingHandler) Publish(r *logmanager.Record) {
	if !h.IsLoggable(r) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r.Clone())
}

// Records returns the records published so far.
func (h *RecordingHandler) Records() []*logmanager.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]*logmanager.Record(nil), h.records...)
}

// Messages returns the messages published so far, formatted with the
// handler's formatter if it has one.
func (h *RecordingHandler) Messages() []string {
	var msgs []string

	formatted := h.Formatter() != nil

	for _, r := range h.Records() {
		if !formatted {
			msgs = append(msgs, r.Message)
			continue
		}

		if b, ok := h.FormatRecord(r); ok {
			msgs = append(msgs, string(b))
		}
	}

	return msgs
}

func (h *RecordingHandler) Tag() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.tag
}

// SetTag sets a free text property, which tests can check for.
func (h *RecordingHandler) SetTag(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.tag = s
}

func (h *RecordingHandler) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.flushes++
}

func (h *RecordingHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closes++

	return nil
}

// Closed returns the number of times Close was called.
func (h *RecordingHandler) Closed() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closes
}

func recordingHandlerType() *logconf.Type {
	b := logconf.NewType(RecordingHandlerType, NewRecordingHandler)
	logconf.PropertyE(b, "encoding", logconf.TypeCharset,
		(*RecordingHandler).Encoding,
		(*RecordingHandler).SetEncoding,
	)
	logconf.Property(b, "tag", logconf.TypeString,
		(*RecordingHandler).Tag,
		(*RecordingHandler).SetTag,
	)
	logconf.Method(b, "flush", func(h *RecordingHandler) error {
		h.Flush()
		return nil
	})

	return b.Type()
}

// RecordingFilter accepts records whose level is at least Min, and counts
// the records it sees.
type RecordingFilter struct {
	Min  int
	seen atomic.Int64
}

func (f *RecordingFilter) IsLoggable(r *logmanager.Record) bool {
	f.seen.Add(1)
	return int(r.Level) >= f.Min
}

// Seen returns the number of records checked.
func (f *RecordingFilter) Seen() int {
	return int(f.seen.Load())
}

func recordingFilterType() *logconf.Type {
	b := logconf.NewType(RecordingFilterType, func() *RecordingFilter {
		return &RecordingFilter{}
	})
	logconf.Property(b, "min", logconf.TypeInt,
		func(f *RecordingFilter) int { return f.Min },
		func(f *RecordingFilter, v int) { f.Min = v },
	)

	return b.Type()
}

// Widget is a plain object with properties of several types and a pair of
// post configuration methods, "m1" and "m2", which record their calls.
type Widget struct {
	Label   string
	Size    int
	Enabled bool
	Handler logmanager.Handler
	Calls   []string
}

func widgetType() *logconf.Type {
	b := logconf.NewType(WidgetType, func() *Widget {
		return &Widget{}
	})
	logconf.Property(b, "label", logconf.TypeString,
		func(w *Widget) string { return w.Label },
		func(w *Widget, v string) { w.Label = v },
	)
	logconf.Property(b, "size", logconf.TypeInt,
		func(w *Widget) int { return w.Size },
		func(w *Widget, v int) { w.Size = v },
	)
	logconf.Property(b, "enabled", logconf.TypeBool,
		func(w *Widget) bool { return w.Enabled },
		func(w *Widget, v bool) { w.Enabled = v },
	)
	logconf.Property(b, "handler", logconf.TypeHandler,
		func(w *Widget) logmanager.Handler { return w.Handler },
		func(w *Widget, h logmanager.Handler) { w.Handler = h },
	)
	logconf.Constructor(b, []logconf.Param{{Name: "label", Type: logconf.TypeString}}, func(args []any) (*Widget, error) {
		label, _ := args[0].(string)
		return &Widget{Label: label}, nil
	})

	for _, m := range []string{"m1", "m2"} {
		logconf.Method(b, m, func(w *Widget) error {
			w.Calls = append(w.Calls, m)
			return nil
		})
	}

	return b.Type()
}
