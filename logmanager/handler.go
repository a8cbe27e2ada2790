package logmanager

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Handler publishes records to some destination.
type Handler interface {
	Publish(r *Record)
	Flush()
	Close() error

	Level() slog.Level
	SetLevel(l slog.Level)
	Filter() Filter
	SetFilter(f Filter)
	Formatter() Formatter
	SetFormatter(f Formatter)
	Encoding() string
	SetEncoding(name string) error
	ErrorManager() ErrorManager
	SetErrorManager(m ErrorManager)
}

// NestedHandler is a Handler which delegates to other handlers.
type NestedHandler interface {
	Handler
	Handlers() []Handler
	SetHandlers(handlers []Handler)
	AddHandler(h Handler)
	RemoveHandler(h Handler)
}

var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// LookupEncoding resolves a charset name, e.g. "UTF-8" or "ISO-8859-1".
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrUnsupportedEncoding, name, err)
	}

	return enc, nil
}

// HandlerBase holds the settings common to all handlers.  Embed it to
// build a Handler.
type HandlerBase struct {
	mu           sync.RWMutex
	level        slog.Level
	filter       Filter
	formatter    Formatter
	encodingName string
	enc          encoding.Encoding
	errorManager ErrorManager
	closed       bool
}

func (h *HandlerBase) Level() slog.Level {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.level
}

func (h *HandlerBase) SetLevel(l slog.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.level = l
}

func (h *HandlerBase) Filter() Filter {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.filter
}

func (h *HandlerBase) SetFilter(f Filter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.filter = f
}

func (h *HandlerBase) Formatter() Formatter {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.formatter
}

func (h *HandlerBase) SetFormatter(f Formatter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.formatter = f
}

func (h *HandlerBase) Encoding() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.encodingName
}

// SetEncoding selects the charset output is written in.  Empty means UTF-8
// with no transcoding.
func (h *HandlerBase) SetEncoding(name string) error {
	var enc encoding.Encoding

	if name != "" {
		var err error

		enc, err = LookupEncoding(name)
		if err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.encodingName = name
	h.enc = enc

	return nil
}

func (h *HandlerBase) ErrorManager() ErrorManager {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.errorManager
}

func (h *HandlerBase) SetErrorManager(m ErrorManager) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errorManager = m
}

// IsLoggable checks the handler's level and filter.  Closed handlers accept
// nothing.
func (h *HandlerBase) IsLoggable(r *Record) bool {
	h.mu.RLock()
	level, filter, closed := h.level, h.filter, h.closed
	h.mu.RUnlock()

	if closed || level == LevelOff || r.Level < level {
		return false
	}

	return filter == nil || filter.IsLoggable(r)
}

// FormatRecord formats and encodes a record.  Without a formatter, the
// message alone is written.
func (h *HandlerBase) FormatRecord(r *Record) ([]byte, bool) {
	h.mu.RLock()
	formatter, enc := h.formatter, h.enc
	h.mu.RUnlock()

	var s string

	if formatter == nil {
		s = messageText(r) + "\n"
	} else {
		s = h.safeFormat(formatter, r)
		if s == "" {
			return nil, false
		}
	}

	if enc == nil {
		return []byte(s), true
	}

	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		h.ReportError("failed to encode record", err, FormatFailure)
		return nil, false
	}

	return b, true
}

func (h *HandlerBase) safeFormat(f Formatter, r *Record) (s string) {
	defer func() {
		if v := recover(); v != nil {
			h.ReportError("formatter panicked", fmt.Errorf("%v", v), FormatFailure)
			s = ""
		}
	}()

	return f.Format(r)
}

// ReportError passes an error to the error manager, or to a default
// OnlyOnceErrorManager if none is set.
func (h *HandlerBase) ReportError(msg string, err error, code ErrorCode) {
	h.mu.Lock()
	if h.errorManager == nil {
		h.errorManager = &OnlyOnceErrorManager{}
	}

	em := h.errorManager
	h.mu.Unlock()

	em.Error(msg, err, code)
}

// markClosed flags the handler closed, returning false if it already was.
func (h *HandlerBase) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.closed = true

	return true
}

// WriterHandler writes formatted records to an io.Writer.
type WriterHandler struct {
	HandlerBase

	wmu       sync.Mutex
	w         io.Writer
	autoFlush bool
}

// NewWriterHandler returns a handler writing to w, at level ALL.
func NewWriterHandler(w io.Writer) *WriterHandler {
	h := &WriterHandler{w: w}
	h.level = LevelAll

	return h
}

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

// SetWriter replaces the output writer.  The previous writer is not closed.
func (h *WriterHandler) SetWriter(w io.Writer) {
	h.wmu.Lock()
	defer h.wmu.Unlock()

	h.w = w
}

func (h *WriterHandler) AutoFlush() bool {
	h.wmu.Lock()
	defer h.wmu.Unlock()

	return h.autoFlush
}

func (h *WriterHandler) SetAutoFlush(b bool) {
	h.wmu.Lock()
	defer h.wmu.Unlock()

	h.autoFlush = b
}

func (h *WriterHandler) Publish(r *Record) {
	if !h.IsLoggable(r) {
		return
	}

	b, ok := h.FormatRecord(r)
	if !ok {
		return
	}

	h.wmu.Lock()
	defer h.wmu.Unlock()

	if h.w == nil {
		return
	}

	if _, err := h.w.Write(b); err != nil {
		h.ReportError("failed to write record", err, WriteFailure)
		return
	}

	if h.autoFlush {
		h.flushLocked()
	}
}

func (h *WriterHandler) Flush() {
	h.wmu.Lock()
	defer h.wmu.Unlock()

	h.flushLocked()
}

func (h *WriterHandler) flushLocked() {
	var err error

	switch w := h.w.(type) {
	case flusher:
		err = w.Flush()
	case syncer:
		err = w.Sync()
	}

	if err != nil {
		h.ReportError("failed to flush", err, FlushFailure)
	}
}

// Close flushes and closes the writer, if it is an io.Closer.
func (h *WriterHandler) Close() error {
	if !h.markClosed() {
		return nil
	}

	h.wmu.Lock()
	defer h.wmu.Unlock()

	h.flushLocked()

	if c, ok := h.w.(io.Closer); ok {
		h.w = nil
		return c.Close()
	}

	h.w = nil

	return nil
}

// MultiHandler publishes each accepted record to a list of nested
// handlers.
type MultiHandler struct {
	HandlerBase

	hmu      sync.RWMutex
	handlers []Handler
}

func NewMultiHandler(handlers ...Handler) *MultiHandler {
	h := &MultiHandler{handlers: handlers}
	h.level = LevelAll

	return h
}

func (h *MultiHandler) Handlers() []Handler {
	h.hmu.RLock()
	defer h.hmu.RUnlock()

	return slices.Clone(h.handlers)
}

func (h *MultiHandler) SetHandlers(handlers []Handler) {
	h.hmu.Lock()
	defer h.hmu.Unlock()

	h.handlers = slices.Clone(handlers)
}

func (h *MultiHandler) AddHandler(handler Handler) {
	h.hmu.Lock()
	defer h.hmu.Unlock()

	h.handlers = append(h.handlers, handler)
}

func (h *MultiHandler) RemoveHandler(handler Handler) {
	h.hmu.Lock()
	defer h.hmu.Unlock()

	if idx := slices.Index(h.handlers, handler); idx >= 0 {
		h.handlers = slices.Delete(slices.Clone(h.handlers), idx, idx+1)
	}
}

func (h *MultiHandler) Publish(r *Record) {
	if !h.IsLoggable(r) {
		return
	}

	for _, nested := range h.Handlers() {
		nested.Publish(r)
	}
}

func (h *MultiHandler) Flush() {
	for _, nested := range h.Handlers() {
		nested.Flush()
	}
}

// Close marks the handler closed.  Nested handlers are owned by whoever
// configured them, and are left open.
func (h *MultiHandler) Close() error {
	h.markClosed()
	return nil
}

var (
	_ Handler       = (*WriterHandler)(nil)
	_ NestedHandler = (*MultiHandler)(nil)
)
