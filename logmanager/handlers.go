package logmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ThalesGroup/flume/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Target selects the stream a ConsoleHandler writes to.
type Target string

const (
	SystemOut Target = "SYSTEM_OUT"
	SystemErr Target = "SYSTEM_ERR"
	Console   Target = "CONSOLE"
)

var ErrInvalidTarget = errors.New("invalid console target")

// ParseTarget parses a Target name, case-insensitively.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToUpper(strings.TrimSpace(s))); t {
	case SystemOut, SystemErr, Console:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
}

// ConsoleHandler writes to stdout or stderr.  It never closes the stream.
type ConsoleHandler struct {
	WriterHandler

	tmu    sync.Mutex
	target Target
}

// NewConsoleHandler returns a handler writing to stdout, at level ALL, with
// auto flush enabled.
func NewConsoleHandler() *ConsoleHandler {
	h := &ConsoleHandler{target: SystemOut}
	h.level = LevelAll
	h.w = os.Stdout
	h.autoFlush = true

	return h
}

func (h *ConsoleHandler) Target() Target {
	h.tmu.Lock()
	defer h.tmu.Unlock()

	return h.target
}

func (h *ConsoleHandler) SetTarget(t Target) {
	h.tmu.Lock()
	h.target = t
	h.tmu.Unlock()

	if t == SystemErr {
		h.SetWriter(os.Stderr)
	} else {
		h.SetWriter(os.Stdout)
	}
}

func (h *ConsoleHandler) Close() error {
	if h.markClosed() {
		h.Flush()
	}

	return nil
}

// FileHandler appends to, or truncates, a single file.  The file is opened
// when the file name is set.
type FileHandler struct {
	WriterHandler

	fmu      sync.Mutex
	fileName string
	append   bool
	file     *os.File
}

func NewFileHandler() *FileHandler {
	h := &FileHandler{append: true}
	h.level = LevelAll
	h.autoFlush = true

	return h
}

func (h *FileHandler) FileName() string {
	h.fmu.Lock()
	defer h.fmu.Unlock()

	return h.fileName
}

// SetFileName closes the current file, if any, and opens the new one.  An
// empty name just closes the current file.
func (h *FileHandler) SetFileName(name string) error {
	h.fmu.Lock()
	defer h.fmu.Unlock()

	var f *os.File

	if name != "" {
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			h.ReportError("failed to create log directory", err, OpenFailure)
			return err
		}

		flags := os.O_CREATE | os.O_WRONLY
		if h.append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}

		var err error

		f, err = os.OpenFile(name, flags, 0o644)
		if err != nil {
			h.ReportError("failed to open log file", err, OpenFailure)
			return err
		}
	}

	old := h.file
	h.file = f
	h.fileName = name

	if f == nil {
		h.SetWriter(nil)
	} else {
		h.SetWriter(f)
	}

	if old != nil {
		if err := old.Close(); err != nil {
			h.ReportError("failed to close log file", err, CloseFailure)
		}
	}

	return nil
}

func (h *FileHandler) Append() bool {
	h.fmu.Lock()
	defer h.fmu.Unlock()

	return h.append
}

// SetAppend takes effect the next time a file is opened.
func (h *FileHandler) SetAppend(b bool) {
	h.fmu.Lock()
	defer h.fmu.Unlock()

	h.append = b
}

func (h *FileHandler) Close() error {
	err := h.WriterHandler.Close()

	h.fmu.Lock()
	h.file = nil
	h.fmu.Unlock()

	return err
}

// SizeRotatingFileHandler writes to a file which is rotated once it reaches
// a maximum size, keeping a bounded number of backups.
type SizeRotatingFileHandler struct {
	WriterHandler

	rmu          sync.Mutex
	out          *lumberjack.Logger
	rotateOnBoot bool
}

func NewSizeRotatingFileHandler() *SizeRotatingFileHandler {
	h := &SizeRotatingFileHandler{out: &lumberjack.Logger{MaxSize: 10, MaxBackups: 1}}
	h.level = LevelAll
	h.autoFlush = true
	h.w = h.out

	return h
}

func (h *SizeRotatingFileHandler) FileName() string {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	return h.out.Filename
}

func (h *SizeRotatingFileHandler) SetFileName(name string) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.out.Filename = name
	// reopen lazily on the next write
	_ = h.out.Close()
}

// MaxSize is the size in megabytes at which the file is rotated.
func (h *SizeRotatingFileHandler) MaxSize() int {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	return h.out.MaxSize
}

func (h *SizeRotatingFileHandler) SetMaxSize(mb int) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.out.MaxSize = mb
}

func (h *SizeRotatingFileHandler) MaxBackups() int {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	return h.out.MaxBackups
}

func (h *SizeRotatingFileHandler) SetMaxBackups(n int) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.out.MaxBackups = n
}

func (h *SizeRotatingFileHandler) MaxAge() int {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	return h.out.MaxAge
}

// SetMaxAge sets how many days rotated files are kept.  0 keeps them
// forever.
func (h *SizeRotatingFileHandler) SetMaxAge(days int) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.out.MaxAge = days
}

func (h *SizeRotatingFileHandler) Compress() bool {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	return h.out.Compress
}

func (h *SizeRotatingFileHandler) SetCompress(b bool) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.out.Compress = b
}

func (h *SizeRotatingFileHandler) RotateOnBoot() bool {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	return h.rotateOnBoot
}

func (h *SizeRotatingFileHandler) SetRotateOnBoot(b bool) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	h.rotateOnBoot = b
}

// Activate performs the rotate-on-boot, if enabled.  It is meant to run as
// a post-configuration method once the file name is known.
func (h *SizeRotatingFileHandler) Activate() error {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	if !h.rotateOnBoot || h.out.Filename == "" {
		return nil
	}

	if _, err := os.Stat(h.out.Filename); err != nil {
		return nil //nolint:nilerr
	}

	return h.out.Rotate()
}

// SlogHandler forwards records into flume, using a flume logger named
// after the record's logger.
type SlogHandler struct {
	HandlerBase

	loggers sync.Map
	prefix  string
}

func NewSlogHandler() *SlogHandler {
	h := &SlogHandler{}
	h.level = LevelAll

	return h
}

func (h *SlogHandler) Prefix() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.prefix
}

// SetPrefix sets a prefix prepended to the flume logger names.
func (h *SlogHandler) SetPrefix(p string) {
	h.mu.Lock()
	h.prefix = p
	h.mu.Unlock()

	h.loggers.Clear()
}

func (h *SlogHandler) slogger(name string) *slog.Logger {
	if v, ok := h.loggers.Load(name); ok {
		return v.(*slog.Logger) //nolint:forcetypeassert
	}

	l := flume.New(h.Prefix() + name)
	v, _ := h.loggers.LoadOrStore(name, l)

	return v.(*slog.Logger) //nolint:forcetypeassert
}

func (h *SlogHandler) Publish(r *Record) {
	if !h.IsLoggable(r) {
		return
	}

	ctx := context.Background()

	sl := h.slogger(r.LoggerName)
	if !sl.Enabled(ctx, r.Level) {
		return
	}

	sr := slog.NewRecord(r.Time, r.Level, r.Message, 0)
	sr.AddAttrs(r.Attrs...)

	if r.Err != nil {
		sr.AddAttrs(slog.Any("error", r.Err))
	}

	if err := sl.Handler().Handle(ctx, sr); err != nil {
		h.ReportError("failed to forward record", err, WriteFailure)
	}
}

func (h *SlogHandler) Flush() {}

func (h *SlogHandler) Close() error {
	h.markClosed()
	return nil
}

var (
	_ Handler = (*ConsoleHandler)(nil)
	_ Handler = (*FileHandler)(nil)
	_ Handler = (*SizeRotatingFileHandler)(nil)
	_ Handler = (*SlogHandler)(nil)
)
