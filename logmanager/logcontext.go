package logmanager

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// LogContext is an isolated tree of loggers, plus the table of level names
// which are valid inside it.  Loggers are named with dotted paths; the root
// logger is named "".
//
// Loggers are created lazily the first time they are asked for, and are
// never discarded.
type LogContext struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	levels  map[string]slog.Level
	names   map[slog.Level]string
}

// NewLogContext returns an empty LogContext with only the root logger.  The
// root logger logs at INFO and above.
func NewLogContext() *LogContext {
	c := &LogContext{
		loggers: map[string]*Logger{},
		levels:  map[string]slog.Level{},
		names:   map[slog.Level]string{},
	}

	for n, l := range builtinLevels {
		c.levels[n] = l
	}

	for l, n := range builtinLevelNames {
		c.names[l] = n
	}

	root := newLogger(c, "", nil)
	root.SetLevel(LevelInfo)
	c.loggers[""] = root

	return c
}

// Root returns the root logger.
func (c *LogContext) Root() *Logger {
	return c.Logger("")
}

// Logger returns the named logger, creating it and any missing ancestors.
func (c *LogContext) Logger(name string) *Logger {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.logger(name)
}

func (c *LogContext) logger(name string) *Logger {
	if l, ok := c.loggers[name]; ok {
		return l
	}

	parentName := ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		parentName = name[:idx]
	}

	l := newLogger(c, name, c.logger(parentName))
	c.loggers[name] = l

	return l
}

// LookupLogger returns the named logger only if it already exists.
func (c *LogContext) LookupLogger(name string) (*Logger, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.loggers[name]

	return l, ok
}

// LoggerNames returns the sorted names of all loggers created so far.
func (c *LogContext) LoggerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.loggers))
	for n := range c.loggers {
		names = append(names, n)
	}

	slices.Sort(names)

	return names
}

// RegisterLevel adds a custom level name to this context.  Names are
// case-insensitive.  The first name registered for a value becomes its
// printed name.
func (c *LogContext) RegisterLevel(name string, l slog.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = strings.ToUpper(name)
	c.levels[name] = l

	if _, ok := c.names[l]; !ok {
		c.names[l] = name
	}
}

// LevelForName parses a level name against this context's level table.  See
// ParseLevel for the accepted syntax.
func (c *LogContext) LevelForName(name string) (slog.Level, error) {
	return parseLevel(name, func(n string) (slog.Level, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()

		l, ok := c.levels[n]

		return l, ok
	})
}

// LevelName returns the printed name of a level.  Levels without a
// registered name are printed the way slog prints them, e.g. "INFO+1".
func (c *LogContext) LevelName(l slog.Level) string {
	c.mu.Lock()
	n, ok := c.names[l]
	c.mu.Unlock()

	if ok {
		return n
	}

	return l.String()
}
