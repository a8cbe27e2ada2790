package logmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

const (
	LevelAll    = slog.Level(math.MinInt)
	LevelFinest = slog.Level(-12)
	LevelTrace  = slog.Level(-8)
	LevelDebug  = slog.LevelDebug
	LevelConfig = slog.Level(-2)
	LevelInfo   = slog.LevelInfo
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
	LevelFatal  = slog.Level(12)
	LevelOff    = slog.Level(math.MaxInt)
)

var ErrInvalidLevel = errors.New("invalid log level")

// builtinLevels seeds the level table of each LogContext.  Aliases map onto
// the same value as their canonical name.
var builtinLevels = map[string]slog.Level{
	"ALL":     LevelAll,
	"FINEST":  LevelFinest,
	"TRACE":   LevelTrace,
	"FINER":   LevelTrace,
	"DEBUG":   LevelDebug,
	"FINE":    LevelDebug,
	"CONFIG":  LevelConfig,
	"INFO":    LevelInfo,
	"WARN":    LevelWarn,
	"WARNING": LevelWarn,
	"ERROR":   LevelError,
	"SEVERE":  LevelError,
	"FATAL":   LevelFatal,
	"OFF":     LevelOff,
}

// canonical names, used when printing a level
var builtinLevelNames = map[slog.Level]string{
	LevelAll:    "ALL",
	LevelFinest: "FINEST",
	LevelTrace:  "TRACE",
	LevelDebug:  "DEBUG",
	LevelConfig: "CONFIG",
	LevelInfo:   "INFO",
	LevelWarn:   "WARN",
	LevelError:  "ERROR",
	LevelFatal:  "FATAL",
	LevelOff:    "OFF",
}

const (
	dbgAbbrev = "DBG"
	infAbbrev = "INF"
	wrnAbbrev = "WRN"
	errAbbrev = "ERR"
)

var levelAbbreviations = map[string]string{
	dbgAbbrev: "DEBUG",
	infAbbrev: "INFO",
	wrnAbbrev: "WARN",
	errAbbrev: "ERROR",
}

// ParseLevel parses a level using the built-in level names.
func ParseLevel(s string) (slog.Level, error) {
	return parseLevel(s, func(name string) (slog.Level, bool) {
		l, ok := builtinLevels[name]
		return l, ok
	})
}

// parseLevel accepts level names, raw integers, the abbreviations DBG, INF,
// WRN and ERR, and slog's offset convention, i.e. WRN+1 = WARN+1 = 5.
func parseLevel(s string, lookup func(string) (slog.Level, bool)) (slog.Level, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))

	if s == "" {
		return 0, fmt.Errorf("%w: empty level name", ErrInvalidLevel)
	}

	if l, ok := lookup(s); ok {
		return l, nil
	}

	// allow raw integer values for level
	if i, err := strconv.Atoi(s); err == nil {
		return slog.Level(i), nil
	}

	name, offset := s, 0

	if idx := strings.IndexAny(s, "+-"); idx > 0 {
		n, err := strconv.Atoi(s[idx:])
		if err != nil {
			return 0, fmt.Errorf("%w '%v': bad offset: %w", ErrInvalidLevel, orig, err)
		}

		name, offset = s[:idx], n
	}

	if full, ok := levelAbbreviations[name]; ok {
		name = full
	}

	l, ok := lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w '%v'", ErrInvalidLevel, orig)
	}

	switch l {
	case LevelAll, LevelOff:
		if offset != 0 {
			return 0, fmt.Errorf("%w '%v': offset not allowed on %v", ErrInvalidLevel, orig, name)
		}
	}

	return l + slog.Level(offset), nil
}

// LevelString returns the built-in name of a level, or slog's rendering of
// it, e.g. "INFO+1", when it has none.
func LevelString(l slog.Level) string {
	if n, ok := builtinLevelNames[l]; ok {
		return n
	}

	return l.String()
}
