package logconf

import (
	"log/slog"

	"github.com/ThalesGroup/logconf/logmanager"
)

// writerHandler is satisfied by the handlers built on
// logmanager.WriterHandler.
type writerHandler interface {
	logmanager.Handler
	AutoFlush() bool
	SetAutoFlush(b bool)
}

// handlerProperties adds the properties every handler has.
func handlerProperties[T logmanager.Handler](b *TypeBuilder[T]) *TypeBuilder[T] {
	Property(b, "level", TypeLevel,
		func(h T) slog.Level { return h.Level() },
		func(h T, l slog.Level) { h.SetLevel(l) },
	)

	return PropertyE(b, "encoding", TypeCharset,
		func(h T) string { return h.Encoding() },
		func(h T, name string) error { return h.SetEncoding(name) },
	)
}

func writerProperties[T writerHandler](b *TypeBuilder[T]) *TypeBuilder[T] {
	handlerProperties(b)

	return Property(b, "autoFlush", TypeBool,
		func(h T) bool { return h.AutoFlush() },
		func(h T, v bool) { h.SetAutoFlush(v) },
	)
}

var targetType = TypeEnum("target", string(logmanager.SystemOut), string(logmanager.SystemErr), string(logmanager.Console))

func consoleHandlerType() *Type {
	b := NewType("ConsoleHandler", logmanager.NewConsoleHandler)
	writerProperties(b)
	Property(b, "target", targetType,
		func(h *logmanager.ConsoleHandler) string { return string(h.Target()) },
		func(h *logmanager.ConsoleHandler, t string) {
			if t == "" {
				t = string(logmanager.SystemOut)
			}

			h.SetTarget(logmanager.Target(t))
		},
	)

	return b.Type()
}

func fileHandlerType() *Type {
	b := NewType("FileHandler", logmanager.NewFileHandler)
	writerProperties(b)
	PropertyE(b, "fileName", TypeString,
		(*logmanager.FileHandler).FileName,
		(*logmanager.FileHandler).SetFileName,
	)
	Property(b, "append", TypeBool,
		(*logmanager.FileHandler).Append,
		(*logmanager.FileHandler).SetAppend,
	)
	Constructor(b, []Param{{Name: "fileName", Type: TypeString}}, func(args []any) (*logmanager.FileHandler, error) {
		h := logmanager.NewFileHandler()
		name, _ := args[0].(string)

		return h, h.SetFileName(name)
	})
	Constructor(b, []Param{{Name: "fileName", Type: TypeString}, {Name: "append", Type: TypeBool}}, func(args []any) (*logmanager.FileHandler, error) {
		h := logmanager.NewFileHandler()
		name, _ := args[0].(string)
		appendFile, _ := args[1].(bool)
		h.SetAppend(appendFile)

		return h, h.SetFileName(name)
	})

	return b.Type()
}

func sizeRotatingFileHandlerType() *Type {
	type h = *logmanager.SizeRotatingFileHandler

	b := NewType("SizeRotatingFileHandler", logmanager.NewSizeRotatingFileHandler)
	writerProperties(b)
	Property(b, "fileName", TypeString, h.FileName, h.SetFileName)
	Property(b, "maxSize", TypeInt, h.MaxSize, h.SetMaxSize)
	Property(b, "maxBackups", TypeInt, h.MaxBackups, h.SetMaxBackups)
	Property(b, "maxAge", TypeInt, h.MaxAge, h.SetMaxAge)
	Property(b, "compress", TypeBool, h.Compress, h.SetCompress)
	Property(b, "rotateOnBoot", TypeBool, h.RotateOnBoot, h.SetRotateOnBoot)
	Method(b, "activate", h.Activate)

	return b.Type()
}

func slogHandlerType() *Type {
	b := NewType("SlogHandler", logmanager.NewSlogHandler)
	handlerProperties(b)
	Property(b, "prefix", TypeString,
		(*logmanager.SlogHandler).Prefix,
		(*logmanager.SlogHandler).SetPrefix,
	)

	return b.Type()
}

func multiHandlerType() *Type {
	b := NewType("MultiHandler", func() *logmanager.MultiHandler {
		return logmanager.NewMultiHandler()
	})
	handlerProperties(b)

	return b.Type()
}

func patternFormatterType() *Type {
	newFormatter := func() *logmanager.PatternFormatter {
		f, _ := logmanager.NewPatternFormatter("")
		return f
	}

	b := NewType("PatternFormatter", newFormatter)
	PropertyE(b, "pattern", TypeString,
		(*logmanager.PatternFormatter).Pattern,
		(*logmanager.PatternFormatter).SetPattern,
	)
	Property(b, "color", TypeBool,
		(*logmanager.PatternFormatter).Color,
		(*logmanager.PatternFormatter).SetColor,
	)
	Constructor(b, []Param{{Name: "pattern", Type: TypeString}}, func(args []any) (*logmanager.PatternFormatter, error) {
		pattern, _ := args[0].(string)
		return logmanager.NewPatternFormatter(pattern)
	})

	return b.Type()
}

func jsonFormatterType() *Type {
	b := NewType("JSONFormatter", logmanager.NewJSONFormatter)
	Property(b, "dateFormat", TypeString,
		(*logmanager.JSONFormatter).DateFormat,
		(*logmanager.JSONFormatter).SetDateFormat,
	)
	PropertyE(b, "metaData", TypeString,
		(*logmanager.JSONFormatter).MetaData,
		(*logmanager.JSONFormatter).SetMetaData,
	)

	return b.Type()
}

func termFormatterType() *Type {
	b := NewType("TermFormatter", logmanager.NewTermFormatter)
	Property(b, "noColor", TypeBool,
		(*logmanager.TermFormatter).NoColor,
		(*logmanager.TermFormatter).SetNoColor,
	)
	Property(b, "timeFormat", TypeString,
		(*logmanager.TermFormatter).TimeFormat,
		(*logmanager.TermFormatter).SetTimeFormat,
	)

	return b.Type()
}

func regexFilterType() *Type {
	b := NewType[*logmanager.RegexFilter]("RegexFilter", nil)
	Constructor(b, []Param{{Name: "pattern", Type: TypeString}}, func(args []any) (*logmanager.RegexFilter, error) {
		pattern, _ := args[0].(string)
		return logmanager.NewRegexFilter(pattern)
	})

	return b.Type()
}

func substituteFilterType() *Type {
	b := NewType[*logmanager.SubstituteFilter]("SubstituteFilter", nil)
	Constructor(b, []Param{
		{Name: "pattern", Type: TypeString},
		{Name: "replacement", Type: TypeString},
		{Name: "all", Type: TypeBool},
	}, func(args []any) (*logmanager.SubstituteFilter, error) {
		pattern, _ := args[0].(string)
		replacement, _ := args[1].(string)
		all, _ := args[2].(bool)

		return logmanager.NewSubstituteFilter(pattern, replacement, all)
	})

	return b.Type()
}

func levelRangeFilterType() *Type {
	b := NewType("LevelRangeFilter", func() *logmanager.LevelRangeFilter {
		return &logmanager.LevelRangeFilter{Min: logmanager.LevelAll, Max: logmanager.LevelOff, MinInclusive: true, MaxInclusive: true}
	})
	Property(b, "minLevel", TypeLevel,
		func(f *logmanager.LevelRangeFilter) slog.Level { return f.Min },
		func(f *logmanager.LevelRangeFilter, l slog.Level) { f.Min = l },
	)
	Property(b, "maxLevel", TypeLevel,
		func(f *logmanager.LevelRangeFilter) slog.Level { return f.Max },
		func(f *logmanager.LevelRangeFilter, l slog.Level) { f.Max = l },
	)
	Property(b, "minInclusive", TypeBool,
		func(f *logmanager.LevelRangeFilter) bool { return f.MinInclusive },
		func(f *logmanager.LevelRangeFilter, v bool) { f.MinInclusive = v },
	)
	Property(b, "maxInclusive", TypeBool,
		func(f *logmanager.LevelRangeFilter) bool { return f.MaxInclusive },
		func(f *logmanager.LevelRangeFilter, v bool) { f.MaxInclusive = v },
	)

	return b.Type()
}

func levelChangeFilterType() *Type {
	b := NewType("LevelChangeFilter", func() *logmanager.LevelChangeFilter {
		return &logmanager.LevelChangeFilter{Level: logmanager.LevelInfo}
	})
	Property(b, "level", TypeLevel,
		func(f *logmanager.LevelChangeFilter) slog.Level { return f.Level },
		func(f *logmanager.LevelChangeFilter, l slog.Level) { f.Level = l },
	)

	return b.Type()
}

func onlyOnceErrorManagerType() *Type {
	return NewType("OnlyOnceErrorManager", func() *logmanager.OnlyOnceErrorManager {
		return &logmanager.OnlyOnceErrorManager{}
	}).Type()
}

// registerBuiltinTypes registers the logmanager handlers, formatters,
// filters and error managers, with no module name.
func registerBuiltinTypes(r *Registry) {
	for _, t := range []*Type{
		consoleHandlerType(),
		fileHandlerType(),
		sizeRotatingFileHandlerType(),
		slogHandlerType(),
		multiHandlerType(),
		patternFormatterType(),
		jsonFormatterType(),
		termFormatterType(),
		regexFilterType(),
		substituteFilterType(),
		levelRangeFilterType(),
		levelChangeFilterType(),
		onlyOnceErrorManagerType(),
	} {
		r.Register("", t)
	}
}
