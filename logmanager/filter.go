package logmanager

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// Filter decides whether a record is logged.  A filter may also rewrite the
// record, e.g. to change its level or message.
type Filter interface {
	IsLoggable(r *Record) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(r *Record) bool

func (f FilterFunc) IsLoggable(r *Record) bool {
	return f(r)
}

var (
	AcceptAll Filter = acceptAll{}
	DenyAll   Filter = denyAll{}
)

type acceptAll struct{}

func (acceptAll) IsLoggable(*Record) bool { return true }

func (acceptAll) String() string { return "accept" }

type denyAll struct{}

func (denyAll) IsLoggable(*Record) bool { return false }

func (denyAll) String() string { return "deny" }

// NotFilter inverts another filter.
type NotFilter struct {
	Filter Filter
}

func (f *NotFilter) IsLoggable(r *Record) bool {
	return !f.Filter.IsLoggable(r)
}

// AllFilter accepts a record only if every filter accepts it.  Evaluation
// stops at the first rejection.  An empty AllFilter accepts everything.
type AllFilter []Filter

func (f AllFilter) IsLoggable(r *Record) bool {
	for _, filter := range f {
		if !filter.IsLoggable(r) {
			return false
		}
	}

	return true
}

// AnyFilter accepts a record if any filter accepts it.  Evaluation stops at
// the first acceptance.  An empty AnyFilter rejects everything.
type AnyFilter []Filter

func (f AnyFilter) IsLoggable(r *Record) bool {
	for _, filter := range f {
		if filter.IsLoggable(r) {
			return true
		}
	}

	return false
}

// LevelChangeFilter accepts every record, rewriting its level.
type LevelChangeFilter struct {
	Level slog.Level
}

func (f *LevelChangeFilter) IsLoggable(r *Record) bool {
	r.Level = f.Level
	return true
}

// LevelFilter accepts records whose level is exactly one of Levels.
type LevelFilter struct {
	Levels []slog.Level
}

func NewLevelFilter(levels ...slog.Level) *LevelFilter {
	return &LevelFilter{Levels: levels}
}

func (f *LevelFilter) IsLoggable(r *Record) bool {
	return slices.Contains(f.Levels, r.Level)
}

// LevelRangeFilter accepts records whose level falls between Min and Max.
// Each bound may be inclusive or exclusive.
type LevelRangeFilter struct {
	Min, Max                   slog.Level
	MinInclusive, MaxInclusive bool
}

func (f *LevelRangeFilter) IsLoggable(r *Record) bool {
	l := r.Level

	if f.MinInclusive {
		if l < f.Min {
			return false
		}
	} else if l <= f.Min {
		return false
	}

	if f.MaxInclusive {
		return l <= f.Max
	}

	return l < f.Max
}

// RegexFilter accepts records whose formatted message contains a match of
// the pattern.
type RegexFilter struct {
	Pattern *regexp.Regexp
}

func NewRegexFilter(pattern string) (*RegexFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	return &RegexFilter{Pattern: re}, nil
}

func (f *RegexFilter) IsLoggable(r *Record) bool {
	return f.Pattern.MatchString(messageText(r))
}

// SubstituteFilter accepts every record, replacing the first match (or all
// matches) of Pattern in the message.  Replacement may refer to capture
// groups with $1 or ${name}.
type SubstituteFilter struct {
	Pattern     *regexp.Regexp
	Replacement string
	All         bool
}

func NewSubstituteFilter(pattern, replacement string, all bool) (*SubstituteFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	return &SubstituteFilter{Pattern: re, Replacement: replacement, All: all}, nil
}

func (f *SubstituteFilter) IsLoggable(r *Record) bool {
	if f.All {
		r.Message = f.Pattern.ReplaceAllString(r.Message, f.Replacement)
		return true
	}

	loc := f.Pattern.FindStringSubmatchIndex(r.Message)
	if loc == nil {
		return true
	}

	repl := f.Pattern.ExpandString(nil, f.Replacement, r.Message, loc)
	r.Message = r.Message[:loc[0]] + string(repl) + r.Message[loc[1]:]

	return true
}

func messageText(r *Record) string {
	if r.Err == nil {
		return r.Message
	}

	var b strings.Builder

	b.WriteString(r.Message)
	b.WriteString(": ")
	b.WriteString(r.Err.Error())

	return b.String()
}
