package logmanager

import (
	"sync"

	"github.com/ThalesGroup/flume/v2"
)

var logger = flume.New("logmanager")

// ErrorCode classifies a handler failure.
type ErrorCode int

const (
	GenericFailure ErrorCode = iota
	WriteFailure
	FlushFailure
	CloseFailure
	OpenFailure
	FormatFailure
)

var errorCodeNames = [...]string{
	GenericFailure: "GENERIC_FAILURE",
	WriteFailure:   "WRITE_FAILURE",
	FlushFailure:   "FLUSH_FAILURE",
	CloseFailure:   "CLOSE_FAILURE",
	OpenFailure:    "OPEN_FAILURE",
	FormatFailure:  "FORMAT_FAILURE",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(errorCodeNames) {
		return "UNKNOWN_FAILURE"
	}

	return errorCodeNames[c]
}

// ErrorManager receives failures which a handler can't return to its
// caller, since Publish has no error result.
type ErrorManager interface {
	Error(msg string, err error, code ErrorCode)
}

// ErrorManagerFunc adapts a function to the ErrorManager interface.
type ErrorManagerFunc func(msg string, err error, code ErrorCode)

func (f ErrorManagerFunc) Error(msg string, err error, code ErrorCode) {
	f(msg, err, code)
}

// OnlyOnceErrorManager reports the first error it receives to the
// "logmanager" flume logger, and ignores the rest.
type OnlyOnceErrorManager struct {
	once sync.Once
}

func (m *OnlyOnceErrorManager) Error(msg string, err error, code ErrorCode) {
	m.once.Do(func() {
		logger.Error(msg, "code", code.String(), "error", err)
	})
}
