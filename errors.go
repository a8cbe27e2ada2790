package logconf

import (
	"errors"
	"fmt"
)

// Every error returned synchronously from a mutation method, or from
// Prepare and Commit, matches ErrInvalidArgument with errors.Is.  The more
// specific sentinels below identify the cause.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	ErrExists                    = fmt.Errorf("%w: already exists", ErrInvalidArgument)
	ErrNotFound                  = fmt.Errorf("%w: not found", ErrInvalidArgument)
	ErrNoSuchProperty            = fmt.Errorf("%w: no such property", ErrInvalidArgument)
	ErrNoSuchMethod              = fmt.Errorf("%w: no such method", ErrInvalidArgument)
	ErrRemoved                   = fmt.Errorf("%w: configuration was removed", ErrInvalidArgument)
	ErrInvalidValue              = fmt.Errorf("%w: invalid value", ErrInvalidArgument)
	ErrSyntax                    = fmt.Errorf("%w: syntax error", ErrInvalidArgument)
	ErrNestedHandlersUnsupported = fmt.Errorf("%w: nested handlers not supported", ErrInvalidArgument)
	ErrUnknownType               = fmt.Errorf("%w: unknown type", ErrInvalidArgument)
	ErrNoConstructor             = fmt.Errorf("%w: no matching constructor", ErrInvalidArgument)
)
