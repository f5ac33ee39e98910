// Package sfvfserr provides the typed errors surfaced by the block store,
// inode and directory engines. It follows the teacher's errors package
// (_examples/timtadh-fs2/errors): every error captures a stack trace at
// the point it was raised. On top of that this package adds a Kind
// taxonomy so callers (and the external facade the core hands off to)
// can distinguish OutOfSpace from InvalidState without string matching.
package sfvfserr

import (
	"fmt"
	"runtime"
)

// Kind classifies why an operation failed. See spec §7.
type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	InvalidState
	StaleHandle
	WrongOwner
	IoError
	OutOfSpace
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidState:
		return "InvalidState"
	case StaleHandle:
		return "StaleHandle"
	case WrongOwner:
		return "WrongOwner"
	case IoError:
		return "IoError"
	case OutOfSpace:
		return "OutOfSpace"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind and the stack trace at the
// point of construction, the same shape as the teacher's errors.Error.
type Error struct {
	Kind  Kind
	Err   error
	Stack []byte
}

func New(kind Kind, format string, args ...interface{}) error {
	return &Error{
		Kind:  kind,
		Err:   fmt.Errorf(format, args...),
		Stack: captureStack(),
	}
}

// Wrap attaches a Kind and stack trace to an existing error, e.g. one
// returned by the os package.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:  kind,
		Err:   err,
		Stack: captureStack(),
	}
}

func captureStack() []byte {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	trace := make([]byte, n)
	copy(trace, buf)
	return trace
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err (or something it wraps) is an *Error of the
// given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
