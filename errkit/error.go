package errkit

import "fmt"

// Error is the typed error carried through the pipeline. Every error raised
// by a core package is an *Error so callers can switch on Kind rather than
// parsing message text.
type Error struct {
	kind    *Kind
	message string
	cause   error
	trace   []Frame
}

// New constructs an Error of the given kind with a formatted message. The
// stack trace is captured at the call site.
func New(kind *Kind, format string, args ...interface{}) *Error {
	return &Error{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
		trace:   captureTrace(1),
	}
}

// Wrap attaches kind and message to an underlying cause, preserving it for
// Unwrap. Used when a stdlib call (os, io, crypto/cipher...) fails and needs
// to be re-raised as a typed Error.
func Wrap(kind *Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
		cause:   cause,
		trace:   captureTrace(1),
	}
}

// Errno wraps a syscall/os-package failure using spec.md §7's
// "<verb> '<path>': [<errno>] <strerror>" convention (see fmtErrno).
func Errno(kind *Kind, verb, path string, cause error) *Error {
	return &Error{
		kind:    kind,
		message: fmtErrno(verb, path, cause),
		cause:   cause,
		trace:   captureTrace(1),
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.kind, e.message)
}

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() *Kind {
	if e == nil {
		return nil
	}
	return e.kind
}

// Unwrap lets errors.Is/errors.As traverse into the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Trace renders the captured stack, innermost frame first.
func (e *Error) Trace() string {
	if e == nil {
		return ""
	}
	return formatTrace(e.trace)
}

// Is reports whether err (or some error in its Unwrap chain, if it is also
// an *Error) belongs to kind or one of kind's descendants.
func Is(err error, kind *Kind) bool {
	for err != nil {
		if te, ok := err.(*Error); ok {
			if te.kind.Is(kind) {
				return true
			}
			err = te.cause
			continue
		}
		return false
	}
	return false
}

// KindOf extracts the Kind of err, or nil if err is not an *Error.
func KindOf(err error) *Kind {
	if te, ok := err.(*Error); ok {
		return te.kind
	}
	return nil
}
