package ojerr

import "fmt"

// Error is the uniform error envelope returned across the Control API and
// surfaced to the HTTP collaborator as {code, reason, message}.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Reason()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to an existing error, preserving it for errors.Is/As.
// An error that is already an *Error is returned unchanged, keeping its code.
func Wrap(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// Wrapf wraps err with code and a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail attaches a key/value detail and returns e for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// From normalizes any error into *Error, defaulting to Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Wrap(err, Internal)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

func NotFoundf(format string, args ...any) *Error {
	return Newf(NotFound, format, args...)
}

func InvalidArgumentf(format string, args ...any) *Error {
	return Newf(InvalidArgument, format, args...)
}

func InvalidStatef(format string, args ...any) *Error {
	return Newf(InvalidState, format, args...)
}

func Internalf(format string, args ...any) *Error {
	return Newf(Internal, format, args...)
}

func Externalf(format string, args ...any) *Error {
	return Newf(External, format, args...)
}
