package remote

import (
	"errors"
	"fmt"
)

// Error is a business error: the server understood the request and refused
// it. Retrying will not help.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// IsBusinessError reports whether err wraps a *Error. Everything else is a
// transport error.
func IsBusinessError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// HasCode reports whether err is a business error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// TransportError means the request did not produce a usable answer: the
// network failed, the server returned a non-200 status or garbage. The
// message may or may not have reached the server.
type TransportError struct {
	Function string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Function, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err wraps a *TransportError.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// CodeInvalidResponse is what the server returns when a conversation has no
// messages matching a query.
const CodeInvalidResponse = "invalidresponse"
