package pagi

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds spec'd for PAGI's propagation policy. It is
// a classification, not a concrete error type: callers match on Kind via
// errors.As against *Error, never on a family of distinct Go types.
type Kind string

const (
	// KindBadRequest: malformed request line, headers, or chunked framing.
	KindBadRequest Kind = "BAD_REQUEST"
	// KindHeaderTooLarge: request line or header block exceeded max_header_size.
	KindHeaderTooLarge Kind = "HEADER_TOO_LARGE"
	// KindRequestTooLarge: request body exceeded max_body_size.
	KindRequestTooLarge Kind = "REQUEST_TOO_LARGE"
	// KindTimeout: idle timeout expired.
	KindTimeout Kind = "TIMEOUT"
	// KindInvalidState: application violated the event-ordering contract.
	KindInvalidState Kind = "INVALID_STATE"
	// KindConnectionClosed: peer gone.
	KindConnectionClosed Kind = "CONNECTION_CLOSED"
	// KindAppException: the application returned a non-nil error.
	KindAppException Kind = "APP_EXCEPTION"
	// KindIOError: socket or file I/O fault.
	KindIOError Kind = "IO_ERROR"
)

// Error wraps an underlying cause with the PAGI error kind that determines
// how the connection state machine reacts to it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with kind. A nil err is allowed; Error() then renders
// just the kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
