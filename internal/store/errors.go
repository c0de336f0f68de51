package store

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error code. REST handlers map these to
// HTTP statuses; chat renders them into the assistant reply.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindUpstream       Kind = "upstream"
	KindUnknownCommand Kind = "unknown_command"
)

// Error is the domain error for store, summarizer, and chat operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing profile or interaction row.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation reports bad input such as an unparseable date or missing identity.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failure from the text-generation service.
func Upstream(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// UnknownCommand reports chat input no pattern could interpret.
func UnknownCommand(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnknownCommand, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the error's kind, or "" for non-domain errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
