package assist

import (
	"errors"
)

// Kind classifies why an invocation failed.
type Kind string

const (
	KindToolNotFound    Kind = "tool_not_found"
	KindTimeout         Kind = "timeout"
	KindNonZeroExit     Kind = "non_zero_exit"
	KindMalformedOutput Kind = "malformed_output"
	KindUnexpected      Kind = "unexpected"
)

// Error carries a user-visible message and its Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}
