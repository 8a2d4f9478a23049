// Package errs defines the typed failures returned by the analytics core.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a user-facing message.
type Kind string

const (
	KindDecode              Kind = "decode_error"
	KindMissingColumn       Kind = "missing_column"
	KindInsufficientHistory Kind = "insufficient_history"
	KindModelFit            Kind = "model_fit_error"
	KindInvalidParameter    Kind = "invalid_parameter"
	KindNotFound            Kind = "not_found"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrDecode              = &Error{Kind: KindDecode}
	ErrMissingColumn       = &Error{Kind: KindMissingColumn}
	ErrInsufficientHistory = &Error{Kind: KindInsufficientHistory}
	ErrModelFit            = &Error{Kind: KindModelFit}
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Error is a domain failure with the operation that raised it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// New creates an Error with a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
