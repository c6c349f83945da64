// Package errs classifies failures so transports can map them without
// knowing which layer produced them.
package errs

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAuthorization
	KindValidation
	KindConflict
	KindTransient
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "forbidden"
	case KindValidation:
		return "invalid"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "unavailable"
	case KindAuthentication:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Sentinels usable with errors.Is to test the kind of any classified error.
var (
	NotFound       = &Error{Kind: KindNotFound}
	Authorization  = &Error{Kind: KindAuthorization}
	Validation     = &Error{Kind: KindValidation}
	Conflict       = &Error{Kind: KindConflict}
	Transient      = &Error{Kind: KindTransient}
	Authentication = &Error{Kind: KindAuthentication}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Wrapf(kind Kind, err error, format string, args ...any) error {
	return Wrap(kind, err, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality against the bare sentinels, identity otherwise.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// KindOf returns the outermost classification found in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the text safe to show to clients. Unclassified errors are
// reported generically.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindTransient && e.Msg == "" {
		return "temporarily unavailable"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error()
}
