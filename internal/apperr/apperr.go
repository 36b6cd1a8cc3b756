// Package apperr defines the classified failures surfaced by account and
// authentication operations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The HTTP and gRPC boundaries translate kinds
// into status codes with a single switch.
type Kind int

const (
	KindInternal Kind = iota
	KindUsernameAlreadyUsed
	KindEmailAlreadyUsed
	KindInvalidPassword
	KindInvalidInput
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindFatalConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindUsernameAlreadyUsed:
		return "username_already_used"
	case KindEmailAlreadyUsed:
		return "email_already_used"
	case KindInvalidPassword:
		return "invalid_password"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindFatalConfiguration:
		return "fatal_configuration"
	default:
		return "internal"
	}
}

// Error is a classified failure. Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Message != "":
		return e.Message
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so the
// package-level sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUsernameAlreadyUsed = &Error{Kind: KindUsernameAlreadyUsed, Message: "login name already used"}
	ErrEmailAlreadyUsed    = &Error{Kind: KindEmailAlreadyUsed, Message: "email is already in use"}
	ErrInvalidPassword     = &Error{Kind: KindInvalidPassword, Message: "incorrect password"}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "full authentication is required"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "access denied"}
	ErrFatalConfiguration  = &Error{Kind: KindFatalConfiguration, Message: "fatal configuration error"}
)

// New returns an error of the given kind with a caller-facing message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it as the cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err. Unclassified errors
// never leak their text.
func MessageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}
