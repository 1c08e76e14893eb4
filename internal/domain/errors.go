package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map these onto HTTP statuses.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrGateway      = errors.New("gateway error")
	ErrForbidden    = errors.New("forbidden")
)

// Error is a classified failure with a message that is safe to show to the caller.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Validationf(format string, args ...any) error {
	return newError(ErrValidation, nil, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return newError(ErrNotFound, nil, format, args...)
}

func InvalidStatef(format string, args ...any) error {
	return newError(ErrInvalidState, nil, format, args...)
}

func Forbiddenf(format string, args ...any) error {
	return newError(ErrForbidden, nil, format, args...)
}

// GatewayFailure wraps a payment gateway failure. The outcome of the call may be unknown.
func GatewayFailure(cause error, format string, args ...any) error {
	return newError(ErrGateway, cause, format, args...)
}

// PublicMessage returns the caller-safe message of a classified error.
func PublicMessage(err error) (string, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Message, true
	}
	return "", false
}
