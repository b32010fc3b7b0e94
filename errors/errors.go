package errors

import (
	"errors"
	"fmt"
)

var ErrUnsupported = errors.ErrUnsupported

type wrappedError struct {
	cause error
	msg   string
}

func (w *wrappedError) Error() string {
	return w.msg + ": " + w.cause.Error()
}

func (w *wrappedError) Unwrap() error {
	return w.cause
}

// New calls [errors.New].
//
//go:inline
func New(text string) error {
	return errors.New(text) //nolint:err113
}

// Errorf calls [fmt.Errorf].
//
//go:inline
func Errorf(format string, vals ...any) error {
	return fmt.Errorf(format, vals...) //nolint:err113
}

func Wrap(cause error, text string) error {
	if cause == nil {
		return nil
	}

	if text == "" {
		return cause
	}

	return &wrappedError{cause: cause, msg: text}
}

func Wrapf(cause error, format string, vals ...any) error {
	if cause == nil {
		return nil
	}

	msg := fmt.Sprintf(format, vals...)
	if msg == "" {
		return cause
	}

	return &wrappedError{cause: cause, msg: msg}
}

// kindError attaches an error kind to a cause without hiding the cause from [Is] and [As].
type kindError struct {
	kind  error
	cause error
}

func (k *kindError) Error() string {
	return k.kind.Error() + ": " + k.cause.Error()
}

func (k *kindError) Unwrap() []error {
	return []error{k.kind, k.cause}
}

// WithKind marks cause as kind. It returns nil if cause is nil and cause itself if it already
// matches kind.
func WithKind(cause, kind error) error {
	if cause == nil {
		return nil
	}

	if errors.Is(cause, kind) {
		return cause
	}

	return &kindError{kind: kind, cause: cause}
}

// Unwrap calls [errors.Unwrap].
//
//go:inline
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join calls [errors.Join].
//
//go:inline
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is calls [errors.Is].
//
//go:inline
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As calls [errors.As].
//
//go:inline
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Error kinds surfaced by the client and the membership manager. Operations wrap one of
// these with context, so callers match with [Is].
var (
	// ErrConnection indicates a network or authentication failure.
	ErrConnection = New("connection error")
	// ErrConnectionClosed indicates use of a session after Close.
	ErrConnectionClosed = New("connection closed")
	// ErrTimeout indicates that a deadline expired before the server responded.
	ErrTimeout = New("timeout")

	ErrNotFound      = New("not found")
	ErrAlreadyExists = New("already exists")

	// ErrInvalidArgument indicates a malformed call shape, option, or descriptor.
	ErrInvalidArgument = New("invalid argument")
	// ErrUnboundParameter indicates a placeholder with no bound value at execution.
	ErrUnboundParameter = New("unbound parameter")
	// ErrParse indicates a filter expression that cannot be parsed.
	ErrParse = New("parse error")

	// ErrConfirmationRequired indicates a destructive operation on a default resource
	// issued without explicit acknowledgement.
	ErrConfirmationRequired = New("confirmation required")
	// ErrPrecondition indicates an operation that is not valid in the current state.
	ErrPrecondition = New("precondition failed")
)
