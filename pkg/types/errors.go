package types

import (
	"context"
	"errors"
)

// Error taxonomy. Remote implementations wrap one of these with context.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTransient    = errors.New("remote store unavailable")
	ErrValidation   = errors.New("validation failed")
)

// Lifecycle and entity errors.
var (
	ErrNotStarted        = errors.New("record store client not started")
	ErrListNotRegistered = errors.New("list not registered")
	ErrInvalidID         = errors.New("invalid item ID")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidColumn     = errors.New("invalid column definition")
	ErrEmptyPath         = errors.New("folder path must not be empty")
)

// ErrorKind is the semantic class of an error.
type ErrorKind int

// Error kinds, in the order Kind checks them.
const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindTransient
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Kind classifies err. Context deadline errors count as transient, since
// timeouts are reported by the remote capability and are worth retrying.
// Cancellation by the caller is not transient.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsTransient reports whether err should route a write to the local queue.
func IsTransient(err error) bool { return Kind(err) == KindTransient }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return Kind(err) == KindNotFound }

// IsConflict reports whether err is an already-exists error.
func IsConflict(err error) bool { return Kind(err) == KindConflict }
