package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the retrieval engine can surface.
type ErrorKind string

const (
	KindConfigError        ErrorKind = "config_error"
	KindDimensionMismatch  ErrorKind = "dimension_mismatch"
	KindCollectionNotFound ErrorKind = "collection_not_found"
	KindStoreUnavailable   ErrorKind = "store_unavailable"
	KindTimeout            ErrorKind = "timeout"
	KindComputeFailure     ErrorKind = "compute_failure"
)

// Error is a structured error carrying its taxonomy kind. The HTTP
// layer maps kinds to status codes; internal layers match on kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a structured error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a structured error.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the taxonomy kind from err, or "" if err is not a
// structured error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
