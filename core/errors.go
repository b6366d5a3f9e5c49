package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnavailable marks transient infrastructure failures (timeouts, lock contention, serialization failures).
// Callers may retry them.
var ErrUnavailable = errors.New("service temporarily unavailable")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned whenever a referenced resource does not resolve.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func (err NotFoundError) Error() string {
	if err.ID == "" {
		return err.Resource + " not found"
	}
	return fmt.Sprintf("%s with ID %s not found", err.Resource, err.ID)
}

// StateError is returned when an operation is not allowed in the current state of a resource.
type StateError struct {
	Err error
}

func NewStateError(err error) error {
	return &StateError{Err: err}
}

func (err StateError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsUnavailable(err error) bool {
	return errors.Cause(err) == ErrUnavailable
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
