package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyOwned is returned when a user tries to buy something they already own.
	ErrAlreadyOwned = errors.New("already purchased")

	// ErrConflict is returned when a conditional update lost against a concurrent writer.
	ErrConflict = errors.New("record was modified concurrently")
)

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

// NotFoundError reports a missing resource (course, test, category, entitlement, payment...).
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
	return fmt.Sprintf("%s %q not found", err.Resource, err.ID)
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// TransientError wraps failures that are safe to retry (gateway/network timeouts).
type TransientError struct {
	Err error
}

func NewTransientError(err error, msg string) error {
	return &TransientError{Err: errors.Wrap(err, msg)}
}

func (err TransientError) Error() string {
	return err.Err.Error()
}

func IsTransient(err error) bool {
	_, ok := errors.Cause(err).(*TransientError)
	return ok
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
