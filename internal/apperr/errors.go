// Package apperr defines the error kinds shared by the job, storage and
// HTTP layers. Errors are created with a kind and matched with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrArchive        = errors.New("archive error")
	ErrAutomation     = errors.New("automation failure")
	ErrInfrastructure = errors.New("infrastructure failure")
)

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// New creates an error of the given kind.
func New(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and a message to an underlying cause.
func Wrap(kind error, cause error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Validation creates an ErrValidation error.
func Validation(format string, args ...any) error {
	return New(ErrValidation, format, args...)
}

// NotFound creates an ErrNotFound error.
func NotFound(format string, args ...any) error {
	return New(ErrNotFound, format, args...)
}

// Conflict creates an ErrConflict error.
func Conflict(format string, args ...any) error {
	return New(ErrConflict, format, args...)
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrArchive):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
