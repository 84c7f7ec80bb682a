// Package errs holds the error taxonomy shared by the store, the chat proxy,
// the HTTP layer and the client session.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced conversation does not exist. Callers
	// treat it as a normal outcome (e.g. deleted by another session).
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument covers malformed roles, missing fields and a
	// missing model selection.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPersistence wraps failures of the backing database.
	ErrPersistence = errors.New("persistence failure")

	// ErrBusy is returned by a session that is already sending.
	ErrBusy = errors.New("session busy")
)

// BackendError reports a failed upstream inference call.
type BackendError struct {
	Backend string
	Status  int // 0 when the backend could not be reached
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s backend returned %d: %s", e.Backend, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s backend returned %d", e.Backend, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s backend unreachable: %v", e.Backend, e.Err)
	default:
		return fmt.Sprintf("%s backend error: %s", e.Backend, e.Message)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// Unreachable reports whether the backend could not be asked at all.
func (e *BackendError) Unreachable() bool {
	return e.Status == 0 && e.Err != nil
}

// Invalid wraps ErrInvalidArgument with a description.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Persistence wraps a database error with ErrPersistence.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// IsBackend reports whether err carries a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
