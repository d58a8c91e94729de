// Package common defines the sentinel errors shared by the store adapter,
// repositories and services of Drawbridge. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Store errors. StoreError values match ErrStore.
	ErrStore = errors.New("store error")

	// ErrConflict is returned when a watched key changed between the decision
	// read and the write batch. Nothing was written; the caller may retry.
	ErrConflict = errors.New("concurrent modification")

	// Token errors (lookup resolved to nothing).
	ErrInvalidToken = errors.New("invalid token")

	// Lifecycle errors.
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrScreenNameTaken   = errors.New("screen name already in use")

	// Validation errors.
	ErrorValidation = errors.New("validation error")
)

// StoreError reports a failure of the underlying key-value store or the
// network. Err is the driver error, surfaced unmodified.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStore.
func (e *StoreError) Is(target error) bool { return target == ErrStore }
