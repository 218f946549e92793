package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	// Storage implementations wrap this error when an item doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrCategoryNotFound is returned for names absent from the category registry.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidArgument is returned for out-of-range paging parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreUnavailable matches any failure talking to the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a backend failure. It matches both ErrStoreUnavailable
// and the underlying driver error under errors.Is.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err, returning nil for a nil err.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}
