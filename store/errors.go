package store

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidDirection indicates a direction other than Sent or Received.
	ErrInvalidDirection = errors.New("invalid message direction")

	// ErrUnknownDriver indicates an unsupported store driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// StoreError represents a persistence failure with the operation that hit it.
type StoreError struct {
	Op     string // "open", "schema", "append", "query", "close"
	Driver string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Driver, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(driver, op string, err error) *StoreError {
	return &StoreError{Op: op, Driver: driver, Err: err}
}
