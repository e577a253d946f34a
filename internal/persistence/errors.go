package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is returned when the runtime cannot host a local embedded store.
	ErrUnsupportedPlatform = errors.New("persistence: embedded store unsupported on this platform")
	// ErrAlreadyOpen reports that a handle for the store name is already live.
	// Open absorbs it and hands back the existing handle.
	ErrAlreadyOpen = errors.New("persistence: store already open")
	// ErrStoreNotReady is returned when a handle is closed or not yet migrated.
	ErrStoreNotReady = errors.New("persistence: store not ready")
	// ErrConstraintViolation is returned when a write breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrInvalidArgument is returned for malformed store names or versions.
	ErrInvalidArgument = errors.New("persistence: invalid argument")
)

// DriverError wraps an opaque failure from the database driver.
type DriverError struct {
	Op  string // Operation being performed (open, ping, begin, ...)
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	return fmt.Sprintf("driver error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DriverError) Unwrap() error {
	return e.Err
}

// NewDriverError wraps err, returning nil when err is nil.
func NewDriverError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}
