package migration

import (
	"errors"
	"fmt"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrMigrationStatement indicates that a statement inside a step failed
	ErrMigrationStatement = errors.New("migration statement failed")

	// ErrVersionRegression indicates that the requested version is below the stored one
	ErrVersionRegression = errors.New("schema version regression")

	// ErrGap indicates that the registry has no step reaching the requested version
	ErrGap = errors.New("no migration step reaches target version")

	// ErrInvalidRegistry indicates that a registry is malformed
	ErrInvalidRegistry = errors.New("invalid migration registry")

	// ErrInvalidMigrationFile indicates that a migration file is malformed or invalid
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
)

// StatementError reports which statement of which step failed. The step was
// rolled back and the previous version is still in place.
type StatementError struct {
	Store     string // Store being migrated
	Step      int    // Version of the failing step
	Index     int    // Zero-based index of the failing statement
	Statement string // Statement text
	Err       error  // Underlying driver error
}

// Error implements the error interface
func (e *StatementError) Error() string {
	return fmt.Sprintf("migration %d of %s: statement %d: %v", e.Step, e.Store, e.Index, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *StatementError) Unwrap() error {
	return e.Err
}

// Is matches ErrMigrationStatement as well as the wrapped cause
func (e *StatementError) Is(target error) bool {
	return target == ErrMigrationStatement
}

// VersionRegressionError is returned when asked to move a store backwards.
type VersionRegressionError struct {
	Store   string
	Current int
	Target  int
}

// Error implements the error interface
func (e *VersionRegressionError) Error() string {
	return fmt.Sprintf("%s: target version %d is below current version %d", e.Store, e.Target, e.Current)
}

// Is matches ErrVersionRegression
func (e *VersionRegressionError) Is(target error) bool {
	return target == ErrVersionRegression
}

// GapError is returned when no registry step lands on the target version.
type GapError struct {
	Store   string
	Current int
	Target  int
	Reached int // Highest version the registry could reach, equal to Current when none
}

// Error implements the error interface
func (e *GapError) Error() string {
	return fmt.Sprintf("%s: no migration step reaches version %d from %d (registry stops at %d)",
		e.Store, e.Target, e.Current, e.Reached)
}

// Is matches ErrGap
func (e *GapError) Is(target error) bool {
	return target == ErrGap
}

// InvalidRegistryError describes why a registry was rejected.
type InvalidRegistryError struct {
	Index   int // Position of the offending step
	Version int
	Reason  string
}

// Error implements the error interface
func (e *InvalidRegistryError) Error() string {
	return fmt.Sprintf("%v: step %d (version %d): %s", ErrInvalidRegistry, e.Index, e.Version, e.Reason)
}

// Is matches ErrInvalidRegistry
func (e *InvalidRegistryError) Is(target error) bool {
	return target == ErrInvalidRegistry
}

// FileSystemError wraps file system related errors during migration loading
type FileSystemError struct {
	Path      string // File or directory path
	Operation string // File operation (read, scan, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// NewFileSystemError creates a new FileSystemError
func NewFileSystemError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}
