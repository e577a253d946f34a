package migration

import (
	"context"
	"database/sql"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Step is a versioned, atomic set of statements.
type Step struct {
	Version     int      // Schema version reached once the step commits
	Description string   // Human-readable description of the step
	Statements  []string // DDL/DML executed in order
	Source      string   // File the step was loaded from, empty for inline steps
}

// Checksum returns the BLAKE2b-256 digest of the step's statements.
func (s Step) Checksum() string {
	sum := blake2b.Sum256([]byte(strings.Join(s.Statements, ";\n")))
	return hex.EncodeToString(sum[:])
}

func (s Step) clone() Step {
	out := s
	out.Statements = append([]string(nil), s.Statements...)
	return out
}

// Target is the store a Runner migrates. The sqlite package's Handle
// implements it.
type Target interface {
	// Name identifies the store in logs and errors.
	Name() string

	// ReadVersion returns the schema version persisted in the store.
	ReadVersion(ctx context.Context) (int, error)

	// Write runs fn with exclusive access to the store's connection.
	// Implementations must not interrupt fn when ctx is cancelled.
	Write(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error

	// MarkMigrated opens the store to record operations at the given version.
	// Apply calls it from inside the Write callback.
	MarkMigrated(version int)
}

// Report summarises one Apply call.
type Report struct {
	From       int   // Version before the call
	To         int   // Version after the call
	Steps      []int // Versions of the steps that committed
	Statements int   // Number of statements executed
}

// Status compares a store with a registry.
type Status struct {
	Store          string
	CurrentVersion int
	LatestVersion  int
	Pending        []Step
}

// UpToDate reports whether no step is pending.
func (s Status) UpToDate() bool {
	return len(s.Pending) == 0
}
