package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/devicestore/internal/persistence/sqlite"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

// SessionParams describes the store a Session opens.
type SessionParams struct {
	Manager  *sqlite.Manager
	Runner   *migration.Runner
	Registry *migration.Registry
	Store    string
	// Target is the schema version to migrate to. Negative means the
	// registry's latest version.
	Target int
	Logger *slog.Logger
}

// Session is an open store migrated to its target version.
//
// Sessions on the same store share one handle. Only the session that opened
// the handle closes it.
type Session struct {
	manager *sqlite.Manager
	handle  *sqlite.Handle
	owned   bool
	report  migration.Report

	Users *UserService
}

// OpenSession opens the store and applies pending migrations. A handle this
// call opened is closed again when migration fails.
func OpenSession(ctx context.Context, params SessionParams) (*Session, error) {
	if params.Manager == nil || params.Runner == nil || params.Registry == nil {
		return nil, errors.New("open session: manager, runner and registry are required")
	}
	target := params.Target
	if target < 0 {
		target = params.Registry.Latest()
	}

	logger := serviceLogger(ctx, params.Logger, "session", "open", "store", params.Store, "target", target)
	start := time.Now()

	handle, owned, err := params.Manager.Acquire(ctx, params.Store, target)
	if err != nil {
		logger.Error("open failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	report, err := params.Runner.Apply(ctx, handle, params.Registry, target)
	if err != nil {
		logger.Error("migration failed", "error_kind", ErrorKind(err), "error", err, "reached", report.To)
		if !owned {
			return nil, err
		}
		if closeErr := params.Manager.Close(context.WithoutCancel(ctx), handle); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close after failed migration: %w", closeErr))
		}
		return nil, err
	}

	logger.Info("session ready", "from", report.From, "to", report.To,
		"steps", len(report.Steps), "duration", time.Since(start))

	return &Session{
		manager: params.Manager,
		handle:  handle,
		owned:   owned,
		report:  report,
		Users:   NewUserService(sqlite.NewUserRepository(handle), params.Logger),
	}, nil
}

// Handle returns the session's store handle.
func (s *Session) Handle() *sqlite.Handle { return s.handle }

// Report returns the migration report produced while opening.
func (s *Session) Report() migration.Report { return s.report }

// Close releases the store if this session opened it. A session that reused
// another session's handle leaves it open.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || !s.owned {
		return nil
	}
	return s.manager.Close(ctx, s.handle)
}

// OpenSessionOrDegrade opens a session and, when that fails, logs the error
// and returns a session whose UserService reports ErrStorageUnavailable.
func OpenSessionOrDegrade(ctx context.Context, params SessionParams) *Session {
	session, err := OpenSession(ctx, params)
	if err == nil {
		return session
	}
	serviceLogger(ctx, params.Logger, "session", "open", "store", params.Store).
		Warn("continuing without storage", "error_kind", ErrorKind(err), "error", err)
	return &Session{manager: params.Manager, Users: NewUserService(nil, params.Logger)}
}
