package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence"
)

// Querier is the subset of *sql.DB and *sql.Tx needed to read the version.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadUserVersion returns the schema version stored in the SQLite header.
func ReadUserVersion(ctx context.Context, q Querier) (int, error) {
	var version int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, persistence.NewDriverError("read user_version", err)
	}
	return version, nil
}

// Runner applies registry steps to a store.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil logger falls back to the context logger
// and then to slog.Default.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Apply brings target to version by executing every registry step with
// current < step.Version <= version in ascending order.
//
// Each step runs in its own transaction together with the version bump, so a
// failing statement leaves the store at the version of the last committed
// step. Applying to a store that is already at version executes nothing.
//
// When ctx ends before the write finishes, Apply returns ctx's error and
// usually a zero Report; the write itself runs to completion and still marks
// target migrated if it succeeds.
func (r *Runner) Apply(ctx context.Context, target Target, registry *Registry, version int) (Report, error) {
	if target == nil {
		return Report{}, fmt.Errorf("apply migrations: nil target: %w", persistence.ErrInvalidArgument)
	}
	if version < 0 {
		return Report{}, fmt.Errorf("apply migrations to %s: negative version %d: %w",
			target.Name(), version, persistence.ErrInvalidArgument)
	}

	logger := r.loggerFor(ctx).With("store", target.Name(), "target_version", version)

	// The closure may outlive this call; its report is only handed over
	// through the channel.
	published := make(chan Report, 1)
	err := target.Write(ctx, func(ctx context.Context, db *sql.DB) error {
		var report Report
		defer func() { published <- report }()

		if err := r.migrate(ctx, db, target.Name(), registry, version, &report, logger); err != nil {
			return err
		}
		target.MarkMigrated(report.To)
		return nil
	})

	var report Report
	select {
	case report = <-published:
	default:
	}
	return report, err
}

func (r *Runner) migrate(ctx context.Context, db *sql.DB, store string, registry *Registry, version int, report *Report, logger *slog.Logger) error {
	current, err := ReadUserVersion(ctx, db)
	if err != nil {
		return err
	}
	report.From, report.To = current, current

	if version < current {
		return &VersionRegressionError{Store: store, Current: current, Target: version}
	}
	if version == current {
		logger.Debug("schema up to date", "current_version", current)
		return nil
	}

	steps := pending(registry.Steps(), current, version)
	if len(steps) == 0 || steps[len(steps)-1].Version != version {
		reached := current
		if len(steps) > 0 {
			reached = steps[len(steps)-1].Version
		}
		return &GapError{Store: store, Current: current, Target: version, Reached: reached}
	}

	logger.Info("applying migrations", "current_version", current, "pending", len(steps))
	start := time.Now()
	for i, step := range steps {
		stepLogger := logger.With("step", step.Version)
		stepLogger.Info("executing migration step",
			"description", step.Description,
			"checksum", step.Checksum(),
			"position", fmt.Sprintf("%d/%d", i+1, len(steps)))

		stepStart := time.Now()
		executed, err := r.applyStep(ctx, db, store, step, stepLogger)
		if err != nil {
			stepLogger.Error("migration step rolled back", "error", err, "version", report.To)
			return err
		}
		report.Statements += executed
		report.Steps = append(report.Steps, step.Version)
		report.To = step.Version
		stepLogger.Info("migration step committed", "statements", executed, "duration", time.Since(stepStart))
	}
	logger.Info("migrations completed", "from", report.From, "to", report.To, "duration", time.Since(start))
	return nil
}

// applyStep executes one step inside a transaction and returns how many
// statements ran.
func (r *Runner) applyStep(ctx context.Context, db *sql.DB, store string, step Step, logger *slog.Logger) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistence.NewDriverError(fmt.Sprintf("begin migration %d", step.Version), err)
	}

	executed := 0
	for i, stmt := range step.Statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		logger.Debug("executing statement", "index", i)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			rollback(tx, logger)
			return 0, &StatementError{Store: store, Step: step.Version, Index: i, Statement: stmt, Err: err}
		}
		executed++
	}

	// PRAGMA arguments cannot be bound; the version is an int so formatting is safe.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.Version)); err != nil {
		rollback(tx, logger)
		return 0, persistence.NewDriverError(fmt.Sprintf("set user_version %d", step.Version), err)
	}

	if err := tx.Commit(); err != nil {
		return 0, persistence.NewDriverError(fmt.Sprintf("commit migration %d", step.Version), err)
	}
	return executed, nil
}

// Status reports the store's version against the registry's latest step.
func (r *Runner) Status(ctx context.Context, target Target, registry *Registry) (Status, error) {
	if target == nil {
		return Status{}, fmt.Errorf("migration status: nil target: %w", persistence.ErrInvalidArgument)
	}
	current, err := target.ReadVersion(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("migration status of %s: %w", target.Name(), err)
	}
	return Status{
		Store:          target.Name(),
		CurrentVersion: current,
		LatestVersion:  registry.Latest(),
		Pending:        pending(registry.Steps(), current, registry.Latest()),
	}, nil
}

func (r *Runner) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger.With("component", "migration")
	}
	if r != nil && r.logger != nil {
		return r.logger.With("component", "migration")
	}
	return slog.Default().With("component", "migration")
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if err := tx.Rollback(); err != nil {
		logger.Error("rollback failed", "error", err)
	}
}
