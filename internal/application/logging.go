package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, persistence.ErrUnsupportedPlatform):
		return "unsupported_platform"
	case errors.Is(err, persistence.ErrStoreNotReady):
		return "store_not_ready"
	case errors.Is(err, persistence.ErrConstraintViolation):
		return "constraint_violation"
	case errors.Is(err, persistence.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, migration.ErrMigrationStatement):
		return "migration_statement"
	case errors.Is(err, migration.ErrVersionRegression):
		return "version_regression"
	case errors.Is(err, migration.ErrGap):
		return "migration_gap"
	case errors.Is(err, migration.ErrInvalidRegistry), errors.Is(err, migration.ErrInvalidMigrationFile):
		return "invalid_registry"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var dErr *persistence.DriverError
	if errors.As(err, &dErr) {
		return "driver"
	}

	return "unexpected"
}
