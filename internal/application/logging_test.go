package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.Canceled, "canceled"},
		{ErrStorageUnavailable, "storage_unavailable"},
		{fmt.Errorf("open: %w", persistence.ErrUnsupportedPlatform), "unsupported_platform"},
		{persistence.ErrStoreNotReady, "store_not_ready"},
		{persistence.ErrConstraintViolation, "constraint_violation"},
		{persistence.ErrInvalidArgument, "invalid_argument"},
		{&migration.StatementError{Step: 2, Err: errors.New("boom")}, "migration_statement"},
		{&migration.VersionRegressionError{Current: 2, Target: 1}, "version_regression"},
		{&migration.GapError{Current: 0, Target: 3, Reached: 1}, "migration_gap"},
		{&migration.InvalidRegistryError{Reason: "duplicate version"}, "invalid_registry"},
		{persistence.NewDriverError("ping", errors.New("disk gone")), "driver"},
		{&ValidationError{FieldErrors: map[string]string{"name": "required"}}, "validation"},
		{errors.New("other"), "unexpected"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, ErrorKind(tc.err), "error %v", tc.err)
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var ctxBuf, baseBuf bytes.Buffer
	ctxLogger := slog.New(slog.NewTextHandler(&ctxBuf, nil))
	baseLogger := slog.New(slog.NewTextHandler(&baseBuf, nil))

	ctx := logging.ContextWithLogger(context.Background(), ctxLogger)
	serviceLogger(ctx, baseLogger, "user", "add", "user_id", 3).Info("hello")

	require.Contains(t, ctxBuf.String(), "service=user")
	require.Contains(t, ctxBuf.String(), "operation=add")
	require.Contains(t, ctxBuf.String(), "user_id=3")
	require.Empty(t, baseBuf.String())

	serviceLogger(context.Background(), baseLogger, "user", "").Info("fallback")
	require.Contains(t, baseBuf.String(), "service=user")
	require.NotContains(t, baseBuf.String(), "operation=")
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	require.False(t, vErr.HasErrors())
	require.Equal(t, "validation failed", vErr.Error())

	vErr.add("name", "name is required")
	vErr.add("email", "email is invalid")
	require.True(t, vErr.HasErrors())
	require.Equal(t, "validation failed: email: email is invalid; name: name is required", vErr.Error())
}
