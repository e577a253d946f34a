package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/devicestore/internal/persistence"
	"github.com/example/devicestore/internal/testfixtures"
)

func TestRecordStoreContract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var store persistence.RecordStore = testfixtures.NewSQLiteHarness(t).Users

	records, err := store.QueryAll(ctx)
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)

	seeded := testfixtures.SeedUsers(t, store,
		testfixtures.NewUserFixture(testfixtures.WithName("Ada"), testfixtures.WithEmail("ada@example.com")),
		testfixtures.NewUserFixture(testfixtures.WithName("Grace"), testfixtures.WithoutEmail()),
		testfixtures.NewUserFixture(testfixtures.WithName("Edsger")),
	)

	require.NoError(t, store.DeleteByID(ctx, seeded[1].ID))
	require.NoError(t, store.DeleteByID(ctx, seeded[1].ID))

	records, err = store.QueryAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []persistence.UserRecord{seeded[0], seeded[2]}, records)

	_, err = store.Insert(ctx, "", nil)
	require.ErrorIs(t, err, persistence.ErrConstraintViolation)
}

func TestUserRecordEmailOrEmpty(t *testing.T) {
	t.Parallel()

	email := "ada@example.com"
	require.Equal(t, email, persistence.UserRecord{Email: &email}.EmailOrEmpty())
	require.Empty(t, persistence.UserRecord{}.EmailOrEmpty())
}

func TestDriverError(t *testing.T) {
	t.Parallel()

	require.NoError(t, persistence.NewDriverError("ping", nil))

	cause := errors.New("disk I/O error")
	err := persistence.NewDriverError("ping", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "driver error during ping: disk I/O error", err.Error())

	var driverErr *persistence.DriverError
	require.True(t, errors.As(err, &driverErr))
	require.Equal(t, "ping", driverErr.Op)
}
