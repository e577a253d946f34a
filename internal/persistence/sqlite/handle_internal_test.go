package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

// stillBlocked is how long a test waits to be sure a call has not returned.
const stillBlocked = 50 * time.Millisecond

func openTestHandle(t *testing.T) *Handle {
	t.Helper()

	manager := NewManager(ManagerConfig{
		DataDir: t.TempDir(),
		SQLite:  migration.TestSQLiteConfig(),
		Logger:  logging.Discard(),
	})
	t.Cleanup(func() { _ = manager.CloseAll(context.Background()) })

	h, err := manager.Open(context.Background(), "handle", 1)
	require.NoError(t, err)
	return h
}

// gatedTarget holds each write open until gate is closed, after signalling
// that it owns the connection.
type gatedTarget struct {
	*Handle

	started chan struct{}
	gate    chan struct{}
}

func newGatedTarget(h *Handle) *gatedTarget {
	return &gatedTarget{Handle: h, started: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedTarget) Write(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	return g.Handle.Write(ctx, func(ctx context.Context, db *sql.DB) error {
		close(g.started)
		<-g.gate
		return fn(ctx, db)
	})
}

func requireNoResult[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("call returned early with %v", v)
	case <-time.After(stillBlocked):
	}
}

func TestHandleWrite_CancelledCallerStillCommits(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	gate := make(chan struct{})
	err := h.Write(ctx, func(ctx context.Context, db *sql.DB) error {
		<-gate
		_, err := db.ExecContext(ctx, "CREATE TABLE audit (id INTEGER PRIMARY KEY)")
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(gate)

	// The next exclusive write only starts once the abandoned one is done.
	var tables int
	err = h.Write(context.Background(), func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'audit'`).Scan(&tables)
	})
	require.NoError(t, err)
	require.Equal(t, 1, tables)
}

func TestHandleApply_CancelledMidStepStillMigrates(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	base, err := DefaultRegistry()
	require.NoError(t, err)
	registry, err := migration.NewRegistry(append(base.Steps(), migration.Step{
		Version:     2,
		Description: "fill numbers",
		Statements: []string{`CREATE TABLE numbers AS
			WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < 20000)
			SELECT n FROM seq`},
	})...)
	require.NoError(t, err)

	target := newGatedTarget(h)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := migration.NewRunner(logging.Discard()).Apply(ctx, target, registry, 2)
		result <- err
	}()

	<-target.started
	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
	require.False(t, h.Migrated())
	close(target.gate)

	require.Eventually(t, h.Migrated, 5*time.Second, 5*time.Millisecond)
	version, err := h.ReadVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, version)

	var rows int
	err = h.Write(context.Background(), func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM numbers").Scan(&rows)
	})
	require.NoError(t, err)
	require.Equal(t, 20000, rows)
}

func TestUserRepository_WaitsForInFlightMigration(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	repo := NewUserRepository(h)

	target := newGatedTarget(h)
	applied := make(chan error, 1)
	go func() {
		_, err := migration.NewRunner(logging.Discard()).Apply(context.Background(), target, registry, 1)
		applied <- err
	}()
	<-target.started

	// Issued against an unmigrated store, but it queues behind the
	// migration and runs once the users table exists.
	inserted := make(chan error, 1)
	go func() {
		_, err := repo.Insert(context.Background(), "Ada", nil)
		inserted <- err
	}()
	queried := make(chan error, 1)
	go func() {
		_, err := repo.QueryAll(context.Background())
		queried <- err
	}()

	requireNoResult(t, inserted)
	requireNoResult(t, queried)

	close(target.gate)
	require.NoError(t, <-applied)
	require.NoError(t, <-inserted)
	require.NoError(t, <-queried)

	users, err := repo.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "Ada", users[0].Name)
}

func TestHandle_ReaderWaitsBehindPendingWriter(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, event)
	}

	firstRead := make(chan struct{})
	releaseRead := make(chan struct{})
	readDone := make(chan error, 1)
	go func() {
		readDone <- h.do(ctx, false, func(context.Context) error {
			close(firstRead)
			<-releaseRead
			record("read1")
			return nil
		})
	}()
	<-firstRead

	writeDone := make(chan error, 1)
	go func() {
		writeDone <- h.Write(ctx, func(context.Context, *sql.DB) error {
			record("write")
			return nil
		})
	}()

	// A pending writer makes new shared acquisitions fail.
	require.Eventually(t, func() bool {
		if h.lock.TryRLock() {
			h.lock.RUnlock()
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	secondDone := make(chan error, 1)
	go func() {
		_, err := h.ReadVersion(ctx)
		record("read2")
		secondDone <- err
	}()

	requireNoResult(t, writeDone)
	requireNoResult(t, secondDone)

	close(releaseRead)
	require.NoError(t, <-readDone)
	require.NoError(t, <-writeDone)
	require.NoError(t, <-secondDone)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"read1", "write", "read2"}, order)
}
