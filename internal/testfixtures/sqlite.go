package testfixtures

import (
	"context"
	"testing"

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence/sqlite"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

// StoreName is the store name harnesses open.
const StoreName = "fixture"

// SQLiteHarness provides a migrated store in a temporary directory for
// integration-style persistence tests.
type SQLiteHarness struct {
	Manager  *sqlite.Manager
	Handle   *sqlite.Handle
	Registry *migration.Registry
	Users    *sqlite.UserRepository
	DataDir  string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewManager returns a Manager rooted in a fresh temporary directory.
func NewManager(tb testing.TB) (*sqlite.Manager, string) {
	tb.Helper()

	dir := tb.TempDir()
	manager := sqlite.NewManager(sqlite.ManagerConfig{
		DataDir: dir,
		SQLite:  migration.TestSQLiteConfig(),
		Logger:  logging.Discard(),
	})
	tb.Cleanup(func() {
		_ = manager.CloseAll(context.Background())
	})
	return manager, dir
}

// NewSQLiteHarness opens a store migrated to the latest version of the
// default registry. Callers may invoke Close; a cleanup callback is also
// registered with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	manager, dir := NewManager(tb)

	registry, err := sqlite.DefaultRegistry()
	if err != nil {
		tb.Fatalf("failed to load default registry: %v", err)
	}

	handle, err := manager.Open(ctx, StoreName, registry.Latest())
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if _, err := migration.NewRunner(logging.Discard()).Apply(ctx, handle, registry, registry.Latest()); err != nil {
		_ = manager.Close(ctx, handle)
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &SQLiteHarness{
		Manager:  manager,
		Handle:   handle,
		Registry: registry,
		Users:    sqlite.NewUserRepository(handle),
		DataDir:  dir,
		cleanup: func() {
			_ = manager.Close(ctx, handle)
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
