package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// dbTarget is a minimal Target over a single-connection database.
type dbTarget struct {
	name string
	db   *sql.DB

	mu       sync.RWMutex
	migrated bool
	version  int
}

func newDBTarget(t *testing.T) *dbTarget {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return &dbTarget{name: "runner", db: db}
}

func (d *dbTarget) Name() string { return d.name }

func (d *dbTarget) ReadVersion(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return ReadUserVersion(ctx, d.db)
}

func (d *dbTarget) Write(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(context.WithoutCancel(ctx), d.db)
}

func (d *dbTarget) MarkMigrated(version int) {
	d.migrated = true
	d.version = version
}

func (d *dbTarget) mustVersion(t *testing.T) int {
	t.Helper()
	v, err := d.ReadVersion(context.Background())
	require.NoError(t, err)
	return v
}

func (d *dbTarget) tableExists(t *testing.T, table string) bool {
	t.Helper()
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func (d *dbTarget) columnExists(t *testing.T, table, column string) bool {
	t.Helper()
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

const createUsers = `CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY NOT NULL,
	name TEXT NOT NULL,
	email TEXT
)`

func usersRegistry(t *testing.T, extra ...Step) *Registry {
	t.Helper()
	steps := append([]Step{{Version: 1, Description: "create users", Statements: []string{createUsers}}}, extra...)
	r, err := NewRegistry(steps...)
	require.NoError(t, err)
	return r
}

// detachedTarget runs each write on its own goroutine once gate is closed and
// stops waiting for it when the caller's context ends, the way *sqlite.Handle
// does.
type detachedTarget struct {
	*dbTarget

	gate     chan struct{}
	finished chan struct{}
	marked   atomic.Int64
}

func newDetachedTarget(t *testing.T) *detachedTarget {
	t.Helper()
	d := &detachedTarget{
		dbTarget: newDBTarget(t),
		gate:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	d.marked.Store(-1)
	return d
}

func (d *detachedTarget) Write(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	done := make(chan error, 1)
	go func() {
		defer close(d.finished)
		<-d.gate
		done <- d.dbTarget.Write(ctx, fn)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *detachedTarget) MarkMigrated(version int) {
	d.marked.Store(int64(version))
}
