package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/example/devicestore/internal/persistence"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

// State is the lifecycle state of a Handle.
type State int32

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handle is an open session on one store file. It owns a single database
// connection and serialises access to it: writes hold the lock exclusively,
// reads share it. sync.RWMutex blocks new readers once a writer is waiting.
type Handle struct {
	id     uuid.UUID
	name   string
	path   string
	target int

	state    atomic.Int32
	migrated atomic.Bool
	version  atomic.Int64 // version recorded by the last successful migration

	lock sync.RWMutex
	db   *sql.DB
	bun  *bun.DB
}

var _ migration.Target = (*Handle)(nil)

func newHandle(name, path string, target int) *Handle {
	h := &Handle{
		id:     uuid.New(),
		name:   name,
		path:   path,
		target: target,
	}
	h.state.Store(int32(StateUnopened))
	return h
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id.String() }

// Name returns the store name the handle was opened with.
func (h *Handle) Name() string { return h.name }

// Path returns the store file path.
func (h *Handle) Path() string { return h.path }

// TargetVersion returns the version requested when the handle was opened.
func (h *Handle) TargetVersion() int { return h.target }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Migrated reports whether a migration run has completed on this handle.
func (h *Handle) Migrated() bool { return h.migrated.Load() }

func (h *Handle) setState(s State) { h.state.Store(int32(s)) }

// ReadVersion returns the schema version stored in the file.
func (h *Handle) ReadVersion(ctx context.Context) (int, error) {
	var version int
	err := h.run(ctx, false, func(ctx context.Context) error {
		v, err := migration.ReadUserVersion(ctx, h.db)
		version = v
		return err
	})
	if err != nil {
		// On cancellation the worker may still be writing version.
		return 0, err
	}
	return version, nil
}

// Write runs fn with the connection held exclusively. fn always runs to
// completion; ctx cancellation only stops the caller from waiting.
func (h *Handle) Write(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	return h.run(ctx, true, func(ctx context.Context) error {
		return fn(ctx, h.db)
	})
}

// MarkMigrated opens the handle to record operations.
func (h *Handle) MarkMigrated(version int) {
	h.version.Store(int64(version))
	h.migrated.Store(true)
}

// requireReady must be called with the lock held.
func (h *Handle) requireReady(minVersion int) error {
	if s := h.State(); s != StateOpen {
		return fmt.Errorf("store %s is %s: %w", h.name, s, persistence.ErrStoreNotReady)
	}
	if !h.migrated.Load() {
		return fmt.Errorf("store %s has not been migrated: %w", h.name, persistence.ErrStoreNotReady)
	}
	if v := int(h.version.Load()); v < minVersion {
		return fmt.Errorf("store %s is at version %d, need %d: %w", h.name, v, minVersion, persistence.ErrStoreNotReady)
	}
	return nil
}

// run checks the handle is open and executes fn under the lock.
func (h *Handle) run(ctx context.Context, exclusive bool, fn func(ctx context.Context) error) error {
	return h.do(ctx, exclusive, func(opCtx context.Context) error {
		if s := h.State(); s != StateOpen {
			return fmt.Errorf("store %s is %s: %w", h.name, s, persistence.ErrStoreNotReady)
		}
		return fn(opCtx)
	})
}

// do executes fn on a worker goroutine holding the lock. Exclusive work
// gets a context that ignores cancellation so a statement sequence is never
// cut short; the caller still returns as soon as its own ctx is done.
func (h *Handle) do(ctx context.Context, exclusive bool, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opCtx := ctx
	if exclusive {
		opCtx = context.WithoutCancel(ctx)
	}

	done := make(chan error, 1)
	go func() {
		if exclusive {
			h.lock.Lock()
			defer h.lock.Unlock()
		} else {
			h.lock.RLock()
			defer h.lock.RUnlock()
		}
		done <- fn(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close releases the connection once in-flight operations have finished.
func (h *Handle) close(ctx context.Context) error {
	return h.do(ctx, true, func(context.Context) error {
		if h.State() != StateOpen {
			return nil
		}
		h.setState(StateClosed)
		h.migrated.Store(false)
		if err := h.db.Close(); err != nil {
			return persistence.NewDriverError("close "+h.name, err)
		}
		return nil
	})
}
