package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

// fileSuffix is appended to the store name to form the file name.
const fileSuffix = "SQLite.db"

var storeNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Capability reports whether the runtime can host an embedded store.
type Capability func() bool

// NativeCapability reports false on runtimes without a filesystem-backed
// SQLite (browser and WASI builds).
func NativeCapability() bool {
	switch runtime.GOOS {
	case "js", "wasip1":
		return false
	default:
		return true
	}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// DataDir holds the store files. It is created on first open.
	DataDir string

	// SQLite holds pragma settings applied to every connection.
	SQLite migration.SQLiteConfig

	// Logger receives lifecycle records. Defaults to slog.Default.
	Logger *slog.Logger

	// Capability overrides the platform check. Defaults to NativeCapability.
	Capability Capability
}

// Manager owns the open handles of one process component. Each store name
// has at most one live handle per Manager.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Capability == nil {
		cfg.Capability = NativeCapability
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "connection"),
		handles: make(map[string]*Handle),
	}
}

// Open returns a handle for storeName, opening the store file if no handle
// is live. Opening a store that is already open returns the live handle.
func (m *Manager) Open(ctx context.Context, storeName string, targetVersion int) (*Handle, error) {
	h, _, err := m.Acquire(ctx, storeName, targetVersion)
	return h, err
}

// Acquire is Open that also reports whether this call created the handle.
// Callers sharing a reused handle should leave closing it to its creator.
func (m *Manager) Acquire(ctx context.Context, storeName string, targetVersion int) (*Handle, bool, error) {
	if !m.cfg.Capability() {
		return nil, false, fmt.Errorf("open %s: %w", storeName, persistence.ErrUnsupportedPlatform)
	}
	if !storeNamePattern.MatchString(storeName) {
		return nil, false, fmt.Errorf("open %q: invalid store name: %w", storeName, persistence.ErrInvalidArgument)
	}
	if targetVersion < 0 {
		return nil, false, fmt.Errorf("open %s: negative target version %d: %w", storeName, targetVersion, persistence.ErrInvalidArgument)
	}

	logger := m.loggerFor(ctx).With("store", storeName)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.register(storeName, targetVersion)
	if errors.Is(err, persistence.ErrAlreadyOpen) {
		if h.TargetVersion() != targetVersion {
			logger.Warn("store already open with a different target version",
				"open_target", h.TargetVersion(), "requested_target", targetVersion)
		}
		logger.Debug("reusing open store", "handle", h.ID())
		return h, false, nil
	}

	start := time.Now()
	if err := m.connect(ctx, h); err != nil {
		h.setState(StateFailed)
		delete(m.handles, storeName)
		logger.Error("failed to open store", "error", err)
		return nil, false, err
	}
	h.setState(StateOpen)

	logger.Info("store opened", "handle", h.ID(), "path", h.Path(), "duration", time.Since(start))
	return h, true, nil
}

// register reserves storeName for a new handle in the Opening state. When a
// live handle exists it is returned together with ErrAlreadyOpen.
// Callers must hold m.mu.
func (m *Manager) register(storeName string, targetVersion int) (*Handle, error) {
	if existing, ok := m.handles[storeName]; ok && existing.State() == StateOpen {
		return existing, persistence.ErrAlreadyOpen
	}
	h := newHandle(storeName, filepath.Join(m.cfg.DataDir, storeName+fileSuffix), targetVersion)
	h.setState(StateOpening)
	m.handles[storeName] = h
	return h, nil
}

func (m *Manager) connect(ctx context.Context, h *Handle) error {
	if err := m.cfg.SQLite.Validate(); err != nil {
		return fmt.Errorf("open %s: invalid SQLite configuration: %w", h.name, err)
	}
	if strings.ContainsAny(h.path, "?#") {
		return fmt.Errorf("open %s: path %q contains a URI delimiter: %w", h.name, h.path, persistence.ErrInvalidArgument)
	}
	if m.cfg.DataDir != "" {
		if err := os.MkdirAll(m.cfg.DataDir, 0o700); err != nil {
			return persistence.NewDriverError("create data directory", err)
		}
	}

	db, err := sql.Open("sqlite", m.cfg.SQLite.DSN(h.path))
	if err != nil {
		return persistence.NewDriverError("open "+h.name, err)
	}

	// One connection per store: every statement, including PRAGMA
	// user_version, sees the same session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return persistence.NewDriverError("ping "+h.name, err)
	}

	h.db = db
	h.bun = bun.NewDB(db, sqlitedialect.New())
	return nil
}

// Close releases the handle. Closing a closed handle is a no-op.
//
// The close waits for in-flight operations and is not abandoned when ctx is
// cancelled; the handle stays registered until its connection is released.
func (m *Manager) Close(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	wasOpen := h.State() == StateOpen
	err := h.close(context.WithoutCancel(ctx))

	m.mu.Lock()
	if current, ok := m.handles[h.name]; ok && current == h && h.State() != StateOpen {
		delete(m.handles, h.name)
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if wasOpen {
		m.loggerFor(ctx).Info("store closed", "store", h.name, "handle", h.ID())
	}
	return nil
}

// CloseAll closes every live handle.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := m.Close(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CurrentVersion reads the schema version persisted in the store.
func (m *Manager) CurrentVersion(ctx context.Context, h *Handle) (int, error) {
	if h == nil {
		return 0, fmt.Errorf("current version: nil handle: %w", persistence.ErrInvalidArgument)
	}
	return h.ReadVersion(ctx)
}

// Lookup returns the live handle for storeName.
func (m *Manager) Lookup(storeName string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[storeName]
	if !ok || h.State() != StateOpen {
		return nil, false
	}
	return h, true
}

func (m *Manager) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger.With("component", "connection")
	}
	return m.logger
}
