// Package migration provides versioned schema migrations for SQLite stores.
//
// A Registry is an immutable, validated list of Steps. Each Step targets a
// schema version and carries the statements that bring the store to it.
// The Runner compares the store's own version metadata (PRAGMA user_version)
// with the requested target and applies every pending step in ascending
// order. It supports:
//
//   - Registry validation at construction (no duplicates, strictly increasing)
//   - One transaction per step; the version bump commits with the statements
//   - Refusal to downgrade and detection of versions the registry cannot reach
//   - Loading steps from {version}_{description}.sql files on disk or in an fs.FS
//
// Example usage:
//
//	registry, err := migration.ScanDir("migrations")
//	if err != nil {
//		return err
//	}
//	report, err := migration.NewRunner(logger).Apply(ctx, handle, registry, 2)
package migration
