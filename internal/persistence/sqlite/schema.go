package sqlite

import (
	"embed"

	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// UsersTableVersion is the schema version that creates the users table.
const UsersTableVersion = 1

// DefaultRegistry returns the built-in schema registry.
func DefaultRegistry() (*migration.Registry, error) {
	return migration.ScanFS(schemaFiles, "schema")
}
