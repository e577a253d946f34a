package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

type cli struct {
	t       *testing.T
	dataDir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("AppData", filepath.Join(home, "AppData"))
	t.Chdir(t.TempDir())

	return &cli{t: t, dataDir: filepath.Join(home, "data")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--data-dir", c.dataDir, "--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "devicestore %s", strings.Join(args, " "))
	return out
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestMigrateIsIdempotent(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("migrate")
	require.Contains(t, out, "migrated app from version 0 to 1")
	require.FileExists(t, filepath.Join(c.dataDir, "appSQLite.db"))

	out = c.mustRun("migrate")
	require.Contains(t, out, "app is up to date at version 1")
}

func TestUsersLifecycle(t *testing.T) {
	c := newCLI(t)

	require.Contains(t, c.mustRun("users", "add", "Ada", "--email", "ada@example.com"), "added user 1")
	require.Contains(t, c.mustRun("users", "add", "Grace"), "added user 2")

	out := c.mustRun("users", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "Ada")
	require.Contains(t, lines[1], "ada@example.com")
	require.Contains(t, lines[2], "Grace")

	c.mustRun("users", "delete", "1")
	c.mustRun("users", "delete", "42")

	var users []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("users", "list", "-o", "yaml")), &users))
	require.Len(t, users, 1)
	require.Equal(t, "Grace", users[0]["name"])
	require.Equal(t, 2, users[0]["id"])
}

func TestUsersAddRejectsInvalidInput(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("users", "add", "   ")
	require.Error(t, err)

	_, err = c.run("users", "delete", "abc")
	require.Error(t, err)
}

func TestStatusReportsPendingSteps(t *testing.T) {
	c := newCLI(t)
	dir := writeMigrations(t, map[string]string{
		"001_create_users.sql": "CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL, email TEXT);",
		"002_add_phone.sql":    "-- Description: Add phone column\nALTER TABLE users ADD COLUMN phone TEXT;",
	})

	c.mustRun("migrate", "--migrations-dir", dir, "--target", "1")

	var status statusView
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("status", "-o", "yaml")), &status))
	require.Equal(t, "app", status.Store)
	require.Equal(t, 1, status.CurrentVersion)
	require.Equal(t, 1, status.LatestVersion)
	require.True(t, status.UpToDate)

	t.Setenv("DEVICESTORE_MIGRATIONS_DIR", dir)
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("status", "-o", "yaml")), &status))
	require.Equal(t, 2, status.LatestVersion)
	require.False(t, status.UpToDate)
	require.Len(t, status.Pending, 1)
	require.Equal(t, "Add phone column", status.Pending[0].Description)

	require.Contains(t, c.mustRun("migrate"), "from version 1 to 2")
	require.Contains(t, c.mustRun("status"), "up to date")
}

func TestMigrateRefusesDowngrade(t *testing.T) {
	c := newCLI(t)
	dir := writeMigrations(t, map[string]string{
		"001_create_users.sql": "CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL, email TEXT);",
		"002_add_phone.sql":    "ALTER TABLE users ADD COLUMN phone TEXT;",
	})

	c.mustRun("migrate", "--migrations-dir", dir)

	_, err := c.run("migrate", "--migrations-dir", dir, "--target", "1")
	require.ErrorIs(t, err, migration.ErrVersionRegression)
}

func TestMigrateReportsFailingStep(t *testing.T) {
	c := newCLI(t)
	dir := writeMigrations(t, map[string]string{
		"001_create_users.sql": "CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL, email TEXT);",
		"002_broken.sql":       "INSERT INTO nowhere (id) VALUES (1);",
	})

	out, err := c.run("migrate", "--migrations-dir", dir)
	require.ErrorIs(t, err, migration.ErrMigrationStatement)
	require.Contains(t, out, "is at version 1")
}

func TestConfigInitAndShow(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(t.TempDir(), "devicestore.yaml")

	require.Contains(t, c.mustRun("--store", "phone", "config", "init", path), "wrote "+path)

	_, err := c.run("config", "init", path)
	require.Error(t, err)

	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("--config", path, "config", "show")), &shown))
	require.Equal(t, "phone", shown["store"])
}

func TestInvalidConfiguration(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("--log-format", "xml", "status")
	require.Error(t, err)
	require.Contains(t, err.Error(), "log.format")
}
