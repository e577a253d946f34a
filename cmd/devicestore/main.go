// Command devicestore manages a local embedded store: it applies schema
// migrations, reports the schema version and edits user records.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/devicestore/internal/application"
	"github.com/example/devicestore/internal/config"
	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence/sqlite"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

var version = "dev" // set by the linker

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	cfg     config.Config
	logger  *slog.Logger
	manager *sqlite.Manager
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "devicestore",
		Short:         "Manage a local embedded store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.shutdown(cmd.Context())
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default is <user config dir>/devicestore/devicestore.yaml or ./devicestore.yaml)")
	flags.String("data-dir", "", "directory holding store files")
	flags.String("store", "", "store name")
	flags.String("log-level", "", `log level ("debug", "info", "warn", "error")`)
	flags.String("log-format", "", `log format ("text", "json")`)

	cmd.AddCommand(
		newMigrateCmd(a),
		newStatusCmd(a),
		newUsersCmd(a),
		newConfigCmd(a),
	)

	return withErrorLogging(cmd, a)
}

// withErrorLogging logs failures of every subcommand with an error kind.
func withErrorLogging(root *cobra.Command, a *app) *cobra.Command {
	for _, c := range allCommands(root) {
		run := c.RunE
		if run == nil {
			continue
		}
		c.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if err != nil {
				a.log().Error("command failed", "command", cmd.CommandPath(),
					"error_kind", application.ErrorKind(err), "error", err)
				// PersistentPostRunE is skipped after a failed RunE.
				if cerr := a.shutdown(cmd.Context()); cerr != nil {
					a.log().Error("failed to close stores", "error", cerr)
				}
			}
			return err
		}
	}
	return root
}

func allCommands(root *cobra.Command) []*cobra.Command {
	out := []*cobra.Command{root}
	for _, c := range root.Commands() {
		out = append(out, allCommands(c)...)
	}
	return out
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd, a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.With("command", cmd.Name())
	a.manager = sqlite.NewManager(sqlite.ManagerConfig{
		DataDir: cfg.DataDir,
		SQLite:  cfg.SQLite.Pragmas(),
		Logger:  a.logger,
	})

	cmd.SetContext(logging.ContextWithLogger(cmd.Context(), a.logger))
	if cfg.File != "" {
		a.logger.Debug("configuration loaded", "file", cfg.File)
	}
	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	if a.manager == nil {
		return nil
	}
	return a.manager.CloseAll(context.WithoutCancel(ctx))
}

func (a *app) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return logging.Discard()
}

// registry returns the migration steps from migrations_dir, or the built-in
// schema when none is configured.
func (a *app) registry() (*migration.Registry, error) {
	if a.cfg.MigrationsDir != "" {
		return migration.ScanDir(a.cfg.MigrationsDir)
	}
	return sqlite.DefaultRegistry()
}

// target resolves the configured target version against registry.
func (a *app) target(registry *migration.Registry) int {
	if a.cfg.TargetVersion < 0 {
		return registry.Latest()
	}
	return a.cfg.TargetVersion
}

// session opens the configured store and migrates it.
func (a *app) session(ctx context.Context) (*application.Session, error) {
	registry, err := a.registry()
	if err != nil {
		return nil, err
	}
	session, err := application.OpenSession(ctx, application.SessionParams{
		Manager:  a.manager,
		Runner:   migration.NewRunner(a.logger),
		Registry: registry,
		Store:    a.cfg.Store,
		Target:   a.target(registry),
		Logger:   a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.Store, err)
	}
	return session, nil
}
