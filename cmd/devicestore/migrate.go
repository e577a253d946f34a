package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Opens the store and applies every migration step above the stored
schema version up to the target (default: the latest step). Steps run
in their own transaction; a failing step is rolled back and the store
keeps the version of the last step that succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			registry, err := a.registry()
			if err != nil {
				return err
			}
			target := a.target(registry)

			handle, err := a.manager.Open(ctx, a.cfg.Store, target)
			if err != nil {
				return err
			}

			report, err := migration.NewRunner(a.logger).Apply(ctx, handle, registry, target)
			if err != nil {
				if len(report.Steps) > 0 {
					fmt.Fprintf(a.stdout, "applied %d step(s) before failure; %s is at version %d\n",
						len(report.Steps), a.cfg.Store, report.To)
				}
				return err
			}

			if len(report.Steps) == 0 {
				fmt.Fprintf(a.stdout, "%s is up to date at version %d\n", a.cfg.Store, report.To)
				return nil
			}
			fmt.Fprintf(a.stdout, "migrated %s from version %d to %d (%d step(s), %d statement(s))\n",
				a.cfg.Store, report.From, report.To, len(report.Steps), report.Statements)
			return nil
		},
	}

	cmd.Flags().Int("target", -1, "schema version to migrate to (-1 for latest)")
	cmd.Flags().String("migrations-dir", "", "directory of {version}_{description}.sql files (default: built-in schema)")
	return cmd
}
