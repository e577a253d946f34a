package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

type pendingStep struct {
	Version     int    `yaml:"version"`
	Description string `yaml:"description,omitempty"`
	Checksum    string `yaml:"checksum"`
}

type statusView struct {
	Store          string        `yaml:"store"`
	Path           string        `yaml:"path"`
	CurrentVersion int           `yaml:"current_version"`
	LatestVersion  int           `yaml:"latest_version"`
	UpToDate       bool          `yaml:"up_to_date"`
	Pending        []pendingStep `yaml:"pending"`
}

func newStatusCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored schema version and pending steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			registry, err := a.registry()
			if err != nil {
				return err
			}
			handle, err := a.manager.Open(ctx, a.cfg.Store, a.target(registry))
			if err != nil {
				return err
			}

			status, err := migration.NewRunner(a.logger).Status(ctx, handle, registry)
			if err != nil {
				return err
			}

			view := statusView{
				Store:          status.Store,
				Path:           handle.Path(),
				CurrentVersion: status.CurrentVersion,
				LatestVersion:  status.LatestVersion,
				UpToDate:       status.UpToDate(),
				Pending:        make([]pendingStep, 0, len(status.Pending)),
			}
			for _, step := range status.Pending {
				view.Pending = append(view.Pending, pendingStep{
					Version:     step.Version,
					Description: step.Description,
					Checksum:    step.Checksum(),
				})
			}

			switch strings.ToLower(output) {
			case "yaml":
				return writeYAML(a.stdout, view)
			case "text":
				return writeStatusText(a.stdout, view)
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", `output format ("text", "yaml")`)
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeStatusText(w io.Writer, view statusView) error {
	fmt.Fprintf(w, "store:    %s\n", view.Store)
	fmt.Fprintf(w, "path:     %s\n", view.Path)
	fmt.Fprintf(w, "version:  %d (latest %d)\n", view.CurrentVersion, view.LatestVersion)
	if view.UpToDate {
		_, err := fmt.Fprintln(w, "status:   up to date")
		return err
	}
	fmt.Fprintf(w, "status:   %d pending step(s)\n", len(view.Pending))
	for _, step := range view.Pending {
		fmt.Fprintf(w, "  %4d  %s\n", step.Version, step.Description)
	}
	return nil
}
