package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/devicestore/internal/application"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user records",
	}
	cmd.AddCommand(newUsersAddCmd(a), newUsersListCmd(a), newUsersDeleteCmd(a))
	return cmd
}

func newUsersAddCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Insert a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer session.Close(ctx)

			record, err := session.Users.AddUser(ctx, application.UserInput{Name: args[0], Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "added user %d\n", record.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

type userView struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email,omitempty"`
}

func newUsersListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			session, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer session.Close(ctx)

			users, err := session.Users.ListUsers(ctx)
			if err != nil {
				return err
			}

			views := make([]userView, 0, len(users))
			for _, u := range users {
				views = append(views, userView{ID: u.ID, Name: u.Name, Email: u.EmailOrEmpty()})
			}

			switch strings.ToLower(output) {
			case "yaml":
				return writeYAML(a.stdout, views)
			case "text":
				tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
				for _, v := range views {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", v.ID, v.Name, v.Email)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", `output format ("text", "yaml")`)
	return cmd
}

func newUsersDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a user; unknown ids are ignored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			session, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer session.Close(ctx)

			if err := session.Users.RemoveUser(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "deleted user %d\n", id)
			return nil
		},
	}
}
