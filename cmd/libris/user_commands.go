package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"libris/internal/api"
	"libris/internal/users"
)

func newUserCommand(ctx *commandContext) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage requester and admin identities",
	}

	userCmd.AddCommand(newUserAddCommand(ctx))
	userCmd.AddCommand(newUserListCommand(ctx))
	userCmd.AddCommand(newUserRemoveCommand(ctx))

	return userCmd
}

func newUserAddCommand(ctx *commandContext) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				created, err := s.users.Create(cmd.Context(), args[0], role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", created.Username, created.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", users.RoleUser, "Role (user or admin)")
	return cmd
}

func newUserListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				records, err := s.users.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.UserListResponse{Users: api.FromUsers(records)})
				}

				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No users found")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, user := range records {
					rows = append(rows, []string{
						strconv.FormatInt(user.ID, 10),
						user.Username,
						user.Role,
						api.FormatTime(user.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Username", "Role", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newUserRemoveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete a user and everything they own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				user, err := s.users.GetByUsername(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if user == nil {
					return fmt.Errorf("unknown user %q", args[0])
				}
				removed, err := s.users.Delete(cmd.Context(), user.ID)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("user %q was not removed", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed user %s\n", user.Username)
				return nil
			})
		},
	}

	return cmd
}
