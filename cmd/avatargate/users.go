package main

import (
	"fmt"

	"github.com/avatargate/avatargate/internal/account"
	"github.com/avatargate/avatargate/internal/store"
	"github.com/spf13/cobra"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts",
	}

	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersListCommand(ctx))

	return usersCmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var reg account.Registration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.ConfirmPassword = reg.Password
			return ctx.withStore(func(st *store.SQLiteStore) error {
				cfg := ctx.configValue()
				u, err := account.New(st, cfg.SessionTTL).Register(cmd.Context(), reg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", u.Username, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reg.Username, "username", "", "Login name")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Password (at least 8 characters)")
	for _, name := range []string{"username", "first-name", "last-name", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.SQLiteStore) error {
				users, err := st.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(out, "No users")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{
						fmt.Sprintf("%d", u.ID),
						u.Username,
						u.FirstName + " " + u.LastName,
						u.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Username", "Name", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
