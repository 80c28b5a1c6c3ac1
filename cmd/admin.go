/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/intakedesk/apiserver/config"
	"github.com/intakedesk/apiserver/internal/db"
	"github.com/intakedesk/apiserver/internal/services"
	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/types"
	"github.com/spf13/cobra"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

// adminCmd groups account administration commands.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminEmail == "" || adminPassword == "" {
			return errors.New("--email and --password are required")
		}

		cfg := config.LoadConfig()
		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn))
		user, created, err := users.EnsureAdmin(cmd.Context(), adminEmail, adminName, adminPassword)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("an account for %s already exists with role %s", user.Email, user.Role)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Email, user.ID)
		return nil
	},
}

// roleCmd builds a subcommand that sets the role of the account given by
// --email.
func roleCmd(use, short string, role types.Role) *cobra.Command {
	var email string
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			cfg := config.LoadConfig()
			conn, err := db.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			users := services.NewUserService(store.NewUserRepository(conn))
			user, err := users.SetRole(cmd.Context(), email, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d) now has role %s\n", user.Email, user.ID, user.Role)
			return nil
		},
	}
	c.Flags().StringVar(&email, "email", "", "account email")
	return c
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)
	adminCmd.AddCommand(roleCmd("promote", "Grant the admin role to an account", types.RoleAdmin))
	adminCmd.AddCommand(roleCmd("demote", "Revoke the admin role from an account", types.RoleUser))

	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "admin email")
	adminCreateCmd.Flags().StringVar(&adminName, "name", "Administrator", "display name")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "admin password")
}
