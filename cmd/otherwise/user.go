package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/otherwisedev/otherwise"
)

func newUserCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin accounts",
	}
	cmd.AddCommand(
		newUserAddCmd(v),
		newUserListCmd(v),
		newUserDeleteCmd(v),
	)
	return cmd
}

func newUserAddCmd(v *viper.Viper) *cobra.Command {
	var (
		name          string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an admin account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return errors.New("--password-stdin is required")
			}
			email := strings.TrimSpace(args[0])
			if err := validator.New().Var(email, "required,email"); err != nil {
				return fmt.Errorf("invalid email %q", email)
			}

			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := otherwise.HashPassword(strings.TrimSpace(string(raw)))
			if err != nil {
				return err
			}

			store, err := openStore(v)
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.CreateUser(cmd.Context(), email, name, hash)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created admin user %s (%d)\n", user.Email, user.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newUserListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List admin accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(v)
			if err != nil {
				return err
			}
			defer store.Close()

			users, err := store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				_, err := fmt.Fprintln(out, "no admin users")
				return err
			}
			fmt.Fprintln(out, "EMAIL\tNAME\tCREATED")
			for _, u := range users {
				fmt.Fprintf(out, "%s\t%s\t%s\n", u.Email, u.Name, u.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newUserDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <email>",
		Short: "Delete an admin account and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(v)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteUser(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, otherwise.ErrNotFound) {
					return fmt.Errorf("no admin user %q", args[0])
				}
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted admin user %s\n", args[0])
			return err
		},
	}
}
