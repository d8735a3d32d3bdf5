package main

import (
	"context"
	"fmt"

	"family-booking/internal/database"
	"family-booking/internal/models"
	"family-booking/internal/modules/auth"

	"github.com/spf13/cobra"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage login accounts"}
	cmd.AddCommand(accountCreateCmd(), accountTokenCmd(), hashPasswordCmd())
	return cmd
}

// withAuth opens the store and hands fn the account repository and service.
func withAuth(ctx context.Context, fn func(repo *auth.Repository, svc *auth.Service) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	repo := auth.NewRepository(pool)
	return fn(repo, auth.NewService(repo, cfg.JWTSecret, cfg.JWTTTL, logger))
}

func accountCreateCmd() *cobra.Command {
	var email, password, role, providerID string
	var printToken bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin, client or provider account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(_ *auth.Repository, svc *auth.Service) error {
				var pid *string
				if providerID != "" {
					pid = &providerID
				}
				account, err := svc.CreateAccount(cmd.Context(), email, password, role, pid)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s\n", account.Role, account.ID)
				if printToken {
					token, err := svc.IssueToken(account)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), token)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters")
	cmd.Flags().StringVar(&role, "role", models.RoleClient, "admin, client or provider")
	cmd.Flags().StringVar(&providerID, "provider-id", "", "directory id of the provider (provider role only)")
	cmd.Flags().BoolVar(&printToken, "token", false, "print an access token for the new account")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func accountTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token EMAIL",
		Short: "Issue an access token for an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(repo *auth.Repository, svc *auth.Service) error {
				account, err := repo.FindByEmail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				token, err := svc.IssueToken(account)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print the bcrypt hash of a password for seeding accounts by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
