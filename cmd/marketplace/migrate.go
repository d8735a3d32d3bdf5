package main

import (
	"fmt"
	"strconv"

	"family-booking/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}
	cmd.AddCommand(
		migrateAction("up", "Apply every pending migration", func(mg *database.Migrator) error { return mg.Up() }),
		migrateAction("down", "Revert every migration", func(mg *database.Migrator) error { return mg.Down() }),
		migrateStepsCmd(),
		migrateVersionCmd(),
		migrateForceCmd(),
	)
	return cmd
}

func withMigrator(fn func(mg *database.Migrator) error) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	mg, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}

func migrateAction(use, short string, fn func(mg *database.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := withMigrator(fn); err != nil {
				return err
			}
			logger.WithField("action", use).Info("migration finished")
			return nil
		},
	}
}

func migrateStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or revert when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return withMigrator(func(mg *database.Migrator) error { return mg.Steps(n) })
		},
	}
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *database.Migrator) error {
				v, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
				return nil
			})
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrator(func(mg *database.Migrator) error { return mg.Force(v) })
		},
	}
}
