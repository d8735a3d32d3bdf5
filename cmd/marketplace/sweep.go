package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sweepCmd runs one timeout sweep and one reminder pass, for cron-style
// deployments that do not keep serve running.
func sweepCmd() *cobra.Command {
	var reminders bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Escalate overdue missions once and send due reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger, buildOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			expired, err := a.assignment.ExpireOverdue(ctx)
			if err != nil {
				return err
			}
			sent := 0
			if reminders {
				if sent, err = a.requests.SendReminders(ctx); err != nil {
					return err
				}
			}
			logger.WithField("expired", expired).WithField("reminders", sent).Info("sweep finished")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reminders, "reminders", true, "also remind confirmed bookings scheduled for tomorrow")
	return cmd
}

func remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Send booking reminders for confirmed requests scheduled tomorrow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger, buildOptions{})
			if err != nil {
				return err
			}
			defer a.close()
			n, err := a.requests.SendReminders(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d reminders sent\n", n)
			return nil
		},
	}
}
