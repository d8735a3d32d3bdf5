package main

import (
	"fmt"
	"io"

	"family-booking/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func alertsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List open admin alerts",
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
			list, err := a.alerts.ListOpen(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderAlerts(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.AddCommand(alertsAckCmd())
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of alerts")
	return cmd
}

func alertsAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack ID",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger, buildOptions{})
			if err != nil {
				return err
			}
			defer a.close()
			alert, err := a.alerts.Acknowledge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s (%s)\n", alert.ID, alert.Kind)
			return nil
		},
	}
}

func renderAlerts(w io.Writer, list []*models.AdminAlert) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Kind", "Request", "Message", "Raised"})
	for _, al := range list {
		req := ""
		if al.RequestID != nil {
			req = shortID(*al.RequestID)
		}
		tw.AppendRow(table.Row{al.ID, al.Kind, req, al.Message, al.CreatedAt.Format("2006-01-02 15:04")})
	}
	tw.AppendFooter(table.Row{"", "", "", "open", len(list)})
	tw.Render()
}
