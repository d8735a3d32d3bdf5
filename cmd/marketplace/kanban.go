package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"family-booking/internal/models"
	"family-booking/pkg/realtime"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func kanbanCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "kanban",
		Short: "Print the admin board of requests grouped by status",
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

			refresh := func() error {
				reqs, _, err := a.requests.ListRequests(ctx, models.RequestFilter{}, 1, limit)
				if err != nil {
					return err
				}
				renderBoard(os.Stdout, reqs, time.Now())
				return nil
			}
			if err := refresh(); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchBoard(ctx, a.mqtt, interval, refresh)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "redraw on every change event and on a timer")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "polling interval in watch mode")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum number of requests to load")
	return cmd
}

// watchBoard redraws on change events when a broker is configured and on
// every tick otherwise.
func watchBoard(ctx context.Context, sub *realtime.MQTT, interval time.Duration, refresh func() error) error {
	changed := make(chan struct{}, 1)
	if sub != nil {
		go func() {
			err := sub.Subscribe(ctx, func(realtime.Change) {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			if err != nil {
				logger.WithError(err).Warn("change feed unavailable, polling only")
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-changed:
		}
		if err := refresh(); err != nil {
			logger.WithError(err).Warn("refresh board")
		}
	}
}

// renderBoard writes one column per status, cards ordered as loaded.
func renderBoard(w io.Writer, reqs []*models.ServiceRequest, now time.Time) {
	columns := make(map[models.RequestStatus][]string, len(models.AllStatuses))
	depth := 0
	for _, r := range reqs {
		columns[r.Status] = append(columns[r.Status], card(r))
		if n := len(columns[r.Status]); n > depth {
			depth = n
		}
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Requests at %s", now.Format("2006-01-02 15:04"))
	header := table.Row{}
	footer := table.Row{}
	for _, st := range models.AllStatuses {
		header = append(header, string(st))
		footer = append(footer, len(columns[st]))
	}
	tw.AppendHeader(header)
	for i := 0; i < depth; i++ {
		row := table.Row{}
		for _, st := range models.AllStatuses {
			cell := ""
			if i < len(columns[st]) {
				cell = columns[st][i]
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.AppendFooter(footer)
	tw.Style().Format.Header = text.FormatUpper
	tw.Render()
}

func card(r *models.ServiceRequest) string {
	c := fmt.Sprintf("%s %s\n%s", shortID(r.ID), r.ServiceType, r.Location)
	if r.AssignedProviderID != nil {
		c += "\n-> " + shortID(*r.AssignedProviderID)
	}
	return c
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
