package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"family-booking/internal/database"
	"family-booking/internal/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the notification workers and the timeout sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrateFirst {
				if err := migrateUp(cfg.DatabaseURL); err != nil {
					return err
				}
				logger.Info("migrations applied")
			}

			a, err := buildApp(ctx, cfg, logger, buildOptions{queued: true})
			if err != nil {
				return err
			}
			defer a.close()

			e := server.New(a.handlers(), server.Options{
				JWTSecret:    cfg.JWTSecret,
				ClientOrigin: cfg.ClientOrigin,
				Log:          logger,
				Ping:         a.pool.Ping,
			})

			err = runProcesses(ctx, e, ":"+cfg.ServerPort, a.queue, func(ctx context.Context) {
				sweep(ctx, a, cfg.Assignment.SweepInterval, logger)
			}, logger)
			logger.Info("server stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

type httpServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

type worker interface {
	Run(ctx context.Context) error
}

// runProcesses runs the HTTP server, the sweeper and the notification queue
// until ctx is done. The queue keeps accepting work until the server has
// finished its in-flight requests and the sweeper has returned.
func runProcesses(ctx context.Context, srv httpServer, addr string, queue worker, sweeper func(ctx context.Context), log *logrus.Entry) error {
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer stopQueue()

	g, gctx := errgroup.WithContext(ctx)
	var producers sync.WaitGroup
	producers.Add(2)
	g.Go(func() error {
		log.WithField("addr", addr).Info("http server listening")
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer producers.Done()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer producers.Done()
		sweeper(gctx)
		return nil
	})
	g.Go(func() error {
		return queue.Run(queueCtx)
	})
	g.Go(func() error {
		producers.Wait()
		stopQueue()
		return nil
	})
	return g.Wait()
}

// sweep expires overdue missions every interval until ctx is done.
func sweep(ctx context.Context, a *app, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.assignment.ExpireOverdue(ctx)
			if err != nil {
				log.WithError(err).Error("timeout sweep failed")
				continue
			}
			if n > 0 {
				log.WithField("expired", n).Info("escalated overdue missions")
			}
		}
	}
}

func migrateUp(dsn string) error {
	mg, err := database.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}
