package main

import (
	"context"
	"fmt"

	"family-booking/internal/config"
	"family-booking/internal/database"
	"family-booking/internal/modules/alerts"
	"family-booking/internal/modules/assignment"
	"family-booking/internal/modules/auth"
	"family-booking/internal/modules/providers"
	"family-booking/internal/modules/requests"
	"family-booking/internal/notifications"
	"family-booking/internal/server"
	"family-booking/pkg/matching"
	"family-booking/pkg/payment"
	"family-booking/pkg/realtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// app is the assembled dependency graph shared by the subcommands.
type app struct {
	pool   *pgxpool.Pool
	direct *notifications.Direct
	queue  *notifications.Queue
	mqtt   *realtime.MQTT

	auth       *auth.Service
	requests   *requests.Service
	assignment *assignment.Service
	providers  *providers.Service
	alerts     *alerts.Service
}

type buildOptions struct {
	// queued routes notifications through the worker queue instead of
	// delivering them inline.
	queued bool
}

func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Entry, opts buildOptions) (*app, error) {
	pool, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	a := &app{pool: pool}

	alertRepo := alerts.NewRepository(pool)
	a.alerts = alerts.NewService(alertRepo, log)

	providerRepo := providers.NewRepository(pool)
	a.providers = providers.NewService(providerRepo, log)

	sender, err := newSender(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.direct = notifications.NewDirect(sender, a.alerts, log)
	var dispatcher notifications.Dispatcher = a.direct
	if opts.queued {
		a.queue = notifications.NewQueue(a.direct, cfg.NotifyWorkers, cfg.NotifyQueueSize)
		dispatcher = a.queue
	}

	var publisher realtime.Publisher = realtime.Noop{}
	if cfg.MQTTBrokerURL != "" {
		m, err := realtime.Dial(cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTTopicPrefix, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.mqtt = m
		publisher = m
	}
	announcer := requests.NewAnnouncer(dispatcher, publisher, cfg.AdminEmail, log)

	var payments payment.ServiceInterface
	if cfg.StripeAPIKey != "" {
		payments = payment.NewStripeService(cfg.StripeAPIKey)
	} else {
		log.Warn("STRIPE_API_KEY not set, payments run offline")
		payments = payment.NewOfflineService(log)
	}

	a.requests = requests.NewService(requests.NewRepository(pool), providerRepo, nil, payments, announcer,
		requests.Options{AutoAssignOnCreate: cfg.Assignment.AutoAssignOnCreate, Currency: cfg.PaymentCurrency}, log)

	matcher := matching.NewClient(ctx, matching.Options{
		BaseURL:      cfg.MatchingURL,
		APIKey:       cfg.MatchingAPIKey,
		TokenURL:     cfg.MatchingTokenURL,
		ClientID:     cfg.MatchingClientID,
		ClientSecret: cfg.MatchingClientSecret,
		Timeout:      cfg.MatchingTimeout,
	})
	a.assignment = assignment.NewService(assignment.NewRepository(pool), matcher, announcer, cfg.Assignment, log)
	a.requests.SetAssigner(a.assignment)

	a.auth = auth.NewService(auth.NewRepository(pool), cfg.JWTSecret, cfg.JWTTTL, log)
	return a, nil
}

func newSender(ctx context.Context, cfg *config.Config, log *logrus.Entry) (notifications.Sender, error) {
	if cfg.SESFromAddress == "" {
		log.Warn("SES_FROM_ADDRESS not set, notifications are logged only")
		return notifications.NewLogSender(log), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, err
	}
	return notifications.NewSESSender(sesv2.NewFromConfig(awsCfg), renderer, cfg.SESFromAddress), nil
}

func (a *app) handlers() server.Handlers {
	return server.Handlers{
		Auth:       auth.NewHandler(a.auth),
		Requests:   requests.NewHandler(a.requests),
		Assignment: assignment.NewHandler(a.assignment),
		Providers:  providers.NewHandler(a.providers),
		Alerts:     alerts.NewHandler(a.alerts),
	}
}

func (a *app) close() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
