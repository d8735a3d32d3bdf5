// Package server assembles the echo router: middleware, role groups and the
// route table of every module.
package server

import (
	"context"
	"net/http"
	"time"

	"family-booking/internal/models"
	"family-booking/internal/modules/alerts"
	"family-booking/internal/modules/assignment"
	"family-booking/internal/modules/auth"
	"family-booking/internal/modules/providers"
	"family-booking/internal/modules/requests"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// Handlers are the module handlers mounted on the router.
type Handlers struct {
	Auth       *auth.Handler
	Requests   *requests.Handler
	Assignment *assignment.Handler
	Providers  *providers.Handler
	Alerts     *alerts.Handler
}

type Options struct {
	JWTSecret    string
	ClientOrigin string
	Log          *logrus.Entry
	// Ping reports store health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// New builds the router.
func New(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(opts.Log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{opts.ClientOrigin},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", health(opts.Ping))

	api := e.Group("/api")
	h.Auth.RegisterRoutes(api.Group("/auth"))

	jwt := auth.JWT(opts.JWTSecret)
	client := auth.RequireRole(models.RoleClient)

	// client surface
	req := api.Group("/requests", jwt)
	req.POST("", h.Requests.CreateRequest, client)
	req.GET("/mine", h.Requests.ListMine, client)
	req.GET("/:id", h.Requests.GetRequest, auth.RequireRole(models.RoleClient, models.RoleAdmin, models.RoleProvider))
	req.POST("/:id/confirm", h.Requests.Confirm, client)
	req.POST("/:id/cancel", h.Requests.Cancel, auth.RequireRole(models.RoleClient, models.RoleAdmin))
	req.POST("/:id/dispute", h.Requests.Dispute, auth.RequireRole(models.RoleClient, models.RoleProvider))

	provider := api.Group("/provider", jwt, auth.RequireRole(models.RoleProvider))
	provider.POST("/missions/:id/start", h.Requests.Start)
	provider.POST("/missions/:id/complete", h.Requests.Complete)

	admin := api.Group("/admin", jwt, auth.RequireRole(models.RoleAdmin))
	admin.GET("/requests", h.Requests.ListRequests)
	admin.GET("/requests/:id/events", h.Requests.ListEvents)
	admin.POST("/requests/:id/resolve", h.Requests.Resolve)
	admin.GET("/providers", h.Providers.ListProviders)
	admin.PUT("/providers/:id/status", h.Providers.UpdateStatus)
	admin.GET("/alerts", h.Alerts.ListOpen)
	admin.POST("/alerts/:id/ack", h.Alerts.Acknowledge)

	h.Assignment.RegisterRoutes(admin, provider)
	return e
}

func health(ping func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RequestLogger writes one logrus entry per request.
func RequestLogger(log *logrus.Entry) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
