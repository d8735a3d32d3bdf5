// Package httpx holds the echo helpers shared by every module handler.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"family-booking/internal/models"

	"github.com/labstack/echo/v4"
)

// Context keys set by the auth middleware.
const (
	KeyUserID     = "userID"
	KeyUserRole   = "userRole"
	KeyProviderID = "providerID"
)

// Actor returns the authenticated caller.
func Actor(c echo.Context) models.Actor {
	a := models.Actor{}
	a.ID, _ = c.Get(KeyUserID).(string)
	a.Role, _ = c.Get(KeyUserRole).(string)
	if pid, ok := c.Get(KeyProviderID).(string); ok && pid != "" {
		a.ProviderID = &pid
	}
	return a
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrNotOffered):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrIneligibleProvider), errors.Is(err, models.ErrNoEligibleProviders):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrMissionAlreadyAssigned), errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrStatusConflict), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrTransientStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error answers with the ErrorResponse for err. Unexpected errors are logged
// under op and reported with the generic message.
func Error(c echo.Context, op string, err error, message string) error {
	status := StatusFor(err)
	resp := models.ErrorResponse{Message: message, Code: models.ErrorCode(err)}
	switch status {
	case http.StatusInternalServerError:
		c.Logger().Error(op+": ", err)
	case http.StatusServiceUnavailable:
		c.Logger().Warn(op+": ", err)
		resp.Retryable = true
		resp.Message = "Service temporarily unavailable, please retry"
	default:
		resp.Message = err.Error()
	}
	return c.JSON(status, resp)
}

// Page reads page and limit query parameters.
func Page(c echo.Context, defaultLimit int) (page, limit int) {
	page, limit = 1, defaultLimit
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	return page, limit
}
