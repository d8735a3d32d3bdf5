package alerts

import (
	"errors"
	"net/http"
	"strconv"

	"family-booking/internal/models"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc ServiceInterface
}

func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListOpen(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	alerts, err := h.svc.ListOpen(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Error("Handler.ListAlerts: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve alerts", Code: models.ErrorCode(err)})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (h *Handler) Acknowledge(c echo.Context) error {
	alert, err := h.svc.Acknowledge(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Alert not found", Code: "not_found"})
		}
		c.Logger().Error("Handler.AcknowledgeAlert: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to acknowledge alert", Code: models.ErrorCode(err)})
	}
	return c.JSON(http.StatusOK, alert)
}
