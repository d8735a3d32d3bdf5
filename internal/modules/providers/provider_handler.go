package providers

import (
	"errors"
	"net/http"
	"strconv"

	"family-booking/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles admin HTTP requests for providers.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new provider handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) ListProviders(c echo.Context) error {
	page := 1
	limit := 20
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	var status *models.ProviderStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := models.ProviderStatus(raw)
		status = &st
	}

	providers, total, err := h.svc.ListProviders(c.Request().Context(), status, page, limit)
	if err != nil {
		c.Logger().Error("Handler.ListProviders: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve providers", Code: models.ErrorCode(err)})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"providers": providers, "total": total})
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req models.ProviderStatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	p, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Provider not found", Code: "not_found"})
		}
		c.Logger().Error("Handler.UpdateProviderStatus: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to update provider", Code: models.ErrorCode(err)})
	}
	return c.JSON(http.StatusOK, p)
}
