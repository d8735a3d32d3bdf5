package requests

import (
	"net/http"

	"family-booking/internal/httpx"
	"family-booking/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for service requests.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new request handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// bind decodes and validates the body into v. When ok is false the error
// response has already been written.
func (h *Handler) bind(c echo.Context, v interface{}) (ok bool, err error) {
	if err := c.Bind(v); err != nil {
		return false, c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(v); err != nil {
		return false, c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}
	return true, nil
}

func (h *Handler) CreateRequest(c echo.Context) error {
	actor := httpx.Actor(c)

	var req models.CreateServiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	created, err := h.svc.CreateRequest(c.Request().Context(), actor.ID, req)
	if err != nil {
		return httpx.Error(c, "Handler.CreateRequest", err, "Failed to create request")
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListMine(c echo.Context) error {
	page, limit := httpx.Page(c, 10)
	list, total, err := h.svc.ListMine(c.Request().Context(), httpx.Actor(c).ID, page, limit)
	if err != nil {
		return httpx.Error(c, "Handler.ListMine", err, "Failed to retrieve requests")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"requests": list, "total": total})
}

func (h *Handler) ListRequests(c echo.Context) error {
	page, limit := httpx.Page(c, 20)

	filter := models.RequestFilter{
		ServiceType: c.QueryParam("service_type"),
		ProviderID:  c.QueryParam("provider_id"),
		ClientID:    c.QueryParam("client_id"),
	}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := models.ParseRequestStatus(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		}
		filter.Status = &st
	}

	list, total, err := h.svc.ListRequests(c.Request().Context(), filter, page, limit)
	if err != nil {
		return httpx.Error(c, "Handler.ListRequests", err, "Failed to retrieve requests")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"requests": list, "total": total})
}

func (h *Handler) GetRequest(c echo.Context) error {
	req, err := h.svc.GetRequest(c.Request().Context(), c.Param("id"), httpx.Actor(c))
	if err != nil {
		return httpx.Error(c, "Handler.GetRequest", err, "Failed to retrieve request")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) ListEvents(c echo.Context) error {
	events, err := h.svc.ListEvents(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Error(c, "Handler.ListEvents", err, "Failed to retrieve history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) Confirm(c echo.Context) error {
	var body models.ConfirmRequest
	if ok, err := h.bind(c, &body); !ok {
		return err
	}
	req, err := h.svc.Confirm(c.Request().Context(), c.Param("id"), httpx.Actor(c), body)
	if err != nil {
		return httpx.Error(c, "Handler.Confirm", err, "Failed to confirm request")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Cancel(c echo.Context) error {
	req, err := h.svc.Cancel(c.Request().Context(), c.Param("id"), httpx.Actor(c))
	if err != nil {
		return httpx.Error(c, "Handler.Cancel", err, "Failed to cancel request")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Dispute(c echo.Context) error {
	var body models.DisputeRequest
	if ok, err := h.bind(c, &body); !ok {
		return err
	}
	req, err := h.svc.Dispute(c.Request().Context(), c.Param("id"), httpx.Actor(c), body)
	if err != nil {
		return httpx.Error(c, "Handler.Dispute", err, "Failed to open dispute")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Resolve(c echo.Context) error {
	var body models.ResolveDisputeRequest
	if ok, err := h.bind(c, &body); !ok {
		return err
	}
	req, err := h.svc.Resolve(c.Request().Context(), c.Param("id"), httpx.Actor(c), body)
	if err != nil {
		return httpx.Error(c, "Handler.Resolve", err, "Failed to resolve dispute")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Start(c echo.Context) error {
	req, err := h.svc.Start(c.Request().Context(), c.Param("id"), httpx.Actor(c))
	if err != nil {
		return httpx.Error(c, "Handler.Start", err, "Failed to start mission")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Complete(c echo.Context) error {
	req, err := h.svc.Complete(c.Request().Context(), c.Param("id"), httpx.Actor(c))
	if err != nil {
		return httpx.Error(c, "Handler.Complete", err, "Failed to complete mission")
	}
	return c.JSON(http.StatusOK, req)
}
