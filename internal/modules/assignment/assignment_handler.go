package assignment

import (
	"errors"
	"net/http"

	"family-booking/internal/httpx"
	"family-booking/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler 聚合了分配模块所有 HTTP 接口：管理后台的手动/自动/批量分配，
// 以及 provider 的接单与拒单。
// 响应体始终是已提交的数据，错误统一为 models.ErrorResponse。
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler 构造函数，注入 Service。
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// RegisterRoutes 在管理员与 provider 路由组中挂载分配相关路由。
func (h *Handler) RegisterRoutes(admin, provider *echo.Group) {
	// 1) 管理后台
	admin.GET("/requests/:id/candidates", h.Candidates)
	admin.GET("/requests/:id/mission", h.GetMission)
	admin.POST("/requests/:id/assign", h.AssignManually)
	admin.POST("/requests/:id/auto-assign", h.AutoAssign)
	admin.POST("/requests/bulk-assign", h.BulkAssign)

	// 2) provider 接单 / 拒单
	provider.POST("/missions/:id/accept", h.AcceptMission)
	provider.POST("/missions/:id/decline", h.DeclineMission)
}

// ---- 1) 管理后台 ----

// Candidates 返回手动分配时的候选列表，位置不匹配的 provider 带 location_match=false。
func (h *Handler) Candidates(c echo.Context) error {
	list, err := h.svc.Candidates(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Error(c, "Handler.Candidates", err, "Failed to retrieve candidates")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"candidates": list})
}

func (h *Handler) GetMission(c echo.Context) error {
	m, err := h.svc.GetMission(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Error(c, "Handler.GetMission", err, "Failed to retrieve mission")
	}
	return c.JSON(http.StatusOK, m)
}

// AssignManually 绑定管理员选择的 provider。
func (h *Handler) AssignManually(c echo.Context) error {
	var req models.ManualAssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	res, err := h.svc.AssignManually(c.Request().Context(), c.Param("id"), req.ProviderID, httpx.Actor(c))
	if err != nil {
		return h.failure(c, "Handler.AssignManually", c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, res)
}

// AutoAssign 启动或重新启动自动匹配，返回 {success, notifications_sent, error?}。
func (h *Handler) AutoAssign(c echo.Context) error {
	res, err := h.svc.AutoAssign(c.Request().Context(), c.Param("id"))
	if err != nil {
		// 无合格 provider 时请求已转为 unmatched，返回实际结果
		if res != nil && errors.Is(err, models.ErrNoEligibleProviders) {
			return c.JSON(httpx.StatusFor(err), res)
		}
		return h.failure(c, "Handler.AutoAssign", c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, res)
}

// BulkAssign 对每个请求独立自动匹配，始终返回 200 与逐项结果。
func (h *Handler) BulkAssign(c echo.Context) error {
	var req models.BulkAssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	results := h.svc.BulkAssign(c.Request().Context(), req.RequestIDs)
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results})
}

// failure 以 AssignmentResult 形式返回失败，服务端异常仍走统一错误响应。
func (h *Handler) failure(c echo.Context, op, requestID string, err error) error {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		return httpx.Error(c, op, err, "Assignment failed")
	}
	return c.JSON(status, models.AssignmentResult{
		RequestID: requestID,
		Success:   false,
		Error:     err.Error(),
		Code:      models.ErrorCode(err),
	})
}

// ---- 2) provider 接单 / 拒单 ----

func (h *Handler) AcceptMission(c echo.Context) error {
	req, err := h.svc.AcceptMission(c.Request().Context(), c.Param("id"), httpx.Actor(c))
	if err != nil {
		return httpx.Error(c, "Handler.AcceptMission", err, "Failed to accept mission")
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) DeclineMission(c echo.Context) error {
	m, err := h.svc.DeclineMission(c.Request().Context(), c.Param("id"), httpx.Actor(c))
	if err != nil {
		return httpx.Error(c, "Handler.DeclineMission", err, "Failed to decline mission")
	}
	return c.JSON(http.StatusOK, m)
}
