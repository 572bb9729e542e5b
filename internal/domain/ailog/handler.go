package ailog

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carescribe/carescribe/pkg/pagination"
)

var searchFilters = []string{"caller_id", "task_type", "provider", "error_kind", "cached"}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ai/calls", h.ListCalls)
	api.GET("/ai/calls/:id", h.GetCall)
	api.POST("/ai/admin/purge-calls", h.PurgeCalls)
}

func (h *Handler) ListCalls(c echo.Context) error {
	pg := pagination.FromContext(c)

	params := map[string]string{}
	for _, name := range searchFilters {
		if v := c.QueryParam(name); v != "" {
			params[name] = v
		}
	}

	items, total, err := h.svc.SearchCalls(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetCall(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetCall(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "call record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

type purgeRequest struct {
	RetainDays int `json:"retain_days"`
}

func (h *Handler) PurgeCalls(c echo.Context) error {
	var req purgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	purged, err := h.svc.PurgeCalls(c.Request().Context(), req.RetainDays)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"purged":      purged,
		"retain_days": req.RetainDays,
	})
}
