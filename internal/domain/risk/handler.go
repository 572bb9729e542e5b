package risk

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carescribe/carescribe/internal/platform/ai"
	"github.com/carescribe/carescribe/internal/platform/middleware"
	"github.com/carescribe/carescribe/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/risk-reports", h.CreateReport)
	api.GET("/risk-reports", h.ListReports)
	api.GET("/risk-reports/:id", h.GetReport)
}

func (h *Handler) CreateReport(c echo.Context) error {
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Factors = middleware.SanitizeString(req.Factors)

	rep, err := h.svc.CreateReport(c.Request().Context(), req)
	if err != nil {
		if ai.PipelineError(err) {
			return ai.HTTPError(c, err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rep, err := h.svc.GetReport(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "risk report not found")
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) ListReports(c echo.Context) error {
	pg := pagination.FromContext(c)

	params := map[string]string{}
	for _, name := range []string{"patient_id", "author_id"} {
		if v := c.QueryParam(name); v != "" {
			params[name] = v
		}
	}

	items, total, err := h.svc.SearchReports(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
