package nursing

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
	api.POST("/nursing/assessments", h.CreateDraft)
	api.GET("/nursing/assessments", h.ListAssessments)
	api.GET("/nursing/assessments/:id", h.GetAssessment)
	api.POST("/nursing/assessments/:id/finalize", h.Finalize)
}

func (h *Handler) CreateDraft(c echo.Context) error {
	var req DraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Observations = middleware.SanitizeString(req.Observations)

	a, err := h.svc.CreateDraft(c.Request().Context(), req)
	if err != nil {
		return draftError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAssessment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	pg := pagination.FromContext(c)

	params := map[string]string{}
	for _, name := range []string{"patient_id", "author_id", "status"} {
		if v := c.QueryParam(name); v != "" {
			params[name] = v
		}
	}

	items, total, err := h.svc.SearchAssessments(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type finalizeRequest struct {
	Draft string `json:"draft"`
}

func (h *Handler) Finalize(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := h.svc.Finalize(c.Request().Context(), id, middleware.SanitizeString(req.Draft))
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

// draftError distinguishes orchestrator failures from plain input errors so
// callers see 429/503 semantics instead of a blanket 400.
func draftError(c echo.Context, err error) error {
	if ai.PipelineError(err) {
		return ai.HTTPError(c, err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
