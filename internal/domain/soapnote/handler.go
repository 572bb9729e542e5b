package soapnote

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
	api.POST("/soap-notes", h.CreateNote)
	api.GET("/soap-notes", h.ListNotes)
	api.GET("/soap-notes/:id", h.GetNote)
}

func (h *Handler) CreateNote(c echo.Context) error {
	var req NoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Transcript = middleware.SanitizeString(req.Transcript)

	n, err := h.svc.CreateFromTranscript(c.Request().Context(), req)
	if err != nil {
		if ai.PipelineError(err) {
			return ai.HTTPError(c, err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, err := h.svc.GetNote(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "soap note not found")
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) ListNotes(c echo.Context) error {
	pg := pagination.FromContext(c)

	params := map[string]string{}
	for _, name := range []string{"patient_id", "encounter_id", "author_id"} {
		if v := c.QueryParam(name); v != "" {
			params[name] = v
		}
	}

	items, total, err := h.svc.SearchNotes(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
