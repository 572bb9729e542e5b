package ai

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/ai/generate", h.Generate)
	api.GET("/ai/status", h.GetStatus)
	api.GET("/ai/providers/health", h.ListProviderHealth)
	api.POST("/ai/admin/reset-breakers", h.ResetBreakers)
	api.POST("/ai/admin/clear-cache", h.ClearCache)
}

func (h *Handler) Generate(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.orch.Execute(c.Request().Context(), req)
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.orch.Status(c.Request().Context()))
}

func (h *Handler) ListProviderHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.orch.ProbeProviders(c.Request().Context()))
}

func (h *Handler) ResetBreakers(c echo.Context) error {
	h.orch.ResetBreakers()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClearCache(c echo.Context) error {
	if err := h.orch.ClearCache(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// HTTPError maps orchestrator error kinds onto HTTP statuses. Rate-limit
// rejections carry a Retry-After header rounded up to whole seconds. Domain
// handlers that call Execute use the same mapping.
func HTTPError(c echo.Context, err error) error {
	switch KindOf(err) {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindRateLimitExceeded:
		var rle *RateLimitError
		if errors.As(err, &rle) {
			secs := int(math.Ceil(rle.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(secs))
		}
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case KindServiceUnavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case KindCancelled:
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
