package reporting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// MeasureDefinition defines an operational measure with its SQL query.
// Parameters are integer-valued (day counts) and bound positionally as
// $1, $2, ... in declaration order.
type MeasureDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SQL         string         `json:"sql"`
	Parameters  []MeasureParam `json:"parameters,omitempty"`
}

// MeasureParam declares a query parameter with its default value.
type MeasureParam struct {
	Name    string `json:"name"`
	Default int    `json:"default"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]int           `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available operational measures over the
// AI call log and the generated-document tables.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "call-volume-by-provider",
		Name:        "Call Volume by Provider",
		Description: "AI calls per provider with failure and fallback counts",
		SQL: `SELECT provider, COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN error_kind <> '' THEN 1 ELSE 0 END), 0) AS failures,
			COALESCE(SUM(CASE WHEN used_fallback THEN 1 ELSE 0 END), 0) AS fallbacks
			FROM ai_call_log GROUP BY provider ORDER BY total DESC`,
	},
	{
		ID:          "call-volume-by-task",
		Name:        "Call Volume by Task Type",
		Description: "AI calls grouped by documentation task type",
		SQL: `SELECT task_type, COUNT(*) AS total
			FROM ai_call_log GROUP BY task_type ORDER BY total DESC`,
	},
	{
		ID:          "error-breakdown",
		Name:        "Error Breakdown",
		Description: "Failed AI calls grouped by error kind",
		SQL: `SELECT error_kind, COUNT(*) AS total
			FROM ai_call_log WHERE error_kind <> ''
			GROUP BY error_kind ORDER BY total DESC`,
	},
	{
		ID:          "cache-hit-ratio",
		Name:        "Cache Hit Ratio",
		Description: "Share of AI calls answered from the response cache",
		SQL: `SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cache_hits
			FROM ai_call_log`,
	},
	{
		ID:          "latency-by-provider",
		Name:        "Latency by Provider",
		Description: "Average and maximum latency of non-cached AI calls per provider",
		SQL: `SELECT provider, ROUND(AVG(latency_ms)) AS avg_latency_ms, MAX(latency_ms) AS max_latency_ms
			FROM ai_call_log WHERE NOT cached AND error_kind = ''
			GROUP BY provider ORDER BY avg_latency_ms`,
	},
	{
		ID:          "daily-call-volume",
		Name:        "Daily Call Volume",
		Description: "AI calls per day over the requested window",
		SQL: `SELECT date_trunc('day', created_at)::date AS day, COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN error_kind <> '' THEN 1 ELSE 0 END), 0) AS failures
			FROM ai_call_log
			WHERE created_at >= NOW() - ($1::int * INTERVAL '1 day')
			GROUP BY 1 ORDER BY 1 DESC`,
		Parameters: []MeasureParam{{Name: "days", Default: 7}},
	},
	{
		ID:          "document-volume",
		Name:        "Document Volume",
		Description: "Stored documents by type",
		SQL: `SELECT 'nursing_assessment' AS document_type, COUNT(*) AS total FROM nursing_assessments
			UNION ALL SELECT 'soap_note', COUNT(*) FROM soap_notes
			UNION ALL SELECT 'risk_report', COUNT(*) FROM risk_reports
			ORDER BY total DESC`,
	},
	{
		ID:          "assessment-status",
		Name:        "Assessment Status",
		Description: "Nursing assessments grouped by draft/final status",
		SQL: `SELECT status, COUNT(*) AS total
			FROM nursing_assessments GROUP BY status ORDER BY total DESC`,
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reports := api.Group("/reports")
	reports.GET("/measures", h.ListMeasures)
	reports.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	args, used, err := measureArgs(measure, c.QueryParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL, args...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	report := MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Parameters:  used,
	}

	return c.JSON(http.StatusOK, report)
}

// measureArgs resolves a measure's declared parameters from the query string,
// falling back to defaults, and returns them in positional order.
func measureArgs(m *MeasureDefinition, query func(string) string) ([]interface{}, map[string]int, error) {
	if len(m.Parameters) == 0 {
		return nil, nil, nil
	}

	args := make([]interface{}, 0, len(m.Parameters))
	used := make(map[string]int, len(m.Parameters))
	for _, p := range m.Parameters {
		v := p.Default
		if raw := query(p.Name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("parameter %s must be an integer", p.Name)
			}
			v = n
		}
		if v <= 0 {
			return nil, nil, fmt.Errorf("parameter %s must be positive", p.Name)
		}
		args = append(args, v)
		used[p.Name] = v
	}
	return args, used, nil
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := h.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
