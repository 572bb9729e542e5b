package openapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Generator builds an OpenAPI 3.0 document for the documentation API from a
// static route table. The table is maintained alongside the handlers that
// register the real routes.
type Generator struct {
	version string
	baseURL string
}

// NewGenerator creates a new OpenAPI document generator.
func NewGenerator(version, baseURL string) *Generator {
	return &Generator{version: version, baseURL: baseURL}
}

// paramDef describes one path or query parameter.
type paramDef struct {
	Name        string
	In          string
	Type        string
	Required    bool
	Description string
}

// routeDef describes one API operation. Paths use OpenAPI {id} placeholders
// and are relative to the /api/v1 group.
type routeDef struct {
	Method       string
	Path         string
	Summary      string
	OperationID  string
	Tag          string
	Params       []paramDef
	RequestRef   string
	ResponseRef  string
	ResponseList bool
	SuccessCode  string
	Paged        bool
}

func pathID(description string) paramDef {
	return paramDef{Name: "id", In: "path", Type: "string", Required: true, Description: description}
}

func queryFilter(name string) paramDef {
	return paramDef{Name: name, In: "query", Type: "string"}
}

var apiRoutes = []routeDef{
	{
		Method: "POST", Path: "/ai/generate",
		Summary: "Generate a document draft", OperationID: "generateDraft", Tag: "ai",
		RequestRef: "GenerateRequest", ResponseRef: "GenerateResult",
	},
	{
		Method: "GET", Path: "/ai/status",
		Summary: "Pipeline status", OperationID: "getPipelineStatus", Tag: "ai",
		ResponseRef: "PipelineStatus",
	},
	{
		Method: "GET", Path: "/ai/providers/health",
		Summary: "Probe provider health", OperationID: "listProviderHealth", Tag: "ai",
		ResponseRef: "ProviderHealth", ResponseList: true,
	},
	{
		Method: "POST", Path: "/ai/admin/reset-breakers",
		Summary: "Reset all circuit breakers", OperationID: "resetBreakers", Tag: "ai",
		SuccessCode: "204",
	},
	{
		Method: "POST", Path: "/ai/admin/clear-cache",
		Summary: "Clear the response cache", OperationID: "clearCache", Tag: "ai",
		SuccessCode: "204",
	},
	{
		Method: "GET", Path: "/ai/calls",
		Summary: "Search the AI call log", OperationID: "listCalls", Tag: "ai-calls",
		Params: []paramDef{
			queryFilter("caller_id"), queryFilter("task_type"), queryFilter("provider"),
			queryFilter("error_kind"), queryFilter("cached"),
		},
		ResponseRef: "CallLog", Paged: true,
	},
	{
		Method: "GET", Path: "/ai/calls/{id}",
		Summary: "Read one AI call record", OperationID: "getCall", Tag: "ai-calls",
		Params:      []paramDef{pathID("Call record UUID")},
		ResponseRef: "CallLog",
	},
	{
		Method: "POST", Path: "/ai/admin/purge-calls",
		Summary: "Purge call records past retention", OperationID: "purgeCalls", Tag: "ai-calls",
		RequestRef: "PurgeRequest", ResponseRef: "PurgeResult",
	},
	{
		Method: "POST", Path: "/nursing/assessments",
		Summary: "Draft a nursing assessment", OperationID: "createAssessment", Tag: "nursing",
		RequestRef: "AssessmentDraftRequest", ResponseRef: "NursingAssessment", SuccessCode: "201",
	},
	{
		Method: "GET", Path: "/nursing/assessments",
		Summary: "Search nursing assessments", OperationID: "listAssessments", Tag: "nursing",
		Params:      []paramDef{queryFilter("patient_id"), queryFilter("author_id"), queryFilter("status")},
		ResponseRef: "NursingAssessment", Paged: true,
	},
	{
		Method: "GET", Path: "/nursing/assessments/{id}",
		Summary: "Read a nursing assessment", OperationID: "getAssessment", Tag: "nursing",
		Params:      []paramDef{pathID("Assessment UUID")},
		ResponseRef: "NursingAssessment",
	},
	{
		Method: "POST", Path: "/nursing/assessments/{id}/finalize",
		Summary: "Finalize a nursing assessment", OperationID: "finalizeAssessment", Tag: "nursing",
		Params:     []paramDef{pathID("Assessment UUID")},
		RequestRef: "FinalizeRequest", ResponseRef: "NursingAssessment",
	},
	{
		Method: "POST", Path: "/soap-notes",
		Summary: "Draft a SOAP note from a transcript", OperationID: "createSoapNote", Tag: "soap-notes",
		RequestRef: "SoapNoteRequest", ResponseRef: "SoapNote", SuccessCode: "201",
	},
	{
		Method: "GET", Path: "/soap-notes",
		Summary: "Search SOAP notes", OperationID: "listSoapNotes", Tag: "soap-notes",
		Params:      []paramDef{queryFilter("patient_id"), queryFilter("encounter_id"), queryFilter("author_id")},
		ResponseRef: "SoapNote", Paged: true,
	},
	{
		Method: "GET", Path: "/soap-notes/{id}",
		Summary: "Read a SOAP note", OperationID: "getSoapNote", Tag: "soap-notes",
		Params:      []paramDef{pathID("Note UUID")},
		ResponseRef: "SoapNote",
	},
	{
		Method: "POST", Path: "/risk-reports",
		Summary: "Draft a risk narrative", OperationID: "createRiskReport", Tag: "risk-reports",
		RequestRef: "RiskReportRequest", ResponseRef: "RiskReport", SuccessCode: "201",
	},
	{
		Method: "GET", Path: "/risk-reports",
		Summary: "Search risk reports", OperationID: "listRiskReports", Tag: "risk-reports",
		Params:      []paramDef{queryFilter("patient_id"), queryFilter("author_id")},
		ResponseRef: "RiskReport", Paged: true,
	},
	{
		Method: "GET", Path: "/risk-reports/{id}",
		Summary: "Read a risk report", OperationID: "getRiskReport", Tag: "risk-reports",
		Params:      []paramDef{pathID("Report UUID")},
		ResponseRef: "RiskReport",
	},
	{
		Method: "GET", Path: "/reports/measures",
		Summary: "List operational measures", OperationID: "listMeasures", Tag: "reports",
		ResponseRef: "MeasureDefinition", ResponseList: true,
	},
	{
		Method: "GET", Path: "/reports/measures/{id}/evaluate",
		Summary: "Evaluate an operational measure", OperationID: "evaluateMeasure", Tag: "reports",
		Params: []paramDef{
			pathID("Measure ID"),
			{Name: "days", In: "query", Type: "integer", Description: "Reporting window in days"},
		},
		ResponseRef: "MeasureReport",
	},
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	for _, r := range apiRoutes {
		entry, ok := paths[r.Path].(map[string]interface{})
		if !ok {
			entry = make(map[string]interface{})
			paths[r.Path] = entry
		}
		entry[strings.ToLower(r.Method)] = buildOperation(r)
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "CareScribe Documentation API",
			"version":     g.version,
			"description": "AI-assisted clinical documentation drafting API",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
		},
	}
}

// buildOperation creates the OpenAPI operation object for one route.
func buildOperation(r routeDef) map[string]interface{} {
	op := map[string]interface{}{
		"summary":     r.Summary,
		"operationId": r.OperationID,
		"tags":        []string{r.Tag},
	}

	params := buildParameters(r)
	if len(params) > 0 {
		op["parameters"] = params
	}

	if r.RequestRef != "" {
		op["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": ref(r.RequestRef),
				},
			},
		}
	}

	op["responses"] = buildResponses(r)
	return op
}

// buildParameters assembles path params, query filters, and the pagination
// pair for paged list operations.
func buildParameters(r routeDef) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(r.Params)+2)
	for _, p := range r.Params {
		param := map[string]interface{}{
			"name":   p.Name,
			"in":     p.In,
			"schema": prop(p.Type),
		}
		if p.Required {
			param["required"] = true
		}
		if p.Description != "" {
			param["description"] = p.Description
		}
		params = append(params, param)
	}

	if r.Paged {
		params = append(params,
			map[string]interface{}{
				"name": "limit", "in": "query", "schema": prop("integer"),
				"description": "Page size, capped at 100",
			},
			map[string]interface{}{
				"name": "offset", "in": "query", "schema": prop("integer"),
				"description": "Starting index for results",
			},
		)
	}

	return params
}

func buildResponses(r routeDef) map[string]interface{} {
	code := r.SuccessCode
	if code == "" {
		code = "200"
	}

	responses := make(map[string]interface{})
	switch {
	case code == "204":
		responses[code] = map[string]interface{}{"description": "No Content"}
	case r.Paged:
		responses[code] = jsonResponse("Paged results", pageSchema(r.ResponseRef))
	case r.ResponseList:
		responses[code] = jsonResponse("Success", arrayOf(ref(r.ResponseRef)))
	default:
		responses[code] = jsonResponse("Success", ref(r.ResponseRef))
	}

	if hasPathParam(r) {
		responses["404"] = jsonResponse("Not Found", ref("Error"))
	}

	return responses
}

func hasPathParam(r routeDef) bool {
	for _, p := range r.Params {
		if p.In == "path" {
			return true
		}
	}
	return false
}

// jsonResponse creates an OpenAPI response with a JSON content schema.
func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": schema,
			},
		},
	}
}

// pageSchema wraps an item schema in the standard pagination envelope.
func pageSchema(itemRef string) map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"data":     arrayOf(ref(itemRef)),
		"total":    prop("integer"),
		"limit":    prop("integer"),
		"offset":   prop("integer"),
		"has_more": prop("boolean"),
	})
}

// ── Component schemas ───────────────────────────────────────────────────

func prop(t string) map[string]interface{} {
	return map[string]interface{}{"type": t}
}

func propFmt(t, format string) map[string]interface{} {
	return map[string]interface{}{"type": t, "format": format}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func arrayOf(item map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": item}
}

func stringMap() map[string]interface{} {
	return map[string]interface{}{"type": "object", "additionalProperties": prop("string")}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func buildComponentSchemas() map[string]interface{} {
	schemas := make(map[string]interface{})

	schemas["GenerateRequest"] = objectSchema(map[string]interface{}{
		"task_type": prop("string"),
		"prompt":    prop("string"),
		"caller_id": prop("string"),
		"aux_data":  stringMap(),
		"provider":  prop("string"),
	}, "task_type", "prompt", "caller_id")

	schemas["GenerateResult"] = objectSchema(map[string]interface{}{
		"request_id":    prop("string"),
		"task_type":     prop("string"),
		"caller_id":     prop("string"),
		"provider":      prop("string"),
		"model":         prop("string"),
		"content":       prop("string"),
		"confidence":    prop("number"),
		"tokens_used":   prop("integer"),
		"latency_ms":    propFmt("integer", "int64"),
		"used_fallback": prop("boolean"),
		"cached":        prop("boolean"),
		"created_at":    propFmt("string", "date-time"),
	})

	schemas["ProviderMetrics"] = objectSchema(map[string]interface{}{
		"provider":             prop("string"),
		"total_requests":       propFmt("integer", "int64"),
		"success_count":        propFmt("integer", "int64"),
		"failure_count":        propFmt("integer", "int64"),
		"success_rate":         prop("number"),
		"avg_response_time_ms": prop("number"),
		"last_used_at":         propFmt("string", "date-time"),
	})

	schemas["BreakerStatus"] = objectSchema(map[string]interface{}{
		"provider": prop("string"),
		"state": map[string]interface{}{
			"type": "string",
			"enum": []string{"closed", "open", "half_open"},
		},
		"consecutive_failures": prop("integer"),
		"last_failure_at":      propFmt("string", "date-time"),
	})

	schemas["PipelineStatus"] = objectSchema(map[string]interface{}{
		"providers":            arrayOf(ref("ProviderMetrics")),
		"breakers":             arrayOf(ref("BreakerStatus")),
		"cache_entries":        prop("integer"),
		"rate_limited_callers": prop("integer"),
	})

	schemas["ProviderHealth"] = objectSchema(map[string]interface{}{
		"provider":   prop("string"),
		"healthy":    prop("boolean"),
		"latency_ms": propFmt("integer", "int64"),
		"breaker":    prop("string"),
		"error":      prop("string"),
	})

	schemas["CallLog"] = objectSchema(map[string]interface{}{
		"id":            propFmt("string", "uuid"),
		"request_id":    prop("string"),
		"task_type":     prop("string"),
		"caller_id":     prop("string"),
		"provider":      prop("string"),
		"model":         prop("string"),
		"confidence":    prop("number"),
		"tokens_used":   prop("integer"),
		"latency_ms":    propFmt("integer", "int64"),
		"used_fallback": prop("boolean"),
		"cached":        prop("boolean"),
		"error_kind":    prop("string"),
		"error_message": prop("string"),
		"created_at":    propFmt("string", "date-time"),
	})

	schemas["PurgeRequest"] = objectSchema(map[string]interface{}{
		"retain_days": prop("integer"),
	}, "retain_days")

	schemas["PurgeResult"] = objectSchema(map[string]interface{}{
		"purged":      propFmt("integer", "int64"),
		"retain_days": prop("integer"),
	})

	schemas["AssessmentDraftRequest"] = objectSchema(map[string]interface{}{
		"patient_id":   prop("string"),
		"author_id":    prop("string"),
		"observations": prop("string"),
		"provider":     prop("string"),
	}, "patient_id", "author_id", "observations")

	schemas["NursingAssessment"] = objectSchema(map[string]interface{}{
		"id":           propFmt("string", "uuid"),
		"patient_id":   prop("string"),
		"author_id":    prop("string"),
		"observations": prop("string"),
		"draft":        prop("string"),
		"status": map[string]interface{}{
			"type": "string",
			"enum": []string{"draft", "final"},
		},
		"provider":   prop("string"),
		"model":      prop("string"),
		"confidence": prop("number"),
		"created_at": propFmt("string", "date-time"),
		"updated_at": propFmt("string", "date-time"),
	})

	schemas["FinalizeRequest"] = objectSchema(map[string]interface{}{
		"draft": prop("string"),
	})

	schemas["SoapNoteRequest"] = objectSchema(map[string]interface{}{
		"patient_id":   prop("string"),
		"encounter_id": prop("string"),
		"author_id":    prop("string"),
		"transcript":   prop("string"),
		"provider":     prop("string"),
	}, "patient_id", "author_id", "transcript")

	schemas["SoapNote"] = objectSchema(map[string]interface{}{
		"id":           propFmt("string", "uuid"),
		"patient_id":   prop("string"),
		"encounter_id": prop("string"),
		"author_id":    prop("string"),
		"subjective":   prop("string"),
		"objective":    prop("string"),
		"assessment":   prop("string"),
		"plan":         prop("string"),
		"structured":   prop("boolean"),
		"provider":     prop("string"),
		"model":        prop("string"),
		"confidence":   prop("number"),
		"created_at":   propFmt("string", "date-time"),
	})

	schemas["RiskReportRequest"] = objectSchema(map[string]interface{}{
		"patient_id": prop("string"),
		"author_id":  prop("string"),
		"factors":    prop("string"),
		"provider":   prop("string"),
	}, "patient_id", "author_id", "factors")

	schemas["RiskReport"] = objectSchema(map[string]interface{}{
		"id":         propFmt("string", "uuid"),
		"patient_id": prop("string"),
		"author_id":  prop("string"),
		"factors":    prop("string"),
		"narrative":  prop("string"),
		"provider":   prop("string"),
		"model":      prop("string"),
		"confidence": prop("number"),
		"created_at": propFmt("string", "date-time"),
	})

	schemas["MeasureParam"] = objectSchema(map[string]interface{}{
		"name":    prop("string"),
		"default": prop("integer"),
	})

	schemas["MeasureDefinition"] = objectSchema(map[string]interface{}{
		"id":          prop("string"),
		"name":        prop("string"),
		"description": prop("string"),
		"sql":         prop("string"),
		"parameters":  arrayOf(ref("MeasureParam")),
	})

	schemas["MeasureReport"] = objectSchema(map[string]interface{}{
		"measure_id":   prop("string"),
		"measure_name": prop("string"),
		"generated_at": propFmt("string", "date-time"),
		"results":      arrayOf(prop("object")),
		"parameters": map[string]interface{}{
			"type":                 "object",
			"additionalProperties": prop("integer"),
		},
	})

	schemas["Error"] = objectSchema(map[string]interface{}{
		"message": prop("string"),
	})

	return schemas
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>CareScribe Documentation API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/v1/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
