package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AccessEvent is one PHI access captured by the audit middleware: who touched
// which clinical resource, how, and with what outcome.
type AccessEvent struct {
	At        time.Time
	RequestID string
	Resource  string
	PatientID string
	Action    string
	Method    string
	Path      string
	RemoteIP  string
	UserAgent string
	Status    int
}

// AuditSink persists access events. Sink errors never fail the request; they
// are logged and the response proceeds.
type AuditSink interface {
	Record(event AccessEvent) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(event AccessEvent) error

func (f AuditSinkFunc) Record(event AccessEvent) error { return f(event) }

// Audit leaves a trail for every PHI-bearing API request. Transcripts, drafts,
// and the patients behind them are protected health information, so each
// access records the resource, the action, the patient when the query names
// one, the caller address, and the outcome. Failed requests log at warn so
// rejected or broken access attempts stand out when reviewing the trail.
func Audit(logger zerolog.Logger, sinks ...AuditSink) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !carriesPHI(path) {
				return next(c)
			}

			err := next(c)

			// On error the response is not committed yet, so the status
			// comes from the error rather than the response writer.
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			req := c.Request()
			event := AccessEvent{
				At:        time.Now().UTC(),
				Path:      path,
				Method:    req.Method,
				RemoteIP:  c.RealIP(),
				UserAgent: req.UserAgent(),
				Status:    status,
				Action:    classifyAction(req.Method, path),
				Resource:  resourceFromPath(path),
				PatientID: c.QueryParam("patient_id"),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				event.RequestID = rid
			}

			for _, sink := range sinks {
				if sink == nil {
					continue
				}
				if serr := sink.Record(event); serr != nil {
					logger.Error().Err(serr).
						Str("request_id", event.RequestID).
						Msg("audit sink rejected event")
				}
			}

			evt := logger.Info()
			if event.Status >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_access").
				Str("request_id", event.RequestID).
				Str("resource", event.Resource).
				Str("patient_id", event.PatientID).
				Str("action", event.Action).
				Str("method", event.Method).
				Str("path", event.Path).
				Str("remote_ip", event.RemoteIP).
				Int("status", event.Status).
				Msg("audit")

			return err
		}
	}
}

// carriesPHI reports whether a path serves clinical content. The OpenAPI
// document and its viewer live under the API prefix but carry no patient
// data; everything else under /api/v1/ does.
func carriesPHI(path string) bool {
	rest, found := strings.CutPrefix(path, "/api/v1/")
	if !found {
		return false
	}
	switch rest {
	case "openapi.json", "docs":
		return false
	}
	return true
}

// classifyAction folds method and path into the audit action. Finalizing a
// draft and purging the call log are distinct enough from a generic write to
// deserve their own labels.
func classifyAction(method, path string) string {
	if method == http.MethodPost {
		switch {
		case strings.HasSuffix(path, "/finalize"):
			return "finalize"
		case strings.HasSuffix(path, "/purge-calls"):
			return "purge"
		}
		return "create"
	}
	switch method {
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath names the resource a path addresses. Namespace prefixes
// keep their second segment, so nursing drafts audit as nursing/assessments
// rather than blurring into one nursing bucket.
func resourceFromPath(path string) string {
	rest, found := strings.CutPrefix(path, "/api/v1/")
	if !found || rest == "" {
		return "unknown"
	}
	segments := strings.SplitN(rest, "/", 3)
	switch segments[0] {
	case "nursing", "ai", "reports":
		if len(segments) > 1 && segments[1] != "" {
			return segments[0] + "/" + segments[1]
		}
	}
	return segments[0]
}
