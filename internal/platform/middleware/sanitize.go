package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// maxHeaderValueSize caps any single header value.
const maxHeaderValueSize = 8192

var (
	// Warn-only: parameterized queries are the real defense, the log line
	// flags probing.
	sqlPattern = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	// Hard block: no query parameter has a reason to carry script.
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// decodedForms returns the input plus up to two percent-decoding passes, so
// the traversal and null-byte checks see through single and double encoding.
func decodedForms(s string) []string {
	forms := []string{s}
	cur := s
	for i := 0; i < 2; i++ {
		dec, err := url.QueryUnescape(cur)
		if err != nil || dec == cur {
			break
		}
		forms = append(forms, dec)
		cur = dec
	}
	return forms
}

func hasTraversal(s string) bool {
	for _, f := range decodedForms(s) {
		if strings.Contains(f, "..") {
			return true
		}
	}
	return false
}

func hasNullByte(s string) bool {
	for _, f := range decodedForms(s) {
		if strings.ContainsRune(f, '\x00') {
			return true
		}
	}
	return false
}

// Sanitize returns the request screening middleware with logging disabled.
func Sanitize() echo.MiddlewareFunc {
	return SanitizeWithLogger(zerolog.Nop())
}

// SanitizeWithLogger screens incoming requests before they reach a handler:
// path traversal, null bytes, header injection, and script fragments in query
// parameters are rejected with 400. Suspicious SQL fragments are logged but
// allowed through.
func SanitizeWithLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			for _, p := range []string{req.URL.Path, req.URL.RawPath} {
				if p == "" {
					continue
				}
				if hasTraversal(p) {
					return rejectRequest(c, "path traversal detected")
				}
				if hasNullByte(p) {
					return rejectRequest(c, "null byte injection detected")
				}
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return rejectRequest(c, "header value exceeds maximum size: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return rejectRequest(c, "header injection detected: "+name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				if hasNullByte(key) {
					return rejectRequest(c, "null byte injection detected in query parameter")
				}
				if scriptPattern.MatchString(key) {
					return rejectRequest(c, "script injection detected in query parameter")
				}
				for _, v := range values {
					if hasNullByte(v) {
						return rejectRequest(c, "null byte injection detected in query parameter")
					}
					if scriptPattern.MatchString(v) {
						return rejectRequest(c, "script injection detected in query parameter")
					}
					if sqlPattern.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("potential SQL injection pattern in query parameter")
					}
				}
			}

			return next(c)
		}
	}
}

func rejectRequest(c echo.Context, reason string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": reason})
}

// SanitizeString strips null bytes and control characters (keeping \n, \r and
// \t) and trims surrounding whitespace. Handlers run free-text clinical
// fields through this before they reach prompts or storage.
func SanitizeString(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\x00' {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
