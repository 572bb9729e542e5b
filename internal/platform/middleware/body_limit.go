package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit = 1 << 20

// BodyLimit caps the request body size. The limit is a human-readable string
// such as "1M" or "512K"; a bare number is bytes. Oversized requests get 413.
// Prompt length is bounded separately by generation request validation; this
// guard keeps oversized payloads from being read at all.
func BodyLimit(limit string) echo.MiddlewareFunc {
	limitBytes := parseSizeLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			body := c.Request().Body
			if body == nil || body == http.NoBody {
				return next(c)
			}

			// A declared length rejects cheaply before any read.
			if c.Request().ContentLength > limitBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limitBytes),
				})
			}

			// Chunked or lying clients are caught while reading.
			c.Request().Body = &capReader{rc: body, left: limitBytes}
			return next(c)
		}
	}
}

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// capReader fails the read that pushes the consumed byte count past the cap.
type capReader struct {
	rc   io.ReadCloser
	left int64
}

func (r *capReader) Read(p []byte) (int, error) {
	if r.left < 0 {
		return 0, errBodyTooLarge
	}
	// Read at most one byte beyond the cap so overflow is observable.
	if max := r.left + 1; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := r.rc.Read(p)
	r.left -= int64(n)
	if r.left < 0 {
		return 0, errBodyTooLarge
	}
	return n, err
}

func (r *capReader) Close() error { return r.rc.Close() }

// parseSizeLimit converts "1M" / "512K" / "2G" / "100" into bytes, falling
// back to 1 MB when the string does not parse.
func parseSizeLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultBodyLimit
	}

	multiplier := int64(1)
	for _, suf := range []struct {
		text string
		mult int64
	}{
		{"GB", 1 << 30}, {"G", 1 << 30},
		{"MB", 1 << 20}, {"M", 1 << 20},
		{"KB", 1 << 10}, {"K", 1 << 10},
		{"B", 1},
	} {
		if rest, found := strings.CutSuffix(s, suf.text); found {
			s, multiplier = rest, suf.mult
			break
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return defaultBodyLimit
	}
	return n * multiplier
}
