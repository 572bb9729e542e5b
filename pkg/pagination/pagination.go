// Package pagination provides limit/offset extraction and the list response
// envelope shared by the collection endpoints.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a validated page window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads the limit and offset query parameters. Malformed or
// out-of-range values fall back to the defaults rather than erroring: a bad
// page request is served, not rejected.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}

	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		p.Limit = min(v, MaxLimit)
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		p.Offset = v
	}
	return p
}

// Response is the envelope every collection endpoint returns.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// NewResponse wraps one page of results. Total is the unpaged match count,
// which lets HasMore signal whether another page exists.
func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}
