package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the response header carrying the generated request id.
const RequestIDHeader = "X-Request-ID"

// RequestID stamps every response with a short, unique id so a single
// request can be traced through afcpd's access log, the same short-id
// convention the teacher uses for event/tool-call ids ("evt_" + uuid
// prefix) rather than a full UUID on the wire.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := "req_" + uuid.New().String()[:8]
			c.Response().Header().Set(RequestIDHeader, id)
			c.Set("request_id", id)
			return next(c)
		}
	}
}
