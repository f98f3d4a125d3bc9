package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Metrics renders the current OpenMetrics text exposition payload.
// GET /metrics
func (h *Handler) Metrics(c echo.Context) error {
	body, err := h.cp.Metrics()
	if err != nil {
		h.logger.Printf("ERROR: failed to render metrics: %v", err)
		return c.String(http.StatusInternalServerError, "")
	}
	return c.Blob(http.StatusOK, "application/openmetrics-text; version=1.0.0; charset=utf-8", body)
}
