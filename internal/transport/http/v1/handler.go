// Package v1 provides the public HTTP surface over an afcp.ControlPlane.
package v1

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
)

// Handler handles HTTP requests against a ControlPlane.
type Handler struct {
	cp     *afcp.ControlPlane
	logger *log.Logger
}

// NewHandler creates a new Handler over cp.
func NewHandler(cp *afcp.ControlPlane, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{cp: cp, logger: logger}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/agents/register", h.RegisterAgent)
	e.DELETE("/v1/agents/:id", h.DeregisterAgent)
	e.POST("/v1/agents/:id/heartbeat", h.Heartbeat)
	e.GET("/v1/agents", h.ListAgents)

	e.POST("/v1/route", h.Route)
	e.POST("/v1/consensus", h.Consensus)

	e.GET("/metrics", h.Metrics)
	e.GET("/health", h.Health)
}

// Health returns liveness status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps an afcp.Error's Kind to an HTTP status code and writes
// the JSON error body; falls back to 500 for anything unrecognized.
func writeError(c echo.Context, err error) error {
	var afcpErr *afcp.Error
	if !errors.As(err, &afcpErr) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	status := http.StatusInternalServerError
	switch afcpErr.Kind {
	case afcp.KindInvalidInput:
		status = http.StatusBadRequest
	case afcp.KindUnknownAgent:
		status = http.StatusNotFound
	case afcp.KindNoAgentAvailable:
		status = http.StatusServiceUnavailable
	case afcp.KindRateLimited:
		status = http.StatusTooManyRequests
	case afcp.KindTimeout:
		status = http.StatusGatewayTimeout
	case afcp.KindAgentError:
		status = http.StatusBadGateway
	case afcp.KindCancelled:
		status = 499 // client closed request, the same convention the teacher's ingress uses
	}

	body := map[string]interface{}{"error": afcpErr.Message, "kind": string(afcpErr.Kind)}
	if afcpErr.Kind == afcp.KindRateLimited {
		c.Response().Header().Set("Retry-After", strconv.FormatFloat(afcpErr.RetryAfterSeconds, 'f', 0, 64))
	}
	return c.JSON(status, body)
}
