package v1

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
)

// RouteRequest is the request body for POST /v1/route.
type RouteRequest struct {
	Capability       string   `json:"capability"`
	Payload          string   `json:"payload"` // base64
	TimeoutMS        int64    `json:"timeout_ms,omitempty"`
	RequireHealthy   *bool    `json:"require_healthy,omitempty"`
	PreferAgents     []string `json:"prefer_agents,omitempty"`
	StickySessionKey string   `json:"sticky_session_key,omitempty"`
	ClientID         string   `json:"client_id,omitempty"`
}

// Route dispatches a single request to the best matching agent.
// POST /v1/route
func (h *Handler) Route(c echo.Context) error {
	var req RouteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var payload []byte
	if req.Payload != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Payload)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "payload must be base64-encoded"})
		}
		payload = decoded
	}

	opts := afcp.RouteOptions{
		RequireHealthy:   req.RequireHealthy,
		PreferAgents:     req.PreferAgents,
		StickySessionKey: req.StickySessionKey,
	}
	if req.TimeoutMS > 0 {
		opts.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	result, err := h.cp.Route(c.Request().Context(), req.Capability, payload, opts, req.ClientID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"result": base64.StdEncoding.EncodeToString(result),
	})
}
