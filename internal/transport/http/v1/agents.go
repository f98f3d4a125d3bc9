package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
)

// AgentRegisterRequest is the request body to register or update an agent.
type AgentRegisterRequest struct {
	ID           string   `json:"id"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities,omitempty"`
	Health       string   `json:"health,omitempty"`
	LoadAvg      float64  `json:"load_avg,omitempty"`
}

// RegisterAgent registers or updates an agent.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	var req AgentRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	agent := afcp.Agent{
		ID:           req.ID,
		Endpoint:     req.Endpoint,
		Capabilities: req.Capabilities,
		Health:       afcp.Health(req.Health),
		LoadAvg:      req.LoadAvg,
	}

	if err := h.cp.Register(agent); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// DeregisterAgent removes an agent from the registry.
// DELETE /v1/agents/:id
func (h *Handler) DeregisterAgent(c echo.Context) error {
	id := c.Param("id")
	existed := h.cp.Deregister(id)
	if !existed {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// HeartbeatRequest is the request body for a heartbeat update.
type HeartbeatRequest struct {
	Health  *string  `json:"health,omitempty"`
	LoadAvg *float64 `json:"load_avg,omitempty"`
}

// Heartbeat refreshes an agent's liveness and optionally its health/load.
// POST /v1/agents/:id/heartbeat
func (h *Handler) Heartbeat(c echo.Context) error {
	id := c.Param("id")
	var req HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var update afcp.HeartbeatUpdate
	if req.Health != nil {
		health := afcp.Health(*req.Health)
		update.Health = &health
	}
	if req.LoadAvg != nil {
		update.LoadAvg = req.LoadAvg
	}

	h.cp.Heartbeat(id, &update)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// agentView is the JSON projection of afcp.Agent returned to callers.
type agentView struct {
	ID            string   `json:"id"`
	Endpoint      string   `json:"endpoint"`
	Capabilities  []string `json:"capabilities"`
	Health        string   `json:"health"`
	LastHeartbeat int64    `json:"last_heartbeat_ms"`
	LoadAvg       float64  `json:"load_avg"`
}

// ListAgents lists agents, optionally filtered by capability/health query params.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	filter := afcp.ListFilter{}
	if caps := c.QueryParams()["capability"]; len(caps) > 0 {
		filter.Capabilities = caps
	}
	if healthParam := c.QueryParam("health"); healthParam != "" {
		health := afcp.Health(healthParam)
		filter.Health = &health
	}

	agents := h.cp.List(filter)
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, agentView{
			ID:            a.ID,
			Endpoint:      a.Endpoint,
			Capabilities:  a.Capabilities,
			Health:        string(a.Health),
			LastHeartbeat: a.LastHeartbeat.UnixMilli(),
			LoadAvg:       a.LoadAvg,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agents": views})
}
