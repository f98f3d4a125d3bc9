package v1

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
)

// ConsensusRequest is the request body for POST /v1/consensus.
type ConsensusRequest struct {
	Capability string  `json:"capability"`
	Proposal   string  `json:"proposal"` // base64
	Quorum     *float64 `json:"quorum,omitempty"`
	TimeoutMS  int64   `json:"timeout_ms,omitempty"`
}

// consensusDecisionView is the JSON projection of afcp.AgentDecision.
type consensusDecisionView struct {
	AgentID string `json:"agent_id"`
	OK      bool   `json:"ok"`
	Value   string `json:"value,omitempty"` // base64
	Error   string `json:"error,omitempty"`
}

// Consensus fans a proposal out to every healthy candidate for capability.
// POST /v1/consensus
func (h *Handler) Consensus(c echo.Context) error {
	var req ConsensusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Capability == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "capability is required"})
	}

	var proposal []byte
	if req.Proposal != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Proposal)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "proposal must be base64-encoded"})
		}
		proposal = decoded
	}

	opts := afcp.ConsensusOptions{Quorum: req.Quorum}
	if req.TimeoutMS > 0 {
		opts.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	result := h.cp.Consensus(c.Request().Context(), req.Capability, proposal, opts)

	views := make([]consensusDecisionView, 0, len(result.Decisions))
	for _, d := range result.Decisions {
		view := consensusDecisionView{AgentID: d.AgentID, OK: d.OK, Error: d.Error}
		if d.Value != nil {
			view.Value = base64.StdEncoding.EncodeToString(d.Value)
		}
		views = append(views, view)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"decided":   result.Decided,
		"decisions": views,
	})
}
