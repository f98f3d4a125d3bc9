package afcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ConsensusOptions carries the per-call options for Consensus.
type ConsensusOptions struct {
	// Quorum is the fraction in [0,1] a majority must strictly exceed.
	// Defaults to 0.5.
	Quorum *float64
	// Timeout defaults to 20s.
	Timeout time.Duration
}

func (o ConsensusOptions) quorum() float64 {
	if o.Quorum == nil {
		return 0.5
	}
	return *o.Quorum
}

func (o ConsensusOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 20 * time.Second
	}
	return o.Timeout
}

// AgentDecision is one candidate's terminal outcome in a Consensus call.
type AgentDecision struct {
	AgentID string
	OK      bool
	Value   []byte
	Error   string
}

// ConsensusResult is the outcome of a Consensus call.
type ConsensusResult struct {
	Decided   bool
	Decisions []AgentDecision
}

// QuorumEngine fans a proposal out to every healthy candidate advertising
// a capability, waits for every sub-call to terminate, and decides by
// strict majority.
type QuorumEngine struct {
	registry  *Registry
	transport Transport

	metrics *MetricsExporter // optional, set by ControlPlane; nil-safe
}

// NewQuorumEngine wires the collaborators Consensus needs.
func NewQuorumEngine(registry *Registry, transport Transport) *QuorumEngine {
	return &QuorumEngine{registry: registry, transport: transport}
}

// Consensus fans proposal out to every candidate advertising capability
// under a single shared deadline and returns once every sub-call has
// terminated (success, failure, or cancellation) — never on first success.
func (q *QuorumEngine) Consensus(ctx context.Context, capability string, proposal []byte, opts ConsensusOptions) ConsensusResult {
	candidates := q.registry.candidatesForCapability(capability, true)
	if len(candidates) == 0 {
		q.recordDecided(capability, false)
		return ConsensusResult{Decided: false, Decisions: nil}
	}

	cctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	decisions := make([]AgentDecision, len(candidates))
	var mu sync.Mutex // guards decisions writes only for clarity; each index is disjoint

	g, gctx := errgroup.WithContext(cctx)
	for i, agent := range candidates {
		i, agent := i, agent
		g.Go(func() error {
			d := q.callOne(gctx, ctx, agent, capability, proposal)
			mu.Lock()
			decisions[i] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-candidate errors are captured in decisions, never propagated here

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].AgentID < decisions[j].AgentID })

	okCount := 0
	for _, d := range decisions {
		if d.OK {
			okCount++
		}
	}
	decided := float64(okCount)/float64(len(decisions)) > opts.quorum()
	if ctx.Err() != nil {
		// Caller cancelled: partial decisions are returned, nothing is decided.
		decided = false
	}

	q.recordDecided(capability, decided)
	return ConsensusResult{Decided: decided, Decisions: decisions}
}

// callOne issues a single Transport call and applies the shared
// success/failure feedback policy. callerCtx is the caller's original
// (un-timed-out) context, used only to detect caller-initiated
// cancellation versus a deadline/transport failure.
func (q *QuorumEngine) callOne(ctx, callerCtx context.Context, agent Agent, capability string, proposal []byte) AgentDecision {
	value, err := q.transport.Send(ctx, agent.Endpoint, capability, proposal)
	if err == nil {
		q.registry.mutateAgent(agent.ID, func(a *Agent) {
			a.LoadAvg = a.LoadAvg * 0.95
		})
		return AgentDecision{AgentID: agent.ID, OK: true, Value: value}
	}

	if callerCtx.Err() != nil {
		// Caller cancelled: no state mutation for this candidate.
		return AgentDecision{AgentID: agent.ID, OK: false, Error: "cancelled"}
	}

	q.registry.mutateAgent(agent.ID, func(a *Agent) {
		a.LoadAvg = a.LoadAvg + 0.2
		if a.Health == HealthActive {
			a.Health = HealthDegraded
		}
	})
	return AgentDecision{AgentID: agent.ID, OK: false, Error: err.Error()}
}

func (q *QuorumEngine) recordDecided(capability string, decided bool) {
	if q.metrics == nil {
		return
	}
	q.metrics.recordConsensus(capability, decided)
}
