package afcp

import (
	"context"
	"errors"
	"time"
)

const anonymousClientID = "anonymous"

// RouteOptions carries the per-call options for Route/Dispatch.
type RouteOptions struct {
	Timeout          time.Duration // default 30s
	RequireHealthy   *bool
	PreferAgents     []string
	StickySessionKey string
}

func (o RouteOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

func (o RouteOptions) selectOptions() SelectOptions {
	return SelectOptions{
		RequireHealthy:   o.RequireHealthy,
		PreferAgents:     o.PreferAgents,
		StickySessionKey: o.StickySessionKey,
	}
}

// Dispatcher issues a single request via Transport with a deadline and
// feeds the outcome back into the Registry as load/health updates.
type Dispatcher struct {
	registry  *Registry
	selector  *Selector
	admission *AdmissionController
	transport Transport

	metrics *MetricsExporter // optional, set by ControlPlane; nil-safe
}

// NewDispatcher wires the collaborators Dispatch needs.
func NewDispatcher(registry *Registry, selector *Selector, admission *AdmissionController, transport Transport) *Dispatcher {
	return &Dispatcher{registry: registry, selector: selector, admission: admission, transport: transport}
}

// Dispatch runs Admission -> Selector -> Transport -> feedback, in that
// order, for a single request on behalf of clientID.
func (d *Dispatcher) Dispatch(ctx context.Context, capability string, payload []byte, opts RouteOptions, clientID string) ([]byte, error) {
	if capability == "" {
		return nil, NewInvalidInput("capability must not be empty")
	}
	if clientID == "" {
		clientID = anonymousClientID
	}

	start := time.Now()

	decision := d.admission.Check(clientID)
	if !decision.Allowed {
		d.recordOutcome(capability, "rate_limited", time.Since(start))
		return nil, NewRateLimited(decision.RetryAfter.Seconds())
	}

	agent, ok := d.selector.Select(capability, opts.selectOptions())
	if !ok {
		d.recordOutcome(capability, "no_agent", time.Since(start))
		return nil, NewNoAgentAvailable(capability)
	}

	dctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	result, err := d.transport.Send(dctx, agent.Endpoint, capability, payload)

	if err != nil {
		if ctx.Err() != nil {
			// Caller cancelled: no state mutation, account as cancelled.
			d.recordOutcome(capability, "cancelled", time.Since(start))
			return nil, NewCancelled("route cancelled before completion")
		}
		if dctx.Err() == context.DeadlineExceeded {
			d.applyFailureFeedback(agent.ID)
			d.recordOutcome(capability, "timeout", time.Since(start))
			return nil, NewTimeout("transport deadline exceeded")
		}

		var terr *TransportError
		if errors.As(err, &terr) && terr.Kind == TransportTimeout {
			d.applyFailureFeedback(agent.ID)
			d.recordOutcome(capability, "timeout", time.Since(start))
			return nil, NewTimeout(terr.Error())
		}

		d.applyFailureFeedback(agent.ID)
		d.recordOutcome(capability, "agent_error", time.Since(start))
		return nil, NewAgentError(agent.ID, err)
	}

	d.registry.mutateAgent(agent.ID, func(a *Agent) {
		a.LoadAvg = a.LoadAvg * 0.9
	})
	d.recordOutcome(capability, "ok", time.Since(start))
	return result, nil
}

// applyFailureFeedback applies the shared Dispatcher/Quorum failure
// policy: additive load penalty, and degrade health only if currently
// active (never upgrade offline -> degraded).
func (d *Dispatcher) applyFailureFeedback(agentID string) {
	d.registry.mutateAgent(agentID, func(a *Agent) {
		a.LoadAvg = a.LoadAvg + 0.2
		if a.Health == HealthActive {
			a.Health = HealthDegraded
		}
	})
}

func (d *Dispatcher) recordOutcome(capability, outcome string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.recordRouteOutcome(capability, outcome, elapsed)
}
