package afcp

import "sort"

// SelectOptions carries the selection-policy inputs for Select.
type SelectOptions struct {
	// RequireHealthy defaults to true when nil.
	RequireHealthy *bool
	// PreferAgents is an ordered set of ids; order beyond membership is
	// not significant to the algorithm (ties broken by loadAvg, then id).
	PreferAgents []string
	// StickySessionKey, if set, pins routing to a stable candidate.
	StickySessionKey string
}

func (o SelectOptions) requireHealthy() bool {
	if o.RequireHealthy == nil {
		return true
	}
	return *o.RequireHealthy
}

// Selector implements the capability-routing policy. It has no side
// effects and does not consult Admission.
type Selector struct {
	registry *Registry
}

// NewSelector constructs a Selector over registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// Select picks one agent for capability under opts, or returns
// (Agent{}, false) if no candidate qualifies.
func (s *Selector) Select(capability string, opts SelectOptions) (Agent, bool) {
	candidates := s.registry.candidatesForCapability(capability, opts.requireHealthy())
	if len(candidates) == 0 {
		return Agent{}, false
	}

	if opts.StickySessionKey != "" {
		idx := int(stableHash(opts.StickySessionKey) % uint32(len(candidates)))
		return candidates[idx], true
	}

	if len(opts.PreferAgents) > 0 {
		preferred := make(map[string]struct{}, len(opts.PreferAgents))
		for _, id := range opts.PreferAgents {
			preferred[id] = struct{}{}
		}
		var pool []Agent
		for _, c := range candidates {
			if _, ok := preferred[c.ID]; ok {
				pool = append(pool, c)
			}
		}
		if len(pool) >= 1 {
			return leastLoaded(pool), true
		}
	}

	return leastLoaded(candidates), true
}

// leastLoaded returns the lowest-loadAvg agent, breaking ties by
// ascending id. Candidates must already be sorted by id for the tie
// break to be stable, but we sort defensively here too.
func leastLoaded(candidates []Agent) Agent {
	sorted := make([]Agent, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LoadAvg != sorted[j].LoadAvg {
			return sorted[i].LoadAvg < sorted[j].LoadAvg
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

// stableHash implements the normative 32-bit FNV-like mix from spec §6,
// operating on unsigned 32-bit arithmetic throughout so the result is
// reproducible across implementations and test runs.
func stableHash(input string) uint32 {
	var h uint32 = 2166136261
	for _, b := range []byte(input) {
		h ^= uint32(b)
		h = h + (h << 1) + (h << 4) + (h << 7) + (h << 8) + (h << 24)
	}
	return h
}
