// Package afcp implements the Agent Federation Control Plane: an
// in-memory runtime that maintains a live catalog of remote worker
// agents advertising capabilities, and routes work to the best agent
// under failure, load, and latency constraints.
package afcp

import (
	"context"
	"log"
	"time"
)

// Config bundles every recognized AFCP option (spec §6), all optional
// with stated defaults. Config is a plain struct with no I/O — loading
// it from the environment is the caller's concern (see internal/config).
type Config struct {
	RouteTimeout     time.Duration
	ConsensusTimeout time.Duration
	Admission        AdmissionConfig
	Health           HealthConfig
	Logger           *log.Logger
}

// DefaultConfig returns a Config with every field at its spec-mandated default.
func DefaultConfig() Config {
	return Config{
		RouteTimeout:     30 * time.Second,
		ConsensusTimeout: 20 * time.Second,
		Admission:        DefaultAdmissionConfig(),
		Health:           DefaultHealthConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = d.RouteTimeout
	}
	if c.ConsensusTimeout <= 0 {
		c.ConsensusTimeout = d.ConsensusTimeout
	}
	if c.Admission.WindowLength <= 0 {
		c.Admission.WindowLength = d.Admission.WindowLength
	}
	if c.Admission.MaxRequests <= 0 {
		c.Admission.MaxRequests = d.Admission.MaxRequests
	}
	if c.Admission.Burst <= 0 {
		c.Admission.Burst = d.Admission.Burst
	}
	if c.Health.TickInterval <= 0 {
		c.Health.TickInterval = d.Health.TickInterval
	}
	if c.Health.OfflineThreshold <= 0 {
		c.Health.OfflineThreshold = d.Health.OfflineThreshold
	}
	if c.Health.DecayMultiplicative == 0 {
		c.Health.DecayMultiplicative = d.Health.DecayMultiplicative
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// ControlPlane is the single entry point for AFCP's seven public
// operations. It owns the Registry, Admission Controller, Selector,
// Dispatcher, Quorum Engine, Health Monitor, and Metrics Exporter,
// constructed once at startup from a Config and a Transport.
type ControlPlane struct {
	cfg Config

	registry  *Registry
	admission *AdmissionController
	selector  *Selector
	dispatch  *Dispatcher
	quorum    *QuorumEngine
	health    *HealthMonitor
	metrics   *MetricsExporter
}

// New constructs a ControlPlane. transport must be concurrency-safe; it
// is never provisioned or parsed by AFCP (spec §1).
func New(cfg Config, transport Transport, clock Clock) *ControlPlane {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = SystemClock
	}

	registry := NewRegistry(clock)
	admission := NewAdmissionController(cfg.Admission, clock)
	selector := NewSelector(registry)
	dispatch := NewDispatcher(registry, selector, admission, transport)
	quorum := NewQuorumEngine(registry, transport)
	health := NewHealthMonitor(registry, clock, cfg.Health, cfg.Logger)
	metrics := NewMetricsExporter(registry)

	admission.metrics = metrics
	dispatch.metrics = metrics
	quorum.metrics = metrics
	health.metrics = metrics

	return &ControlPlane{
		cfg:       cfg,
		registry:  registry,
		admission: admission,
		selector:  selector,
		dispatch:  dispatch,
		quorum:    quorum,
		health:    health,
		metrics:   metrics,
	}
}

// StartHealthMonitor begins the Health Monitor's ticker, independent of
// traffic, until ctx is cancelled.
func (cp *ControlPlane) StartHealthMonitor(ctx context.Context) {
	cp.health.Start(ctx)
}

// StopHealthMonitor halts the ticker started by StartHealthMonitor.
func (cp *ControlPlane) StopHealthMonitor() {
	cp.health.Stop()
}

// Tick runs one Health Monitor pass synchronously, for tests and manual triggering.
func (cp *ControlPlane) Tick() {
	cp.health.Tick()
}

// Register is an idempotent upsert of agent into the Registry.
func (cp *ControlPlane) Register(agent Agent) error {
	return cp.registry.Upsert(agent)
}

// Deregister removes id and reports whether it previously existed.
func (cp *ControlPlane) Deregister(id string) bool {
	return cp.registry.Remove(id)
}

// Heartbeat is a no-op on an unknown id; otherwise refreshes
// lastHeartbeat and applies the optional update.
func (cp *ControlPlane) Heartbeat(id string, update *HeartbeatUpdate) {
	cp.registry.Heartbeat(id, update)
}

// List returns a point-in-time snapshot of agents matching filter.
func (cp *ControlPlane) List(filter ListFilter) []Agent {
	return cp.registry.List(filter)
}

// Route dispatches a single request for capability on behalf of clientID.
func (cp *ControlPlane) Route(ctx context.Context, capability string, payload []byte, opts RouteOptions, clientID string) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = cp.cfg.RouteTimeout
	}
	return cp.dispatch.Dispatch(ctx, capability, payload, opts, clientID)
}

// Consensus fans a proposal out to every healthy candidate advertising
// capability and decides by strict majority.
func (cp *ControlPlane) Consensus(ctx context.Context, capability string, proposal []byte, opts ConsensusOptions) ConsensusResult {
	if opts.Timeout <= 0 {
		opts.Timeout = cp.cfg.ConsensusTimeout
	}
	return cp.quorum.Consensus(ctx, capability, proposal, opts)
}

// Metrics renders the current OpenMetrics text payload.
func (cp *ControlPlane) Metrics() ([]byte, error) {
	return cp.metrics.Text()
}

// GCAdmission purges stale per-client admission records. Intended to run
// on a timer at an interval >= Admission.WindowLength, independent of
// Route traffic, the same way the Health Monitor runs independent of
// Route traffic.
func (cp *ControlPlane) GCAdmission() {
	cp.admission.GC()
}
