package afcp

import (
	"context"
	"log"
	"time"
)

// HealthConfig parameterizes the Health Monitor.
type HealthConfig struct {
	TickInterval     time.Duration
	OfflineThreshold time.Duration
	// DecayMultiplicative and DecayAdditive implement loadAvg <- max(0, loadAvg*Mult + Add).
	DecayMultiplicative float64
	DecayAdditive       float64
}

// DefaultHealthConfig matches the defaults in spec §6.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		TickInterval:        10 * time.Second,
		OfflineThreshold:    60 * time.Second,
		DecayMultiplicative: 0.98,
		DecayAdditive:       -0.01,
	}
}

// HealthMonitor periodically ages out stale heartbeats and decays load
// averages. It never fails the process: all errors are logged and
// swallowed.
type HealthMonitor struct {
	registry *Registry
	clock    Clock
	cfg      HealthConfig
	logger   *log.Logger

	metrics *MetricsExporter // optional, set by ControlPlane; nil-safe

	stop chan struct{}
	done chan struct{}
}

// NewHealthMonitor constructs a HealthMonitor over registry.
func NewHealthMonitor(registry *Registry, clock Clock, cfg HealthConfig, logger *log.Logger) *HealthMonitor {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultHealthConfig().TickInterval
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = DefaultHealthConfig().OfflineThreshold
	}
	if cfg.DecayMultiplicative == 0 {
		cfg.DecayMultiplicative = DefaultHealthConfig().DecayMultiplicative
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HealthMonitor{
		registry: registry,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs ticks on an interval until ctx is cancelled or Stop is called.
func (h *HealthMonitor) Start(ctx context.Context) {
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.Tick()
			case <-h.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the ticking goroutine and waits for it to exit.
func (h *HealthMonitor) Stop() {
	close(h.stop)
	<-h.done
}

// Tick runs one aging + decay pass synchronously, useful for tests that
// want deterministic control over when a tick happens.
func (h *HealthMonitor) Tick() {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Printf("afcp: health monitor: recovered from panic: %v", r)
		}
	}()

	now := h.clock.Now()
	h.registry.forEachAgent(func(a *Agent) {
		if now.Sub(a.LastHeartbeat) > h.cfg.OfflineThreshold {
			a.Health = HealthOffline
		}
		a.LoadAvg = maxFloat(0, a.LoadAvg*h.cfg.DecayMultiplicative+h.cfg.DecayAdditive)
	})

	if h.metrics != nil {
		h.metrics.recordTick(h.registry.healthCounts(), h.registry.snapshotLoads())
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
