package afcp

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// HistogramBuckets are the route-latency buckets §4.7 names.
var HistogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	descAgentsTotal = prometheus.NewDesc(
		"afcp_agents_total",
		"Number of registered agents by health state.",
		[]string{"health"}, nil,
	)
	descCapabilitiesTotal = prometheus.NewDesc(
		"afcp_capabilities_total",
		"Number of distinct capabilities currently advertised.",
		nil, nil,
	)
	descLoadAvg = prometheus.NewDesc(
		"afcp_load_avg",
		"Current load average of an agent.",
		[]string{"agent"}, nil,
	)
)

// MetricsExporter is a read-only projection over the registry and the
// cumulative counters/histograms accumulated by the Dispatcher, Quorum
// Engine, Admission Controller and Health Monitor. It holds its own
// registry (not the global default) so multiple control planes can
// coexist in one process.
type MetricsExporter struct {
	registry *Registry
	promReg  *prometheus.Registry

	routeRequests        *prometheus.CounterVec
	routeLatencySeconds   *prometheus.HistogramVec
	consensusTotal        *prometheus.CounterVec
	admissionRejections   *prometheus.CounterVec
}

// NewMetricsExporter wires a private prometheus registry with the AFCP
// metric families named in spec §4.7, plus a live collector over reg
// for the gauge families that must reflect current state at scrape time.
func NewMetricsExporter(reg *Registry) *MetricsExporter {
	promReg := prometheus.NewRegistry()

	e := &MetricsExporter{
		registry: reg,
		promReg:  promReg,
		routeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afcp_route_requests_total",
			Help: "Total Route calls by capability and outcome.",
		}, []string{"capability", "outcome"}),
		routeLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afcp_route_latency_seconds",
			Help:    "Route call latency in seconds.",
			Buckets: HistogramBuckets,
		}, []string{"capability"}),
		consensusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afcp_consensus_total",
			Help: "Total Consensus calls by capability and decided outcome.",
		}, []string{"capability", "decided"}),
		admissionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afcp_admission_rejections_total",
			Help: "Total admission rejections by reason.",
		}, []string{"reason"}),
	}

	promReg.MustRegister(
		e.routeRequests,
		e.routeLatencySeconds,
		e.consensusTotal,
		e.admissionRejections,
		&registrySnapshotCollector{registry: reg},
	)

	return e
}

func (e *MetricsExporter) recordRouteOutcome(capability, outcome string, elapsed time.Duration) {
	e.routeRequests.WithLabelValues(capability, outcome).Inc()
	e.routeLatencySeconds.WithLabelValues(capability).Observe(elapsed.Seconds())
}

func (e *MetricsExporter) recordConsensus(capability string, decided bool) {
	e.consensusTotal.WithLabelValues(capability, boolLabel(decided)).Inc()
}

func (e *MetricsExporter) recordAdmissionRejection(reason string) {
	e.admissionRejections.WithLabelValues(reason).Inc()
}

// recordTick is a hook for the Health Monitor; the gauge families it
// would otherwise update are instead computed live by
// registrySnapshotCollector, so this only exists to keep the call site
// symmetrical with the other components' recordX hooks and to leave a
// documented extension point if a future tick-scoped counter is added.
func (e *MetricsExporter) recordTick(map[Health]int, map[string]float64) {}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Text renders the full OpenMetrics text exposition payload, escaping
// label values per §4.7 and terminating with "# EOF" (both handled by
// expfmt's OpenMetrics encoder).
func (e *MetricsExporter) Text() ([]byte, error) {
	families, err := e.promReg.Gather()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeOpenMetrics))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, err
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// registrySnapshotCollector projects live Registry state into the
// afcp_agents_total, afcp_capabilities_total and afcp_load_avg gauge
// families at scrape time, rather than tracking them incrementally —
// the Metrics Exporter is documented as a read-only projection (spec
// §2), so these three families are recomputed from source on every
// Collect rather than mutated by the components that change agent state.
type registrySnapshotCollector struct {
	registry *Registry
}

func (c *registrySnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descAgentsTotal
	ch <- descCapabilitiesTotal
	ch <- descLoadAvg
}

func (c *registrySnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.registry.healthCounts()
	for health, n := range counts {
		ch <- prometheus.MustNewConstMetric(descAgentsTotal, prometheus.GaugeValue, float64(n), string(health))
	}

	ch <- prometheus.MustNewConstMetric(descCapabilitiesTotal, prometheus.GaugeValue, float64(c.registry.capabilityCount()))

	loads := c.registry.snapshotLoads()
	for agentID, load := range loads {
		ch <- prometheus.MustNewConstMetric(descLoadAvg, prometheus.GaugeValue, load, agentID)
	}
}
