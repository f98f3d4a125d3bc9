package afcp

import (
	"strings"
	"testing"
	"time"
)

func TestMetricsTextContainsAllFamilies(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRegistry(clock)
	if err := r.Upsert(Agent{ID: "a", Capabilities: []string{"x"}, Health: HealthActive, LoadAvg: 0.3}); err != nil {
		t.Fatal(err)
	}

	m := NewMetricsExporter(r)
	m.recordRouteOutcome("x", "success", 10*time.Millisecond)
	m.recordConsensus("x", true)
	m.recordAdmissionRejection("window")

	text, err := m.Text()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(text)

	wantFamilies := []string{
		"afcp_agents_total",
		"afcp_capabilities_total",
		"afcp_load_avg",
		"afcp_route_requests_total",
		"afcp_route_latency_seconds",
		"afcp_consensus_total",
		"afcp_admission_rejections_total",
	}
	for _, f := range wantFamilies {
		if !strings.Contains(body, f) {
			t.Errorf("expected metric family %q in output", f)
		}
	}
}

func TestMetricsTextTerminatesWithEOF(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRegistry(clock)
	m := NewMetricsExporter(r)

	text, err := m.Text()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trimmed := strings.TrimRight(string(text), "\n")
	if !strings.HasSuffix(trimmed, "# EOF") {
		t.Fatalf("expected OpenMetrics output to terminate with \"# EOF\", got tail: %q", tail(trimmed, 40))
	}
}

func TestMetricsAgentsTotalReflectsHealthCounts(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRegistry(clock)
	_ = r.Upsert(Agent{ID: "a", Capabilities: []string{"x"}, Health: HealthActive})
	_ = r.Upsert(Agent{ID: "b", Capabilities: []string{"x"}, Health: HealthOffline})

	m := NewMetricsExporter(r)
	text, err := m.Text()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(text)

	if !strings.Contains(body, `afcp_agents_total{health="active"} 1`) {
		t.Errorf("expected one active agent counted, got body:\n%s", body)
	}
	if !strings.Contains(body, `afcp_agents_total{health="offline"} 1`) {
		t.Errorf("expected one offline agent counted, got body:\n%s", body)
	}
}

func TestMetricsLoadAvgLabelsByAgent(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRegistry(clock)
	_ = r.Upsert(Agent{ID: "worker-1", Capabilities: []string{"x"}, LoadAvg: 0.42})

	m := NewMetricsExporter(r)
	text, err := m.Text()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(text)
	if !strings.Contains(body, `afcp_load_avg{agent="worker-1"} 0.42`) {
		t.Errorf("expected load_avg labeled by agent id, got body:\n%s", body)
	}
}

func TestMetricsHistogramBucketsMatchSpec(t *testing.T) {
	want := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	if len(HistogramBuckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(HistogramBuckets))
	}
	for i, b := range want {
		if HistogramBuckets[i] != b {
			t.Errorf("bucket %d: expected %v, got %v", i, b, HistogramBuckets[i])
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
