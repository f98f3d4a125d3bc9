package afcp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newDispatcherFixture(t *testing.T) (*Dispatcher, *Registry, *fakeTransport) {
	t.Helper()
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRegistry(clock)
	if err := r.Upsert(Agent{ID: "a", Endpoint: "ep-a", Capabilities: []string{"x"}, LoadAvg: 0.5, Health: HealthActive}); err != nil {
		t.Fatal(err)
	}
	transport := newFakeTransport()
	admission := NewAdmissionController(AdmissionConfig{WindowLength: time.Minute, MaxRequests: 1000, Burst: 1000}, clock)
	selector := NewSelector(r)
	d := NewDispatcher(r, selector, admission, transport)
	return d, r, transport
}

func TestDispatchSuccessDecaysLoad(t *testing.T) {
	d, r, transport := newDispatcherFixture(t)
	transport.setOK("ep-a", []byte("hello"))

	got, err := d.Dispatch(context.Background(), "x", []byte("payload"), RouteOptions{}, "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected hello, got %s", got)
	}

	a, _ := r.Get("a")
	if a.LoadAvg != 0.45 {
		t.Fatalf("expected loadAvg decayed to 0.45, got %v", a.LoadAvg)
	}
}

func TestDispatchAgentErrorPenalizesLoadAndDegrades(t *testing.T) {
	d, r, transport := newDispatcherFixture(t)
	transport.setError("ep-a", &TransportError{Kind: TransportRefused, Cause: errors.New("nope")})

	_, err := d.Dispatch(context.Background(), "x", []byte("p"), RouteOptions{}, "client-1")
	var afcpErr *Error
	if !errors.As(err, &afcpErr) || afcpErr.Kind != KindAgentError {
		t.Fatalf("expected AgentError, got %v", err)
	}
	if afcpErr.AgentID != "a" {
		t.Fatalf("expected failing agent id a, got %s", afcpErr.AgentID)
	}

	a, _ := r.Get("a")
	if a.LoadAvg < 0.69 || a.LoadAvg > 0.71 {
		t.Fatalf("expected loadAvg ~0.7, got %v", a.LoadAvg)
	}
	if a.Health != HealthDegraded {
		t.Fatalf("expected degraded, got %v", a.Health)
	}
}

func TestDispatchFailureNeverUpgradesOfflineToDegraded(t *testing.T) {
	d, r, transport := newDispatcherFixture(t)
	r.Heartbeat("a", nil) // keep lastHeartbeat fresh, then force offline directly
	offline := HealthOffline
	r.Heartbeat("a", &HeartbeatUpdate{Health: &offline})
	transport.setError("ep-a", &TransportError{Kind: TransportRefused, Cause: errors.New("nope")})

	_, err := d.Dispatch(context.Background(), "x", []byte("p"), RouteOptions{RequireHealthy: boolPtr(false)}, "client-1")
	if err == nil {
		t.Fatal("expected error")
	}

	a, _ := r.Get("a")
	if a.Health != HealthOffline {
		t.Fatalf("expected health to remain offline, got %v", a.Health)
	}
}

func TestDispatchNoAgentAvailable(t *testing.T) {
	d, _, _ := newDispatcherFixture(t)
	_, err := d.Dispatch(context.Background(), "nonexistent-capability", []byte("p"), RouteOptions{}, "client-1")
	var afcpErr *Error
	if !errors.As(err, &afcpErr) || afcpErr.Kind != KindNoAgentAvailable {
		t.Fatalf("expected NoAgentAvailable, got %v", err)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewRegistry(clock)
	_ = r.Upsert(Agent{ID: "a", Endpoint: "ep-a", Capabilities: []string{"x"}})
	transport := newFakeTransport()
	admission := NewAdmissionController(AdmissionConfig{WindowLength: time.Minute, MaxRequests: 1, Burst: 1}, clock)
	d := NewDispatcher(r, NewSelector(r), admission, transport)

	if _, err := d.Dispatch(context.Background(), "x", nil, RouteOptions{}, "c1"); err != nil {
		t.Fatalf("expected first call admitted: %v", err)
	}
	_, err := d.Dispatch(context.Background(), "x", nil, RouteOptions{}, "c1")
	var afcpErr *Error
	if !errors.As(err, &afcpErr) || afcpErr.Kind != KindRateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	if afcpErr.RetryAfterSeconds < 1 {
		t.Fatalf("expected retryAfter >= 1s, got %v", afcpErr.RetryAfterSeconds)
	}
}

func TestDispatchTimeout(t *testing.T) {
	d, r, transport := newDispatcherFixture(t)
	transport.setDelay("ep-a", 50*time.Millisecond)

	_, err := d.Dispatch(context.Background(), "x", nil, RouteOptions{Timeout: 5 * time.Millisecond}, "c1")
	var afcpErr *Error
	if !errors.As(err, &afcpErr) || afcpErr.Kind != KindTimeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
	a, _ := r.Get("a")
	if a.Health != HealthDegraded {
		t.Fatalf("expected timeout to apply failure feedback (degraded), got %v", a.Health)
	}
}

func TestDispatchCancellationDoesNotMutateState(t *testing.T) {
	d, r, transport := newDispatcherFixture(t)
	transport.setDelay("ep-a", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	before, _ := r.Get("a")
	_, err := d.Dispatch(ctx, "x", nil, RouteOptions{Timeout: 10 * time.Second}, "c1")
	var afcpErr *Error
	if !errors.As(err, &afcpErr) || afcpErr.Kind != KindCancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}

	after, _ := r.Get("a")
	if after.LoadAvg != before.LoadAvg || after.Health != before.Health {
		t.Fatalf("expected no state mutation on cancellation, before=%+v after=%+v", before, after)
	}
}

func boolPtr(b bool) *bool { return &b }
