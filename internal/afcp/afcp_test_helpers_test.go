package afcp

import (
	"context"
	"sync"
	"time"
)

// fakeTransport is a scriptable Transport for tests, the same role the
// teacher's internal/adapter/llm/mock_client.go plays for the LLM client:
// per-endpoint behavior can be configured, and every call is recorded.
type fakeTransport struct {
	mu sync.Mutex

	// behaviors maps endpoint -> a function computing the response.
	behaviors map[string]func(ctx context.Context) ([]byte, error)
	// delay, if set for an endpoint, is how long Send blocks before
	// checking ctx and returning, used to exercise timeout/cancellation.
	delays map[string]time.Duration

	calls []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		behaviors: make(map[string]func(ctx context.Context) ([]byte, error)),
		delays:    make(map[string]time.Duration),
	}
}

func (f *fakeTransport) setOK(endpoint string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[endpoint] = func(ctx context.Context) ([]byte, error) { return value, nil }
}

func (f *fakeTransport) setError(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[endpoint] = func(ctx context.Context) ([]byte, error) { return nil, err }
}

func (f *fakeTransport) setDelay(endpoint string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[endpoint] = d
}

func (f *fakeTransport) Send(ctx context.Context, endpoint, capability string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint)
	behavior := f.behaviors[endpoint]
	delay := f.delays[endpoint]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &TransportError{Kind: TransportTimeout, Cause: ctx.Err()}
		}
	}

	select {
	case <-ctx.Done():
		return nil, &TransportError{Kind: TransportTimeout, Cause: ctx.Err()}
	default:
	}

	if behavior == nil {
		return []byte("ok"), nil
	}
	return behavior(ctx)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
