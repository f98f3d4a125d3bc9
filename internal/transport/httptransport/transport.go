// Package httptransport provides an HTTP-based afcp.Transport that calls
// each agent's advertised endpoint directly, with no streaming or SSE
// parsing: Dispatch and Consensus are single request/response calls.
package httptransport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/edcet/complete-homelab-orchestrator/internal/afcp"
)

// Transport is an HTTP client for invoking agents over a shared
// *http.Client, honoring the caller's context deadline rather than a
// fixed per-request timeout.
type Transport struct {
	httpClient *http.Client
}

// New constructs a Transport with sane connection-reuse defaults.
func New() *Transport {
	return &Transport{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Send POSTs payload to endpoint + "/invoke" with capability as a header,
// and returns the response body verbatim.
func (t *Transport) Send(ctx context.Context, endpoint, capability string, payload []byte) ([]byte, error) {
	url := strings.TrimSuffix(endpoint, "/") + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &afcp.TransportError{Kind: afcp.TransportProtocol, Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Capability", capability)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &afcp.TransportError{Kind: afcp.TransportProtocol, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &afcp.TransportError{
			Kind:  afcp.TransportRefused,
			Cause: fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(body)),
		}
	}
	return body, nil
}

// classifyErr maps the zoo of errors *http.Client.Do can return into the
// three TransportErrorKind buckets afcp cares about.
func classifyErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &afcp.TransportError{Kind: afcp.TransportTimeout, Cause: ctx.Err()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &afcp.TransportError{Kind: afcp.TransportTimeout, Cause: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &afcp.TransportError{Kind: afcp.TransportRefused, Cause: err}
	}

	return &afcp.TransportError{Kind: afcp.TransportUnknown, Cause: err}
}
