package afcp

import (
	"context"
	"fmt"
)

// TransportErrorKind classifies a Transport-level failure, per the
// Transport contract: implementations return one of these four kinds.
type TransportErrorKind string

const (
	TransportTimeout  TransportErrorKind = "Timeout"
	TransportRefused  TransportErrorKind = "Refused"
	TransportProtocol TransportErrorKind = "Protocol"
	TransportUnknown  TransportErrorKind = "Unknown"
)

// TransportError is the error type a Transport implementation returns.
type TransportError struct {
	Kind  TransportErrorKind
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("transport: %s", e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Transport is the pluggable abstraction AFCP dispatches work through.
// Implementations are concrete agent transports (HTTP, mTLS, gRPC) and
// are external collaborators to the control plane: AFCP only ever calls
// Send and interprets its result.
type Transport interface {
	// Send delivers payload to endpoint for the given capability and
	// must honor ctx's deadline/cancellation, aborting in-flight I/O
	// when ctx is done. Returns the agent's response bytes, or a
	// *TransportError.
	Send(ctx context.Context, endpoint, capability string, payload []byte) ([]byte, error)
}
