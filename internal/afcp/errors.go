package afcp

import "fmt"

// Kind identifies the category of an AFCP error, per the public error
// contract: InvalidInput, UnknownAgent, NoAgentAvailable, RateLimited,
// Timeout, AgentError, Cancelled.
type Kind string

const (
	KindInvalidInput     Kind = "InvalidInput"
	KindUnknownAgent     Kind = "UnknownAgent"
	KindNoAgentAvailable Kind = "NoAgentAvailable"
	KindRateLimited      Kind = "RateLimited"
	KindTimeout          Kind = "Timeout"
	KindAgentError       Kind = "AgentError"
	KindCancelled        Kind = "Cancelled"
)

// Error is the typed error AFCP's public API returns. Callers branch on
// Kind rather than parsing message strings.
type Error struct {
	Kind    Kind
	Message string

	// AgentID is set for KindAgentError.
	AgentID string
	// RetryAfterSeconds is set for KindRateLimited.
	RetryAfterSeconds float64

	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAgentError:
		return fmt.Sprintf("afcp: %s: agent %s: %s", e.Kind, e.AgentID, e.Message)
	case KindRateLimited:
		return fmt.Sprintf("afcp: %s: %s (retry after %.3fs)", e.Kind, e.Message, e.RetryAfterSeconds)
	default:
		return fmt.Sprintf("afcp: %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, &Error{Kind: KindTimeout}) style matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewInvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func NewUnknownAgent(id string) *Error {
	return &Error{Kind: KindUnknownAgent, Message: fmt.Sprintf("agent %q not found", id), AgentID: id}
}

func NewNoAgentAvailable(capability string) *Error {
	return &Error{Kind: KindNoAgentAvailable, Message: fmt.Sprintf("no agent available for capability %q", capability)}
}

func NewRateLimited(retryAfterSeconds float64) *Error {
	return &Error{Kind: KindRateLimited, Message: "admission rejected request", RetryAfterSeconds: retryAfterSeconds}
}

func NewTimeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

func NewAgentError(agentID string, cause error) *Error {
	msg := "transport error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: KindAgentError, Message: msg, AgentID: agentID, cause: cause}
}

func NewCancelled(msg string) *Error {
	return &Error{Kind: KindCancelled, Message: msg}
}
