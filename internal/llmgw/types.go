// Package llmgw talks to a remote chat-completion LLM through a narrow,
// provider-agnostic transport, wrapping every call in retry/backoff,
// a circuit breaker, and metrics (spec.md §4.4).
package llmgw

import "context"

// Message is one turn in a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single chat-completion call.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`

	// AllowFallback opts this call into the Gateway's cached/default
	// fallback on terminal failure (spec.md §4.4). Callers that produce
	// structured view artifacts must leave this false: a view processor
	// fed a stale or default chat response would silently emit a
	// fabricated artifact instead of raising. GenerateJSON never sets
	// this on the caller's behalf.
	AllowFallback bool `json:"-"`
}

// ChatResponse is the transport-level reply.
type ChatResponse struct {
	Content string `json:"content"`
}

// Transport is the narrow capability a concrete provider implements.
// HTTPTransport talks to a real endpoint; MockTransport is used in tests
// and in deployments with LLM_MOCK_ENABLED set (spec.md §4.4, §9).
type Transport interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
