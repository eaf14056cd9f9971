package llmgw

import (
	"context"
	"math/rand"
	"strings"

	"github.com/docengine/itdoc/internal/apperr"
)

// MockTransport simulates an LLM provider for tests and for deployments
// with LLM_MOCK_ENABLED set (spec.md §4.4, §9 "global classifier/config
// state" decision: no singleton, this is wired explicitly by the caller).
type MockTransport struct {
	// FailureKind, when set, is returned with probability FailureRate.
	FailureKind  apperr.Kind
	FailureRate  float64
	Rand         *rand.Rand
	EchoResponse string
}

// NewMockTransport builds a deterministic-by-default mock; pass a seeded
// *rand.Rand for reproducible failure injection in tests.
func NewMockTransport(failureKind apperr.Kind, failureRate float64) *MockTransport {
	return &MockTransport{FailureKind: failureKind, FailureRate: failureRate, Rand: rand.New(rand.NewSource(1))}
}

func (m *MockTransport) ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if m.FailureKind != "" && m.FailureRate > 0 && m.Rand.Float64() < m.FailureRate {
		return ChatResponse{}, apperr.New(m.FailureKind, "llmgw", "mock-injected failure")
	}
	if m.EchoResponse != "" {
		return ChatResponse{Content: m.EchoResponse}, nil
	}
	var last string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			last = msg.Content
		}
	}
	return ChatResponse{Content: "{\"echo\":" + quote(last) + "}"}, nil
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
