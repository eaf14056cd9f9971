package llmgw

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/docengine/itdoc/internal/apperr"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/pkg/fn"
	"github.com/docengine/itdoc/pkg/metrics"
	"github.com/docengine/itdoc/pkg/resilience"
)

const (
	maxAttempts  = 3
	backoffBase  = 2 * time.Second
	backoffCap   = 10 * time.Second
)

// MetricSink receives an AiCallMetric after every attempt. Gateway calls it
// synchronously on the calling goroutine, so the call returns only after
// the sink does; the sink reports no error back.
type MetricSink interface {
	RecordAiCall(domain.AiCallMetric)
}

// noopSink discards metrics; used when the caller wires none.
type noopSink struct{}

func (noopSink) RecordAiCall(domain.AiCallMetric) {}

// Fallback configures the opt-in cached/default response behavior on
// terminal ChatCompletion failure (spec.md §4.4). Disabled by default.
type Fallback struct {
	Enabled bool
	Default ChatResponse
}

// Gateway wraps a Transport with retry/backoff, a circuit breaker, and
// metric emission (spec.md §4.4).
type Gateway struct {
	Transport Transport
	Breaker   *resilience.Breaker
	Metrics   MetricSink
	Registry  *metrics.Registry
	Fallback  Fallback

	// BackoffBase/BackoffCap default to backoffBase/backoffCap; tests
	// override them to keep retry tests fast.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	callCounter *metrics.Counter
	failCounter *metrics.Counter
	latencyHist *metrics.Histogram

	cacheMu   sync.Mutex
	respCache map[string]ChatResponse
}

// NewGateway builds a Gateway. reg may be nil, in which case no Prometheus
// metrics are exported (only MetricSink rows, if sink is non-nil).
func NewGateway(transport Transport, sink MetricSink, reg *metrics.Registry) *Gateway {
	g := &Gateway{
		Transport:   transport,
		Breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
		Metrics:     sink,
		Registry:    reg,
		BackoffBase: backoffBase,
		BackoffCap:  backoffCap,
		respCache:   make(map[string]ChatResponse),
	}
	if g.Metrics == nil {
		g.Metrics = noopSink{}
	}
	if reg != nil {
		g.callCounter = reg.Counter("llmgw_calls_total", "total LLM gateway calls")
		g.failCounter = reg.Counter("llmgw_failures_total", "failed LLM gateway calls")
		g.latencyHist = reg.Histogram("llmgw_call_latency_seconds", "LLM call latency", nil)
	}
	return g
}

// ChatCompletion performs a retrying chat-completion call. documentID may
// be empty for calls not tied to a document (e.g. classifier escalation).
func (g *Gateway) ChatCompletion(ctx context.Context, documentID, callType string, req ChatRequest) (ChatResponse, error) {
	var lastErr error
	retries := 0
	wait := g.BackoffBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		resp, err := g.callOnce(ctx, req)
		elapsed := time.Since(start)

		g.emitMetric(documentID, callType, err, retries, elapsed)
		if g.latencyHist != nil {
			g.latencyHist.Observe(elapsed.Seconds())
		}
		if g.callCounter != nil {
			g.callCounter.Inc()
		}

		if err == nil {
			if req.AllowFallback {
				g.cachePut(req.Messages, resp)
			}
			return resp, nil
		}
		lastErr = err
		if g.failCounter != nil {
			g.failCounter.Inc()
		}
		if !isRetryable(err) || attempt == maxAttempts {
			break
		}
		retries++

		sleepDur := jitter(wait)
		if d := retryAfterDelay(err); d > 0 {
			sleepDur = d
		}
		select {
		case <-ctx.Done():
			if resp, ok := g.fallbackFor(req); ok {
				return resp, nil
			}
			return ChatResponse{}, apperr.Wrap(apperr.KindTimeout, "llmgw", "context done during backoff", ctx.Err())
		case <-time.After(sleepDur):
		}
		wait *= 2
		if wait > g.BackoffCap {
			wait = g.BackoffCap
		}
	}
	if resp, ok := g.fallbackFor(req); ok {
		return resp, nil
	}
	return ChatResponse{}, apperr.Wrap(apperr.KindAiCallFailed, "llmgw", "exhausted retries", lastErr)
}

// fallbackFor returns the opt-in cached-or-default response for a
// terminally failed call. Callers must set req.AllowFallback; structured
// view artifact producers never do (spec.md §4.4).
func (g *Gateway) fallbackFor(req ChatRequest) (ChatResponse, bool) {
	if !req.AllowFallback || !g.Fallback.Enabled {
		return ChatResponse{}, false
	}
	if cached, ok := g.cacheGet(req.Messages); ok {
		return cached, true
	}
	return g.Fallback.Default, true
}

func (g *Gateway) cachePut(messages []Message, resp ChatResponse) {
	key := messageCacheKey(messages)
	g.cacheMu.Lock()
	g.respCache[key] = resp
	g.cacheMu.Unlock()
}

func (g *Gateway) cacheGet(messages []Message) (ChatResponse, bool) {
	key := messageCacheKey(messages)
	g.cacheMu.Lock()
	resp, ok := g.respCache[key]
	g.cacheMu.Unlock()
	return resp, ok
}

// messageCacheKey hashes a request's messages so identical prompts share a
// cached fallback response (spec.md §4.4).
func messageCacheKey(messages []Message) string {
	b, _ := json.Marshal(messages)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (g *Gateway) callOnce(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	err := g.Breaker.Call(ctx, func(ctx context.Context) error {
		r, e := g.Transport.ChatCompletion(ctx, req)
		resp = r
		return e
	})
	if err == resilience.ErrCircuitOpen {
		return ChatResponse{}, apperr.New(apperr.KindAiCallFailed, "llmgw", "circuit breaker open")
	}
	return resp, err
}

func (g *Gateway) emitMetric(documentID, callType string, err error, retries int, elapsed time.Duration) {
	status := "success"
	errType := ""
	if err != nil {
		status = "failed"
		errType = string(apperr.KindOf(err))
	}
	g.Metrics.RecordAiCall(domain.AiCallMetric{
		DocumentID:     documentID,
		CallType:       callType,
		Status:         status,
		ResponseTimeMS: elapsed.Milliseconds(),
		ErrorType:      errType,
		RetryCount:     retries,
	})
}

func isRetryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindTimeout, apperr.KindNetworkError, apperr.KindRateLimited, apperr.KindServerError:
		return true
	default:
		return false
	}
}

// retryAfterDelay parses a "retry_after=Ns" hint embedded by the transport
// for rate_limited errors; returns 0 if absent.
func retryAfterDelay(err error) time.Duration {
	if apperr.KindOf(err) != apperr.KindRateLimited {
		return 0
	}
	msg := err.Error()
	idx := strings.Index(msg, "retry_after=")
	if idx == -1 {
		return 0
	}
	rest := msg[idx+len("retry_after="):]
	end := strings.IndexByte(rest, 's')
	if end == -1 {
		return 0
	}
	var secs int
	if _, scanErr := fmtSscan(rest[:end], &secs); scanErr != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func fmtSscan(s string, out *int) (int, error) {
	n := 0
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	start := i
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			break
		}
		n = n*10 + int(s[i]-'0')
	}
	if i == start {
		return 0, apperr.New(apperr.KindParseError, "llmgw", "no digits")
	}
	if neg {
		n = -n
	}
	*out = n
	return 1, nil
}

func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

// jsonRequest carries one GenerateJSON call's request state between the
// two fn.Stage steps below.
type jsonRequest struct {
	documentID, callType, schemaHint string
	messages                         []Message
}

// jsonAttempt is the outcome of the first ChatCompletion call: ok means
// the response already parsed as JSON, so the second stage can skip the
// repair round-trip entirely.
type jsonAttempt struct {
	req     jsonRequest
	obj     map[string]any
	ok      bool
	content string
}

// GenerateJSON requests a JSON object matching schemaHint, repairing once
// on parse failure and falling back to best-effort balanced-brace
// extraction (spec.md §4.4). Composed from two fn.Stage steps via
// fn.Then: a transport-level ChatCompletion error from either stage
// propagates immediately with no repair attempt, while a parse failure on
// an otherwise-successful response is represented as an Ok jsonAttempt so
// it can be retried without being mistaken for a transport error.
func (g *Gateway) GenerateJSON(ctx context.Context, documentID, callType, schemaHint string, messages []Message) (map[string]any, error) {
	stage := fn.Then(g.firstAttemptStage(), g.repairStage())
	result := stage(ctx, jsonRequest{documentID: documentID, callType: callType, schemaHint: schemaHint, messages: messages})
	return result.Unwrap()
}

func (g *Gateway) firstAttemptStage() fn.Stage[jsonRequest, jsonAttempt] {
	return func(ctx context.Context, req jsonRequest) fn.Result[jsonAttempt] {
		resp, err := g.ChatCompletion(ctx, req.documentID, req.callType, ChatRequest{Messages: req.messages, Temperature: 0})
		if err != nil {
			return fn.Err[jsonAttempt](err)
		}
		if obj, parseErr := parseJSONObject(resp.Content); parseErr == nil {
			return fn.Ok(jsonAttempt{req: req, obj: obj, ok: true})
		}
		return fn.Ok(jsonAttempt{req: req, content: resp.Content})
	}
}

func (g *Gateway) repairStage() fn.Stage[jsonAttempt, map[string]any] {
	return func(ctx context.Context, a jsonAttempt) fn.Result[map[string]any] {
		if a.ok {
			return fn.Ok(a.obj)
		}

		repairMessages := append(append([]Message{}, a.req.messages...), Message{
			Role: "user",
			Content: "Your previous response was not valid JSON matching this shape: " + a.req.schemaHint +
				". Respond with ONLY the corrected JSON object, no commentary.",
		})
		resp, err := g.ChatCompletion(ctx, a.req.documentID, a.req.callType+"_repair", ChatRequest{Messages: repairMessages, Temperature: 0})
		if err != nil {
			return fn.Err[map[string]any](err)
		}
		if obj, parseErr := parseJSONObject(resp.Content); parseErr == nil {
			return fn.Ok(obj)
		}
		if obj, ok := extractBalancedJSON(resp.Content); ok {
			return fn.Ok(obj)
		}
		return fn.Err[map[string]any](apperr.New(apperr.KindParseError, "llmgw", "invalid_response: could not parse JSON after repair"))
	}
}

func parseJSONObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// extractBalancedJSON finds the first balanced {...} substring and parses
// it, as a last-resort fallback when the model wraps JSON in prose.
func extractBalancedJSON(s string) (map[string]any, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return nil, false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				obj, err := parseJSONObject(s[start : i+1])
				if err != nil {
					return nil, false
				}
				return obj, true
			}
		}
	}
	return nil, false
}
