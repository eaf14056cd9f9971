package llmgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/docengine/itdoc/internal/apperr"
)

// HTTPTransport calls a generic chat-completions endpoint over HTTP. No
// vendor SDK in the corpus fits a provider-agnostic base-URL/API-key/model
// shape, so this talks raw JSON over net/http (documented in DESIGN.md).
type HTTPTransport struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

// NewHTTPTransport builds a transport with a sensible client timeout; the
// caller still applies its own context deadline per call.
func NewHTTPTransport(baseURL, apiKey, model string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type wireRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type wireChoice struct {
	Message Message `json:"message"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
}

// ChatCompletion POSTs to {BaseURL}/chat/completions and classifies the
// response into the apperr.Kind vocabulary the gateway's retry policy
// understands (spec.md §7's retryable/non-retryable split).
func (t *HTTPTransport) ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(wireRequest{
		Model:       t.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.KindBadRequest, "llmgw", "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.KindBadRequest, "llmgw", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ChatResponse{}, apperr.Wrap(apperr.KindTimeout, "llmgw", "request deadline exceeded", err)
		}
		return ChatResponse{}, apperr.Wrap(apperr.KindNetworkError, "llmgw", "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.KindNetworkError, "llmgw", "read response", err)
	}

	if err := classifyStatus(resp); err != nil {
		return ChatResponse{}, err
	}

	var wr wireResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		return ChatResponse{}, apperr.Wrap(apperr.KindParseError, "llmgw", "invalid JSON response", err)
	}
	if len(wr.Choices) == 0 {
		return ChatResponse{}, apperr.New(apperr.KindParseError, "llmgw", "response had no choices")
	}
	return ChatResponse{Content: wr.Choices[0].Message.Content}, nil
}

// classifyStatus maps an HTTP status to the apperr vocabulary, per
// spec.md §7: 429 is rate_limited, 5xx is server_error, 401 is
// unauthorized, 400 is bad_request.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = secs
			}
		}
		return apperr.New(apperr.KindRateLimited, "llmgw", fmt.Sprintf("rate limited, retry_after=%ds", retryAfter))
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.New(apperr.KindUnauthorized, "llmgw", "unauthorized")
	case resp.StatusCode == http.StatusBadRequest:
		return apperr.New(apperr.KindBadRequest, "llmgw", "bad request")
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindServerError, "llmgw", fmt.Sprintf("server error: %d", resp.StatusCode))
	default:
		return apperr.New(apperr.KindServerError, "llmgw", fmt.Sprintf("unexpected status: %d", resp.StatusCode))
	}
}
