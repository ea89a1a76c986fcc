// Package llm carries the model-provider REST surface: multimodal
// messages, prompt-cache hints, extended thinking and server-side web
// search, with SSE streaming for long calls.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// ErrNotConfigured is returned when no API key is set. Callers decide
// their own degraded behaviour (the screener fails open, the entry
// confirmer fails closed).
var ErrNotConfigured = errors.New("llm: no API key configured")

// Caller is the narrow interface the analysis tiers depend on. Tests
// substitute a fake.
type Caller interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Client is the REST client for the Messages API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a client. An empty apiKey yields a client whose
// calls return ErrNotConfigured.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		// Individual calls carry their own context deadlines; this is the
		// hard ceiling for the largest streamed analysis.
		client: &http.Client{Timeout: 5 * time.Minute},
		log:    log.With().Str("client", "llm").Logger(),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Complete executes one Messages call. When req.Stream is set the SSE
// stream is consumed and assembled into a regular Response.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("model call returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result *Response
	if req.Stream {
		result, err = readStream(resp.Body)
	} else {
		result = &Response{}
		err = json.NewDecoder(resp.Body).Decode(result)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model response: %w", err)
	}

	c.log.Info().
		Str("model", req.Model).
		Bool("streamed", req.Stream).
		Dur("elapsed", time.Since(start)).
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Int("cache_read", result.Usage.CacheReadInputTokens).
		Int("cache_write", result.Usage.CacheCreationInputTokens).
		Msg("Model call completed")
	return result, nil
}
