package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStream_AssemblesTextAndUsage(t *testing.T) {
	stream := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"usage":{"input_tokens":1200,"cache_read_input_tokens":900}}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`,
		``,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"{\"has_setup\": "}}`,
		``,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"true}"}}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":42}}`,
		``,
	}, "\n")

	resp, err := readStream(strings.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, `{"has_setup": true}`, resp.Text())
	assert.Equal(t, 1200, resp.Usage.InputTokens)
	assert.Equal(t, 900, resp.Usage.CacheReadInputTokens)
	assert.Equal(t, 42, resp.Usage.OutputTokens)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestReadStream_ErrorEvent(t *testing.T) {
	stream := `data: {"type":"error","error":{"type":"overloaded_error","message":"try later"}}`

	_, err := readStream(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestComplete_NotConfigured(t *testing.T) {
	c := NewClient("", zerolog.Nop())
	_, err := c.Complete(context.Background(), &Request{Model: "m"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestComplete_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"content": [{"type":"text","text":"{\"confirmed\": false, \"reasoning\": \"no displacement\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 300, "output_tokens": 25}
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", zerolog.Nop())
	c.baseURL = srv.URL

	resp, err := c.Complete(context.Background(), &Request{Model: "m", MaxTokens: 200})
	require.NoError(t, err)
	assert.Contains(t, resp.Text(), "no displacement")
	assert.Equal(t, 300, resp.Usage.InputTokens)
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("test-key", zerolog.Nop())
	c.baseURL = srv.URL

	_, err := c.Complete(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestComplete_Streaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":10}}}\n\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"hello\"}}\n\n" +
				"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n"))
	}))
	defer srv.Close()

	c := NewClient("test-key", zerolog.Nop())
	c.baseURL = srv.URL

	resp, err := c.Complete(context.Background(), &Request{Model: "m", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, 2, resp.Usage.OutputTokens)
}
