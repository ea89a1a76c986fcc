package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// streamEvent is the union of the SSE event payloads we care about.
// Thinking deltas and tool-use blocks are consumed but not kept; only
// final text and token usage matter to the callers.
type streamEvent struct {
	Type string `json:"type"`

	Message *struct {
		Usage Usage `json:"usage"`
	} `json:"message,omitempty"`

	ContentBlock *struct {
		Type string `json:"type"`
	} `json:"content_block,omitempty"`

	Index int `json:"index"`

	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`

	Usage *Usage `json:"usage,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// readStream assembles the SSE event stream into a Response.
func readStream(r io.Reader) (*Response, error) {
	resp := &Response{}
	var text strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// A malformed event should not lose the rest of the stream.
			continue
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				resp.Usage = ev.Message.Usage
			}
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" {
				text.WriteString(ev.Delta.Text)
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				resp.StopReason = ev.Delta.StopReason
			}
			if ev.Usage != nil {
				resp.Usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "error":
			if ev.Error != nil {
				return nil, fmt.Errorf("stream error (%s): %s", ev.Error.Type, ev.Error.Message)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}

	resp.Content = []ResponseBlock{{Type: "text", Text: text.String()}}
	return resp, nil
}
