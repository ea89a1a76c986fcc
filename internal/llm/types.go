package llm

// CacheControl marks a block as a prompt-cache breakpoint so the
// provider can deduplicate the shared prefix across calls.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// ImageSource is a base64 inline image.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is one element of a message or system prompt.
type ContentBlock struct {
	Type         string        `json:"type"` // "text" | "image"
	Text         string        `json:"text,omitempty"`
	Source       *ImageSource  `json:"source,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// TextBlock builds a plain text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// CachedTextBlock builds a text block with an ephemeral cache hint.
func CachedTextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text, CacheControl: &CacheControl{Type: "ephemeral"}}
}

// ImageBlock builds an inline base64 image block.
func ImageBlock(mediaType, base64Data string) ContentBlock {
	return ContentBlock{
		Type:   "image",
		Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: base64Data},
	}
}

// Message is one conversational turn.
type Message struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []ContentBlock `json:"content"`
}

// Thinking enables the provider's extended reasoning budget.
type Thinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

// Tool is a provider-defined tool entry (e.g. web search).
type Tool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

// WebSearchTool is the provider's hosted search tool.
func WebSearchTool(maxUses int) Tool {
	return Tool{Type: "web_search_20250305", Name: "web_search", MaxUses: maxUses}
}

// Request is one Messages API call.
type Request struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    []ContentBlock `json:"system,omitempty"`
	Messages  []Message      `json:"messages"`
	Thinking  *Thinking      `json:"thinking,omitempty"`
	Tools     []Tool         `json:"tools,omitempty"`
	Stream    bool           `json:"stream,omitempty"`
}

// Usage is the token accounting returned with every response.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// ResponseBlock is one block of model output.
type ResponseBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Response is the assembled (possibly streamed) API result.
type Response struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Content    []ResponseBlock `json:"content"`
	Usage      Usage           `json:"usage"`
}

// Text concatenates all text blocks of the response.
func (r *Response) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}
