package analysis

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls the first JSON object out of a model reply. Models
// wrap output in markdown fences or lead with prose despite the
// "JSON only" instruction, so this tries fenced blocks first, then the
// whole text, then the outermost brace span.
func extractJSON(raw string) (json.RawMessage, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, false
	}

	if strings.Contains(text, "```") {
		for _, part := range strings.Split(text, "```") {
			cleaned := strings.TrimSpace(part)
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "json"))
			if strings.HasPrefix(cleaned, "{") && json.Valid([]byte(cleaned)) {
				return json.RawMessage(cleaned), true
			}
		}
	}

	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return json.RawMessage(text), true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		span := text[start : end+1]
		if json.Valid([]byte(span)) {
			return json.RawMessage(span), true
		}
	}

	return nil, false
}
