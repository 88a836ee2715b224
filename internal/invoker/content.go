package invoker

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ThinkStart = "<think>"
	ThinkEnd   = "</think>"
)

// ExtractThinking separates <think>...</think> blocks from the rest of text.
// An unterminated block runs to the end of the text.
func ExtractThinking(text string) (content string, reasoning string) {
	var contentBuilder strings.Builder
	var reasoningBuilder strings.Builder

	cursor := 0
	for cursor < len(text) {
		startIdx := strings.Index(text[cursor:], ThinkStart)
		if startIdx == -1 {
			contentBuilder.WriteString(text[cursor:])
			break
		}

		realStart := cursor + startIdx
		contentBuilder.WriteString(text[cursor:realStart])
		cursor = realStart + len(ThinkStart)

		endIdx := strings.Index(text[cursor:], ThinkEnd)
		if endIdx == -1 {
			reasoningBuilder.WriteString(text[cursor:])
			break
		}

		realEnd := cursor + endIdx
		reasoningBuilder.WriteString(text[cursor:realEnd])
		cursor = realEnd + len(ThinkEnd)
	}

	return contentBuilder.String(), reasoningBuilder.String()
}

// DecodeJSON parses model output that should be a JSON document. Markdown
// code fences around the document are tolerated.
func DecodeJSON(content string) (any, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, ErrEmptyResponse
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}
