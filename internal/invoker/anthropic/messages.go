package anthropic

import (
	"math"
	"strings"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/invoker"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model         string    `json:"model"`
	Messages      []message `json:"messages"`
	System        string    `json:"system,omitempty"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	TopK          *int      `json:"top_k,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

// toMessagesRequest maps adapted parameters onto the Messages API. System
// and developer turns are joined into the system prompt; parameters the API
// has no field for are not sent.
func toMessagesRequest(req *capability.Request, msgs []invoker.Message, defaultMax int) messagesRequest {
	out := messagesRequest{
		Model:     req.Model,
		MaxTokens: defaultMax,
	}

	var system []string
	for _, m := range msgs {
		switch m.Role {
		case "system", "developer":
			system = append(system, m.Content)
		case "assistant":
			out.Messages = append(out.Messages, message{Role: "assistant", Content: m.Content})
		default:
			out.Messages = append(out.Messages, message{Role: "user", Content: m.Content})
		}
	}
	if req.Path == capability.PathJSONMode {
		system = append(system, jsonInstruction)
	}
	out.System = strings.Join(system, "\n")

	p := req.Params
	if n, ok := toInt(p[capability.ParamMaxTokens]); ok && n > 0 {
		out.MaxTokens = n
	}
	if f, ok := toFloat(p[capability.ParamTemperature]); ok {
		out.Temperature = &f
	}
	if f, ok := toFloat(p[capability.ParamTopP]); ok {
		out.TopP = &f
	}
	if n, ok := toInt(p["top_k"]); ok {
		out.TopK = &n
	}
	out.StopSequences = toStrings(p["stop"])

	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
