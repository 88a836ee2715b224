package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// upstream imitates the Chat Completions API closely enough to push the
// gateway down its recovery paths:
//   - models in rejectMaxTokens refuse max_tokens, forcing a token swap
//   - every other strict-schema reply breaks the schema, forcing the
//     response_format fallback
//   - o-series models refuse sampling parameters, so a leak shows up as a 400
type upstream struct {
	latency         time.Duration
	rejectMaxTokens map[string]bool

	calls          atomic.Int64
	tokenRejects   atomic.Int64
	schemaBreaks   atomic.Int64
	leakedParams   atomic.Int64
	strictRequests atomic.Int64
}

func newUpstream(latency time.Duration) *upstream {
	return &upstream{
		latency:         latency,
		rejectMaxTokens: map[string]bool{"gpt-4o": true},
	}
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	u.calls.Add(1)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeUpstreamError(w, http.StatusBadRequest, "could not parse the JSON body of your request")
		return
	}
	model, _ := body["model"].(string)

	if strings.HasPrefix(model, "o") {
		for _, p := range []string{"temperature", "top_p", "parallel_tool_calls"} {
			if _, ok := body[p]; ok {
				u.leakedParams.Add(1)
				writeUpstreamError(w, http.StatusBadRequest, "Unsupported parameter: '"+p+"' is not supported with this model.")
				return
			}
		}
	}

	if _, ok := body["max_tokens"]; ok && u.rejectMaxTokens[model] {
		u.tokenRejects.Add(1)
		writeUpstreamError(w, http.StatusBadRequest,
			"Unsupported parameter: 'max_tokens' is not supported with this model. Use 'max_completion_tokens' instead.")
		return
	}

	time.Sleep(u.latency)

	content := "Hello from the mock upstream."
	if rf, ok := body["response_format"].(map[string]any); ok {
		switch rf["type"] {
		case "json_object":
			content = `{"ok":true}`
		case "json_schema":
			content = `{"answer":"42"}`
			// only the parse path sends a fully required schema
			if isStrictParse(rf) && u.strictRequests.Add(1)%2 == 1 {
				u.schemaBreaks.Add(1)
				content = `{"answer":42}`
			}
		}
	}

	writeCompletion(w, model, content)
}

func isStrictParse(rf map[string]any) bool {
	js, _ := rf["json_schema"].(map[string]any)
	schema, _ := js["schema"].(map[string]any)
	_, required := schema["required"]
	return required
}

func writeCompletion(w http.ResponseWriter, model, content string) {
	resp := map[string]any{
		"id":      "chatcmpl-bench",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeUpstreamError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error", "param": nil, "code": nil},
	})
}
