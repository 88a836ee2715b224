package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/invoker"
	"github.com/nulzo/model-helpers/internal/invoker/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	payload := map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "gpt-4o-2024-08-06",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":         9,
			"completion_tokens":     12,
			"total_tokens":          21,
			"prompt_tokens_details": map[string]any{"cached_tokens": 4},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"message":"` + msg + `","type":"invalid_request_error","param":null,"code":null}}`))
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func newInvoker(url string) (*openai.Invoker, *capability.Resolver) {
	resolver := capability.NewResolver(nil, nil)
	return openai.New(openai.Config{APIKey: "test-key", BaseURL: url, MaxRetries: 0}, resolver, nil), resolver
}

var messages = []invoker.Message{
	{Role: "system", Content: "Be terse."},
	{Role: "user", Content: "Hi"},
}

func TestInvoke_Plain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "o3-mini", body["model"])
		assert.Equal(t, float64(100), body["max_completion_tokens"])
		assert.NotContains(t, body, "max_tokens")
		assert.NotContains(t, body, "temperature")
		assert.Len(t, body["messages"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("Hello there!")))
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.O3Mini, capability.Parameters{"max_tokens": 100, "temperature": 0.5}, capability.None())
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	require.NoError(t, err)

	assert.Equal(t, "Hello there!", res.Content)
	assert.Nil(t, res.Parsed)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, 9, res.Usage.PromptTokens)
	assert.Equal(t, 12, res.Usage.CompletionTokens)
	assert.Equal(t, 4, res.Usage.CachedTokens)
	assert.Equal(t, capability.PathPlain, res.Path)
	assert.Equal(t, capability.OpenAI, inv.Provider())
}

func TestInvoke_TokenParamSwap(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if calls.Add(1) == 1 {
			assert.Contains(t, body, "max_tokens")
			writeError(w, http.StatusBadRequest, "Unsupported parameter: 'max_tokens' is not supported with this model. Use 'max_completion_tokens' instead.")
			return
		}
		assert.NotContains(t, body, "max_tokens")
		assert.Equal(t, float64(64), body["max_completion_tokens"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT4o, capability.Parameters{"max_tokens": 64}, capability.None())
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func responseSchema(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	rf, ok := body["response_format"].(map[string]any)
	if !assert.True(t, ok, "response_format missing") {
		return nil
	}
	assert.Equal(t, "json_schema", rf["type"])
	js, _ := rf["json_schema"].(map[string]any)
	assert.Equal(t, "Person", js["name"])
	assert.Equal(t, true, js["strict"])
	schema, _ := js["schema"].(map[string]any)
	return schema
}

var openPersonSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"name": map[string]any{"type": "string"}},
}

func TestInvoke_BetaSendsStrictSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		schema := responseSchema(t, decodeBody(t, r))
		assert.Equal(t, false, schema["additionalProperties"])
		assert.Equal(t, []any{"name"}, schema["required"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"name":"Ada"}`)))
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT4o, capability.Parameters{}, capability.Structured("Person", openPersonSchema))
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	require.NoError(t, err)
	assert.Equal(t, capability.PathSchemaBeta, res.Path)
	assert.Equal(t, map[string]any{"name": "Ada"}, res.Parsed)
	assert.NotContains(t, openPersonSchema, "required", "caller schema must not be modified")
}

func TestInvoke_BetaFallsBackToLegacy(t *testing.T) {
	var (
		mu      sync.Mutex
		schemas []map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		schema := responseSchema(t, decodeBody(t, r))
		mu.Lock()
		schemas = append(schemas, schema)
		n := len(schemas)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			// valid JSON, wrong shape for the strict schema
			_, _ = w.Write([]byte(completionBody(`{"name":42}`)))
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"name":"Ada"}`)))
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT4o, capability.Parameters{}, capability.Structured("Person", openPersonSchema))
	require.NoError(t, err)
	require.Equal(t, capability.PathSchemaBeta, req.Path)

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	require.NoError(t, err)
	assert.Equal(t, capability.PathSchemaLegacy, res.Path)
	assert.Equal(t, map[string]any{"name": "Ada"}, res.Parsed)

	require.Len(t, schemas, 2)
	assert.NotEqual(t, schemas[0], schemas[1])
	assert.Contains(t, schemas[0], "additionalProperties")
	assert.NotContains(t, schemas[1], "additionalProperties")
	assert.NotContains(t, schemas[1], "required")
}

func TestInvoke_BetaDoesNotRetryUpstreamErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadRequest, "invalid schema")
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT4o, capability.Parameters{}, capability.Structured("P", map[string]any{"type": "object"}))
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvoke_LegacyDoesNotValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		schema := responseSchema(t, decodeBody(t, r))
		assert.Equal(t, openPersonSchema, schema)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"name":42}`)))
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT4o, capability.Parameters{}, capability.Structured("Person", openPersonSchema), capability.WithoutBetaParse())
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": float64(42)}, res.Parsed)
}

func TestInvoke_JSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"answer": 42}`)))
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT35Turbo, capability.Parameters{}, capability.JSONObject())
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": float64(42)}, res.Parsed)
}

func TestInvoke_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "bad key")
	}))
	defer server.Close()

	inv, resolver := newInvoker(server.URL)
	req, err := resolver.Adapt(capability.GPT4, capability.Parameters{}, capability.None())
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: messages})
	assert.Error(t, err)
}
