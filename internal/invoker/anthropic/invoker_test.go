package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/httpclient"
	"github.com/nulzo/model-helpers/internal/invoker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func respond(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	b, _ := json.Marshal(text)
	_, _ = w.Write([]byte(`{"id":"msg_01","model":"claude-3-5-sonnet-20241022","content":[{"type":"text","text":` + string(b) + `}],"stop_reason":"end_turn","usage":{"input_tokens":25,"output_tokens":10,"cache_read_input_tokens":5,"cache_creation_input_tokens":7}}`))
}

func adapt(t *testing.T, model string, params capability.Parameters, d capability.Directive) *capability.Request {
	t.Helper()
	req, err := capability.NewResolver(nil, nil).Adapt(model, params, d)
	require.NoError(t, err)
	return req
}

func TestInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-sonnet-latest", body.Model)
		assert.Equal(t, "Be terse.", body.System)
		assert.Equal(t, 256, body.MaxTokens)
		if assert.NotNil(t, body.Temperature) {
			assert.Equal(t, 0.2, *body.Temperature)
		}
		assert.Equal(t, []message{{Role: "user", Content: "Hi"}}, body.Messages)

		respond(w, "<think>short</think>Hello!")
	}))
	defer server.Close()

	inv := New(Config{APIKey: "test-key", BaseURL: server.URL + "/v1"}, server.Client(), nil)
	req := adapt(t, capability.Claude35SonnetLatest, capability.Parameters{"max_completion_tokens": 256, "temperature": 0.2}, capability.None())

	res, err := inv.Invoke(context.Background(), invoker.Call{
		Request: req,
		Messages: []invoker.Message{
			{Role: "system", Content: "Be terse."},
			{Role: "user", Content: "Hi"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello!", res.Content)
	assert.Equal(t, "short", res.Reasoning)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, invoker.Usage{PromptTokens: 37, CompletionTokens: 10, CachedTokens: 5, CacheWriteTokens: 7}, res.Usage)
	assert.Equal(t, capability.Anthropic, inv.Provider())
}

func TestInvoke_JSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.System, jsonInstruction)
		assert.Equal(t, defaultMaxTokens, body.MaxTokens)

		respond(w, "```json\n{\"ok\": true}\n```")
	}))
	defer server.Close()

	inv := New(Config{APIKey: "k", BaseURL: server.URL}, server.Client(), nil)
	req := adapt(t, capability.Claude3Haiku20240307, capability.Parameters{}, capability.JSONObject())

	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: []invoker.Message{{Role: "user", Content: "json please"}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, res.Parsed)
}

func TestInvoke_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	core, logs := observer.New(zapcore.WarnLevel)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		respond(w, "finally")
	}))
	defer server.Close()

	inv := New(Config{
		APIKey:       "k",
		BaseURL:      server.URL,
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
	}, server.Client(), zap.New(core))

	req := adapt(t, capability.Claude21, capability.Parameters{}, capability.None())
	res, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: []invoker.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "finally", res.Content)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, logs.Len())
}

func TestInvoke_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	inv := New(Config{APIKey: "k", BaseURL: server.URL, MaxRetries: 3, InitialDelay: time.Millisecond}, server.Client(), nil)
	req := adapt(t, capability.Claude21, capability.Parameters{}, capability.None())

	_, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: []invoker.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)

	var upstream *httpclient.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, int32(4), calls.Load())
}

func TestInvoke_DoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	inv := New(Config{APIKey: "k", BaseURL: server.URL, MaxRetries: 3, InitialDelay: time.Millisecond}, server.Client(), nil)
	req := adapt(t, capability.Claude21, capability.Parameters{}, capability.None())

	_, err := inv.Invoke(context.Background(), invoker.Call{Request: req, Messages: []invoker.Message{{Role: "user", Content: "hi"}}})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvoke_RejectsSchemaPaths(t *testing.T) {
	inv := New(Config{}, nil, nil)
	req := &capability.Request{Model: capability.Claude21, Path: capability.PathSchemaLegacy}

	_, err := inv.Invoke(context.Background(), invoker.Call{Request: req})
	assert.ErrorIs(t, err, capability.ErrUnsupportedFeature)
}

func TestToMessagesRequest_Stop(t *testing.T) {
	req := &capability.Request{Model: capability.Claude21, Params: capability.Parameters{"stop": []any{"END", 3}, "top_k": float64(5)}}
	out := toMessagesRequest(req, nil, 100)
	assert.Equal(t, []string{"END"}, out.StopSequences)
	require.NotNil(t, out.TopK)
	assert.Equal(t, 5, *out.TopK)
	assert.Equal(t, 100, out.MaxTokens)
}
