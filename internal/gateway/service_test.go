package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/httpclient"
	"github.com/nulzo/model-helpers/internal/invoker"
	"github.com/nulzo/model-helpers/internal/store"
	"github.com/nulzo/model-helpers/internal/store/cache"
	"github.com/nulzo/model-helpers/internal/store/model"
	"github.com/nulzo/model-helpers/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockInvoker implements invoker.Invoker for testing
type MockInvoker struct {
	mock.Mock
	provider capability.Provider
}

func (m *MockInvoker) Provider() capability.Provider { return m.provider }

func (m *MockInvoker) Invoke(ctx context.Context, call invoker.Call) (*invoker.Result, error) {
	args := m.Called(ctx, call)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoker.Result), args.Error(1)
}

// recordingIngestor keeps logs in memory.
type recordingIngestor struct {
	mu   sync.Mutex
	logs []*model.CompletionLog
}

func (r *recordingIngestor) Log(log *model.CompletionLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
}

func (r *recordingIngestor) Start(ctx context.Context) {}
func (r *recordingIngestor) Stop()                     {}

func ptr[T any](v T) *T { return &v }

func chatRequest(model string) *api.ChatRequest {
	return &api.ChatRequest{
		Model: model,
		Messages: []api.ChatMessage{
			{Role: "user", Content: api.Content{Text: "Hello"}},
		},
	}
}

func TestChat_AdaptsBeforeInvoking(t *testing.T) {
	inv := &MockInvoker{provider: capability.OpenAI}
	ing := &recordingIngestor{}
	svc := NewService(nil, nil, ing)
	svc.RegisterInvoker(inv)

	inv.On("Invoke", mock.Anything, mock.MatchedBy(func(call invoker.Call) bool {
		p := call.Request.Params
		_, hasMax := p["max_tokens"]
		_, hasTemp := p["temperature"]
		return call.Request.Model == "o3-mini" &&
			!hasMax && !hasTemp &&
			p["max_completion_tokens"] == 50 &&
			len(call.Messages) == 1 && call.Messages[0].Content == "Hello"
	})).Return(&invoker.Result{
		ID:           "chatcmpl-1",
		Model:        "o3-mini-2025-01-31",
		Content:      "Hi!",
		FinishReason: "stop",
		Path:         capability.PathPlain,
		Usage:        invoker.Usage{PromptTokens: 1000, CompletionTokens: 500},
	}, nil)

	req := chatRequest(capability.O3Mini)
	req.MaxTokens = ptr(50)
	req.Temperature = ptr(0.7)

	ctx := context.WithValue(context.Background(), store.ContextKeyAppName, "tests")
	resp, err := svc.Chat(ctx, req)
	require.NoError(t, err)
	inv.AssertExpectations(t)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "plain", resp.CallPath)
	assert.Equal(t, []string{"temperature"}, resp.DroppedParameters)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hi!", resp.Choices[0].Message.Content)
	assert.Equal(t, 1500, resp.Usage.TotalTokens)
	require.NotNil(t, resp.Usage.Cost)
	assert.Greater(t, *resp.Usage.Cost, 0.0)

	require.Len(t, ing.logs, 1)
	log := ing.logs[0]
	assert.Equal(t, "o3-mini", log.Model)
	assert.Equal(t, "o3-mini-2025-01-31", log.UpstreamModel)
	assert.Equal(t, "tests", log.AppName)
	assert.Equal(t, `["temperature"]`, log.Dropped)
	assert.Equal(t, http.StatusOK, log.StatusCode)
	assert.NotEmpty(t, log.ID)
}

func TestChat_StructuredOutput(t *testing.T) {
	schema := map[string]any{"type": "object", "properties": map[string]any{"n": map[string]any{"type": "integer"}}}

	tests := []struct {
		name      string
		strict    *bool
		betaParse *bool
		wantPath  capability.CallPath
	}{
		{"strict schema uses parse path", ptr(true), nil, capability.PathSchemaBeta},
		{"parse path disabled", ptr(true), ptr(false), capability.PathSchemaLegacy},
		{"non strict schema", nil, nil, capability.PathSchemaLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &MockInvoker{provider: capability.OpenAI}
			svc := NewService(nil, nil, nil)
			svc.RegisterInvoker(inv)

			inv.On("Invoke", mock.Anything, mock.MatchedBy(func(call invoker.Call) bool {
				return call.Request.Path == tt.wantPath
			})).Return(&invoker.Result{Content: `{"n":1}`, Parsed: map[string]any{"n": 1.0}, Path: tt.wantPath}, nil)

			req := chatRequest(capability.GPT4o)
			req.UseBetaParse = tt.betaParse
			req.ResponseFormat = &api.ResponseFormat{
				Type:       "json_schema",
				JSONSchema: &api.JSONSchemaFormat{Name: "count", Schema: schema, Strict: tt.strict},
			}

			resp, err := svc.Chat(context.Background(), req)
			require.NoError(t, err)
			inv.AssertExpectations(t)
			assert.Equal(t, tt.wantPath.String(), resp.CallPath)
			assert.Equal(t, map[string]any{"n": 1.0}, resp.Choices[0].Message.Parsed)
		})
	}
}

func TestChat_CapabilityErrors(t *testing.T) {
	svc := NewService(nil, nil, nil)

	_, err := svc.Chat(context.Background(), chatRequest("gpt-99"))
	var problem *api.Problem
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "/problems/unknown-model", problem.Type)
	assert.ErrorIs(t, err, capability.ErrUnknownModel)

	req := chatRequest(capability.GPT35Turbo)
	req.ResponseFormat = &api.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &api.JSONSchemaFormat{Name: "x", Schema: map[string]any{"type": "object"}, Strict: ptr(true)},
	}
	_, err = svc.Chat(context.Background(), req)
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, "/problems/unsupported-feature", problem.Type)
	assert.Equal(t, capability.FeatureStructuredOutput, problem.Extensions["feature"])
	assert.ErrorIs(t, err, capability.ErrUnsupportedFeature)
}

func TestChat_MissingInvoker(t *testing.T) {
	svc := NewService(nil, nil, nil)

	_, err := svc.Chat(context.Background(), chatRequest(capability.Claude21))
	var problem *api.Problem
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, http.StatusBadGateway, problem.Status)
	assert.ErrorIs(t, err, ErrInvokerNotFound)
}

func TestChat_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limit is preserved", &httpclient.UpstreamError{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"server error becomes bad gateway", &httpclient.UpstreamError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"transport error becomes bad gateway", errors.New("connection reset"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &MockInvoker{provider: capability.Anthropic}
			ing := &recordingIngestor{}
			svc := NewService(nil, nil, ing)
			svc.RegisterInvoker(inv)
			inv.On("Invoke", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := svc.Chat(context.Background(), chatRequest(capability.Claude3Haiku20240307))
			var problem *api.Problem
			require.ErrorAs(t, err, &problem)
			assert.Equal(t, tt.wantStatus, problem.Status)

			require.Len(t, ing.logs, 1)
			assert.Equal(t, tt.wantStatus, ing.logs[0].StatusCode)
			assert.NotEmpty(t, ing.logs[0].ErrorMessage)
		})
	}
}

func TestChat_UsesCache(t *testing.T) {
	inv := &MockInvoker{provider: capability.OpenAI}
	ing := &recordingIngestor{}
	svc := NewService(nil, nil, ing, WithCache(cache.NewMemoryCache(), 0))
	svc.RegisterInvoker(inv)

	inv.On("Invoke", mock.Anything, mock.Anything).
		Return(&invoker.Result{ID: "first", Content: "cached", Usage: invoker.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil).
		Once()

	first, err := svc.Chat(context.Background(), chatRequest(capability.GPT4))
	require.NoError(t, err)
	second, err := svc.Chat(context.Background(), chatRequest(capability.GPT4))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "cached", second.Choices[0].Message.Content)
	inv.AssertNumberOfCalls(t, "Invoke", 1)

	require.Len(t, ing.logs, 2)
	assert.False(t, ing.logs[0].CacheHit)
	assert.True(t, ing.logs[1].CacheHit)
	assert.Zero(t, ing.logs[1].InputTokens)
	assert.Zero(t, ing.logs[1].CostMicros)
	assert.Equal(t, http.StatusOK, ing.logs[1].StatusCode)

	// different messages miss the cache
	inv.On("Invoke", mock.Anything, mock.Anything).Return(&invoker.Result{ID: "other"}, nil).Once()
	req := chatRequest(capability.GPT4)
	req.Messages[0].Content = api.Content{Text: "Something else"}
	third, err := svc.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "other", third.ID)
}

func TestChat_CacheIsScopedToAPIKey(t *testing.T) {
	inv := &MockInvoker{provider: capability.OpenAI}
	svc := NewService(nil, nil, nil, WithCache(cache.NewMemoryCache(), 0))
	svc.RegisterInvoker(inv)

	inv.On("Invoke", mock.Anything, mock.Anything).Return(&invoker.Result{ID: "alice"}, nil).Once()
	inv.On("Invoke", mock.Anything, mock.Anything).Return(&invoker.Result{ID: "bob"}, nil).Once()

	alice := context.WithValue(context.Background(), store.ContextKeyAPIKey, "key_aaaaaaaaaaaa")
	bob := context.WithValue(context.Background(), store.ContextKeyAPIKey, "key_bbbbbbbbbbbb")

	first, err := svc.Chat(alice, chatRequest(capability.GPT4))
	require.NoError(t, err)
	second, err := svc.Chat(bob, chatRequest(capability.GPT4))
	require.NoError(t, err)
	again, err := svc.Chat(alice, chatRequest(capability.GPT4))
	require.NoError(t, err)

	assert.Equal(t, "alice", first.ID)
	assert.Equal(t, "bob", second.ID)
	assert.Equal(t, "alice", again.ID)
	inv.AssertNumberOfCalls(t, "Invoke", 2)
}

func TestAdapt_DryRun(t *testing.T) {
	svc := NewService(nil, nil, nil)

	resp, err := svc.Adapt(context.Background(), &api.AdaptRequest{
		Model:        capability.GPT4o,
		Parameters:   map[string]any{"max_completion_tokens": 100, "temperature": 0.3},
		UseBetaParse: ptr(false),
		ResponseFormat: &api.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &api.JSONSchemaFormat{Name: "thing", Schema: map[string]any{"type": "object"}, Strict: ptr(true)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "max_tokens", resp.TokenParam)
	assert.Equal(t, "schema_legacy", resp.CallPath)
	assert.Equal(t, 100, resp.Parameters["max_tokens"])
	assert.Equal(t, 0.3, resp.Parameters["temperature"])
	assert.Contains(t, resp.Parameters, "response_format")
	assert.Equal(t, []string{}, resp.DroppedParameters)
}

func TestAdapt_DryRunShowsStrictSchema(t *testing.T) {
	svc := NewService(nil, nil, nil)
	schema := map[string]any{"type": "object", "properties": map[string]any{"n": map[string]any{"type": "integer"}}}

	resp, err := svc.Adapt(context.Background(), &api.AdaptRequest{
		Model: capability.GPT4o,
		ResponseFormat: &api.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &api.JSONSchemaFormat{Name: "count", Schema: schema, Strict: ptr(true)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "schema_beta", resp.CallPath)
	assert.Equal(t, false, resp.Schema["additionalProperties"])
	assert.Equal(t, []any{"n"}, resp.Schema["required"])
	assert.NotContains(t, resp.Parameters, "response_format")
}

func TestDirectiveFor(t *testing.T) {
	schema := map[string]any{"type": "object"}

	d, err := directiveFor(nil)
	require.NoError(t, err)
	assert.Equal(t, capability.FormatNone, d.Kind)

	d, err = directiveFor(&api.ResponseFormat{Type: "text"})
	require.NoError(t, err)
	assert.Equal(t, capability.FormatNone, d.Kind)

	d, err = directiveFor(&api.ResponseFormat{Type: "json_object"})
	require.NoError(t, err)
	assert.Equal(t, capability.FormatJSONObject, d.Kind)

	d, err = directiveFor(&api.ResponseFormat{Type: "json_schema", JSONSchema: &api.JSONSchemaFormat{Name: "a", Schema: schema, Strict: ptr(true)}})
	require.NoError(t, err)
	assert.Equal(t, capability.FormatStructured, d.Kind)

	d, err = directiveFor(&api.ResponseFormat{Type: "json_schema", JSONSchema: &api.JSONSchemaFormat{Name: "a", Schema: schema, Strict: ptr(false)}})
	require.NoError(t, err)
	assert.Equal(t, capability.FormatJSONSchema, d.Kind)
	assert.False(t, d.Strict)

	_, err = directiveFor(&api.ResponseFormat{Type: "json_schema"})
	assert.Error(t, err)
}

func TestListModels(t *testing.T) {
	svc := NewService(nil, nil, nil)
	ctx := context.Background()

	all, err := svc.ListModels(ctx, api.ModelFilter{})
	require.NoError(t, err)
	assert.Equal(t, capability.DefaultTable().Len(), len(all))

	claude, err := svc.ListModels(ctx, api.ModelFilter{Provider: "claude"})
	require.NoError(t, err)
	assert.Len(t, claude, 13)
	for _, m := range claude {
		assert.Equal(t, "anthropic", m.Provider)
		assert.Equal(t, "max_tokens", m.TokenParam)
	}

	structured, err := svc.ListModels(ctx, api.ModelFilter{StructuredOutput: ptr(true)})
	require.NoError(t, err)
	for _, m := range structured {
		assert.True(t, m.StructuredOutput)
	}

	_, err = svc.ListModels(ctx, api.ModelFilter{Provider: "mistral"})
	assert.Error(t, err)

	m, err := svc.GetModel(ctx, capability.O1)
	require.NoError(t, err)
	assert.Equal(t, "reasoning", m.Family)
	assert.Equal(t, "max_completion_tokens", m.TokenParam)
	assert.Equal(t, []string{"parallel_tool_calls", "temperature", "top_p"}, m.UnsupportedParameters)
	assert.NotNil(t, m.Pricing)

	_, err = svc.GetModel(ctx, "nope")
	var problem *api.Problem
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, http.StatusNotFound, problem.Status)
}
