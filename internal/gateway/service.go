package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/model-helpers/internal/analytics"
	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/httpclient"
	"github.com/nulzo/model-helpers/internal/invoker"
	"github.com/nulzo/model-helpers/internal/platform/otel"
	"github.com/nulzo/model-helpers/internal/pricing"
	"github.com/nulzo/model-helpers/internal/store"
	"github.com/nulzo/model-helpers/internal/store/cache"
	"github.com/nulzo/model-helpers/internal/store/model"
	"github.com/nulzo/model-helpers/pkg/api"
	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrInvokerNotFound = errors.New("no invoker registered for provider")

// Service adapts requests to their target model and forwards them.
type Service interface {
	// RegisterInvoker makes a provider reachable. A second invoker for the
	// same provider replaces the first.
	RegisterInvoker(inv invoker.Invoker)

	Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error)
	// Adapt is a dry run of Chat that stops before the network call.
	Adapt(ctx context.Context, req *api.AdaptRequest) (*api.AdaptResponse, error)
	ListModels(ctx context.Context, filter api.ModelFilter) ([]api.Model, error)
	GetModel(ctx context.Context, id string) (*api.Model, error)
}

type Option func(*service)

// WithCache enables response caching. A zero ttl keeps entries until evicted.
func WithCache(c cache.CacheService, ttl time.Duration) Option {
	return func(s *service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithPricing(calc *pricing.Calculator) Option {
	return func(s *service) {
		if calc != nil {
			s.pricing = calc
		}
	}
}

type service struct {
	logger   *zap.Logger
	resolver *capability.Resolver
	pricing  *pricing.Calculator
	ingestor analytics.Ingestor
	cache    cache.CacheService
	cacheTTL time.Duration

	mu       sync.RWMutex
	invokers map[capability.Provider]invoker.Invoker
}

func NewService(logger *zap.Logger, resolver *capability.Resolver, ingestor analytics.Ingestor, opts ...Option) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = capability.NewResolver(nil, logger)
	}
	s := &service{
		logger:   logger,
		resolver: resolver,
		pricing:  pricing.NewCalculator(logger),
		ingestor: ingestor,
		invokers: make(map[capability.Provider]invoker.Invoker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) RegisterInvoker(inv invoker.Invoker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invokers[inv.Provider()] = inv
}

func (s *service) invoker(p capability.Provider) (invoker.Invoker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invokers[p]; ok {
		return inv, nil
	}
	return nil, api.ProviderError(
		fmt.Sprintf("provider '%s' is not configured", p),
		api.WithLog(fmt.Errorf("%w: %s", ErrInvokerNotFound, p)),
	)
}

func (s *service) adapt(ctx context.Context, model string, params capability.Parameters, rf *api.ResponseFormat, betaParse bool) (*capability.Request, error) {
	_, span := otel.Tracer().Start(ctx, "capability.Adapt", trace.WithAttributes(
		attribute.String("llm.model", model),
	))
	defer span.End()

	directive, err := directiveFor(rf)
	if err != nil {
		return nil, err
	}

	req, err := s.resolver.Adapt(model, params, directive, capability.WithBetaParse(betaParse))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, capabilityProblem(err)
	}

	span.SetAttributes(
		attribute.String("llm.provider", string(req.Provider)),
		attribute.String("llm.call_path", req.Path.String()),
		attribute.StringSlice("llm.dropped_parameters", req.Dropped),
	)
	return req, nil
}

func (s *service) Adapt(ctx context.Context, req *api.AdaptRequest) (*api.AdaptResponse, error) {
	adapted, err := s.adapt(ctx, req.Model, req.Parameters, req.ResponseFormat, req.BetaParse())
	if err != nil {
		return nil, err
	}
	tokenParam, err := s.resolver.TokenParamName(req.Model)
	if err != nil {
		return nil, capabilityProblem(err)
	}

	schema := adapted.Format.Schema
	if adapted.Path == capability.PathSchemaBeta {
		schema = adapted.Format.StrictSchema()
	}

	return &api.AdaptResponse{
		Model:             adapted.Model,
		Provider:          string(adapted.Provider),
		TokenParam:        tokenParam,
		Parameters:        adapted.Params,
		CallPath:          adapted.Path.String(),
		ResponseFormat:    adapted.Format.Kind.String(),
		Schema:            schema,
		DroppedParameters: nonNil(adapted.Dropped),
	}, nil
}

func (s *service) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	ctx, span := otel.Tracer().Start(ctx, "gateway.Chat", trace.WithAttributes(
		attribute.String("llm.model", req.Model),
	))
	defer span.End()

	adapted, err := s.adapt(ctx, req.Model, req.Parameters(), req.ResponseFormat, req.BetaParse())
	if err != nil {
		return nil, err
	}

	inv, err := s.invoker(adapted.Provider)
	if err != nil {
		return nil, err
	}

	messages := toMessages(req.Messages)

	start := time.Now()
	key := cacheKey(ctx, adapted, messages)
	if cached, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		s.recordHit(ctx, adapted, cached, time.Since(start))
		return cached, nil
	}

	start = time.Now()
	res, err := s.invoke(ctx, inv, invoker.Call{Request: adapted, Messages: messages})
	latency := time.Since(start)

	if err != nil {
		problem := upstreamProblem(adapted, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, problem.Detail)
		s.record(ctx, adapted, nil, 0, latency, problem.Status, err)
		return nil, problem
	}

	cost := s.pricing.Cost(adapted.Model, billable(res.Usage))
	s.record(ctx, adapted, res, cost, latency, http.StatusOK, nil)

	resp := buildResponse(adapted, res, cost)
	s.save(ctx, key, resp)

	return resp, nil
}

func (s *service) invoke(ctx context.Context, inv invoker.Invoker, call invoker.Call) (*invoker.Result, error) {
	ctx, span := otel.Tracer().Start(ctx, "invoker.Invoke", trace.WithAttributes(
		attribute.String("llm.provider", string(inv.Provider())),
		attribute.String("llm.call_path", call.Request.Path.String()),
	))
	defer span.End()

	res, err := inv.Invoke(ctx, call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("llm.final_call_path", res.Path.String()),
		attribute.Int("llm.usage.prompt_tokens", res.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", res.Usage.CompletionTokens),
	)
	return res, nil
}

func (s *service) lookup(ctx context.Context, key string) (*api.ChatResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	var cached api.ChatResponse
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		s.logger.Debug("Response cache hit", zap.String("model", cached.Model))
		return &cached, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Response cache read failed", zap.Error(err))
	}
	return nil, false
}

func (s *service) save(ctx context.Context, key string, resp *api.ChatResponse) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
		s.logger.Warn("Response cache write failed", zap.Error(err))
	}
}

func newLog(ctx context.Context, req *capability.Request, latency time.Duration, status int) *model.CompletionLog {
	dropped, _ := json.Marshal(nonNil(req.Dropped))
	log := &model.CompletionLog{
		ID:         uuid.NewString(),
		Provider:   string(req.Provider),
		Model:      req.Model,
		CallPath:   req.Path.String(),
		Dropped:    string(dropped),
		LatencyMS:  latency.Milliseconds(),
		StatusCode: status,
		CreatedAt:  time.Now(),
	}
	log.APIKeyID = apiKeyID(ctx)
	if v, ok := ctx.Value(store.ContextKeyAppName).(string); ok {
		log.AppName = v
	}
	return log
}

// recordHit logs a cached response. No upstream call was made, so it carries
// no tokens and no cost.
func (s *service) recordHit(ctx context.Context, req *capability.Request, resp *api.ChatResponse, latency time.Duration) {
	if s.ingestor == nil {
		return
	}
	log := newLog(ctx, req, latency, http.StatusOK)
	log.CacheHit = true
	log.UpstreamModel = resp.Model
	if resp.CallPath != "" {
		log.CallPath = resp.CallPath
	}
	if len(resp.Choices) > 0 {
		log.FinishReason = resp.Choices[0].FinishReason
	}
	s.ingestor.Log(log)
}

func (s *service) record(ctx context.Context, req *capability.Request, res *invoker.Result, cost float64, latency time.Duration, status int, callErr error) {
	if s.ingestor == nil {
		return
	}

	log := newLog(ctx, req, latency, status)
	if callErr != nil {
		log.ErrorMessage = callErr.Error()
	}

	if res != nil {
		log.UpstreamModel = res.Model
		log.CallPath = res.Path.String()
		log.FinishReason = res.FinishReason
		log.InputTokens = res.Usage.PromptTokens
		log.OutputTokens = res.Usage.CompletionTokens
		log.CachedTokens = res.Usage.CachedTokens
		log.CacheWriteTokens = res.Usage.CacheWriteTokens
		log.CostMicros = pricing.Micros(cost)
	}

	s.ingestor.Log(log)
}

// billable splits prompt tokens into uncached input and cache traffic.
func billable(u invoker.Usage) pricing.Usage {
	return pricing.Usage{
		InputTokens:      max(u.PromptTokens-u.CachedTokens-u.CacheWriteTokens, 0),
		OutputTokens:     u.CompletionTokens,
		CacheReadTokens:  u.CachedTokens,
		CacheWriteTokens: u.CacheWriteTokens,
	}
}

func buildResponse(req *capability.Request, res *invoker.Result, cost float64) *api.ChatResponse {
	id := res.ID
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	upstream := res.Model
	if upstream == "" {
		upstream = req.Model
	}

	return &api.ChatResponse{
		ID:       id,
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    upstream,
		Provider: string(req.Provider),
		Choices: []api.Choice{{
			Index: 0,
			Message: &api.ResponseMessage{
				Role:    string(api.Assistant),
				Content: res.Content,
				Parsed:  res.Parsed,
				Refusal: res.Refusal,
			},
			FinishReason: res.FinishReason,
		}},
		Usage: &api.ResponseUsage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.Total(),
			PromptTokensDetails: &api.PromptTokensDetails{
				CachedTokens:     res.Usage.CachedTokens,
				CacheWriteTokens: res.Usage.CacheWriteTokens,
			},
			Cost: &cost,
		},
		CallPath:          res.Path.String(),
		DroppedParameters: req.Dropped,
	}
}

// directiveFor maps the wire response_format onto a directive. A strict
// json_schema is eligible for the structured parse path.
func directiveFor(rf *api.ResponseFormat) (capability.Directive, error) {
	if rf == nil {
		return capability.None(), nil
	}

	switch rf.Type {
	case "", "text":
		return capability.None(), nil
	case "json_object":
		return capability.JSONObject(), nil
	case "json_schema":
		if rf.JSONSchema == nil || rf.JSONSchema.Schema == nil {
			return capability.Directive{}, api.BadRequestError("response_format.json_schema.schema is required")
		}
		js := rf.JSONSchema
		if js.Strict != nil && *js.Strict {
			return capability.Structured(js.Name, js.Schema), nil
		}
		return capability.JSONSchema(js.Name, js.Schema, false), nil
	default:
		return capability.Directive{}, api.BadRequestError(fmt.Sprintf("unknown response_format type '%s'", rf.Type))
	}
}

func capabilityProblem(err error) error {
	var unknown *capability.UnknownModelError
	var unsupported *capability.UnsupportedFeatureError

	switch {
	case errors.As(err, &unknown):
		return api.BadRequestError(err.Error(),
			api.WithType("/problems/unknown-model"),
			api.WithExtension("model", unknown.Model),
			api.WithLog(err),
		)
	case errors.As(err, &unsupported):
		return api.BadRequestError(err.Error(),
			api.WithType("/problems/unsupported-feature"),
			api.WithExtension("model", unsupported.Model),
			api.WithExtension("feature", unsupported.Feature),
			api.WithLog(err),
		)
	}
	return api.InternalError("failed to adapt request", err)
}

// upstreamProblem keeps rate limiting visible to the caller and reports
// everything else from the provider as a bad gateway.
func upstreamProblem(req *capability.Request, err error) *api.Problem {
	var problem *api.Problem
	if errors.As(err, &problem) {
		return problem
	}
	var unsupported *capability.UnsupportedFeatureError
	if errors.As(err, &unsupported) {
		return api.BadRequestError(err.Error(),
			api.WithType("/problems/unsupported-feature"),
			api.WithExtension("feature", unsupported.Feature),
			api.WithLog(err),
		)
	}

	status := 0
	var upstream *httpclient.UpstreamError
	var apiErr *openai.Error
	switch {
	case errors.As(err, &upstream):
		status = upstream.StatusCode
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
	}

	if status == http.StatusTooManyRequests {
		p := api.RateLimitError(fmt.Sprintf("provider '%s' is rate limiting requests", req.Provider))
		p.Log = err
		return p
	}

	opts := []api.ProblemOption{
		api.WithLog(err),
		api.WithExtension("provider", string(req.Provider)),
	}
	if status != 0 {
		opts = append(opts, api.WithExtension("upstream_status", status))
	}
	return api.ProviderError(fmt.Sprintf("provider '%s' failed: %s", req.Provider, err), opts...)
}

func toMessages(msgs []api.ChatMessage) []invoker.Message {
	out := make([]invoker.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, invoker.Message{Role: m.Role, Content: m.Content.String()})
	}
	return out
}

// cacheKey hashes everything that reaches the provider.
func apiKeyID(ctx context.Context) string {
	v, _ := ctx.Value(store.ContextKeyAPIKey).(string)
	return v
}

// cacheKey is scoped to the caller's API key so responses are never shared
// between keys.
func cacheKey(ctx context.Context, req *capability.Request, msgs []invoker.Message) string {
	payload := struct {
		KeyID    string                `json:"key_id"`
		Model    string                `json:"model"`
		Params   capability.Parameters `json:"params"`
		Path     string                `json:"path"`
		Format   capability.Directive  `json:"format"`
		Messages []invoker.Message     `json:"messages"`
	}{apiKeyID(ctx), req.Model, req.Params, req.Path.String(), req.Format, msgs}

	// map keys are sorted by encoding/json
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return "chat:" + hex.EncodeToString(sum[:])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
