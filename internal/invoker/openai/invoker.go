package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/invoker"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

type Config struct {
	APIKey       string
	Organization string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
}

// Invoker sends adapted requests to the OpenAI Chat Completions API.
type Invoker struct {
	client   openai.Client
	resolver *capability.Resolver
	logger   *zap.Logger
}

func New(cfg Config, resolver *capability.Resolver, logger *zap.Logger, extra ...option.RequestOption) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = capability.NewResolver(nil, logger)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, extra...)

	return &Invoker{
		client:   openai.NewClient(opts...),
		resolver: resolver,
		logger:   logger,
	}
}

func (i *Invoker) Provider() capability.Provider {
	return capability.OpenAI
}

// Invoke sends the call. A structured parse whose reply cannot be decoded or
// does not match the strict schema is retried once on the json_schema
// response_format path, which sends the caller's schema and only decodes.
func (i *Invoker) Invoke(ctx context.Context, call invoker.Call) (*invoker.Result, error) {
	req := call.Request
	if req == nil {
		return nil, fmt.Errorf("openai: nil request")
	}

	res, err := i.send(ctx, req, call.Messages)
	if err != nil && req.Path == capability.PathSchemaBeta && shouldFallback(err) {
		next, ok := i.resolver.Fallback(req)
		if ok {
			i.logger.Warn("Structured reply rejected, retrying with response_format",
				zap.String("model", req.Model),
				zap.Error(err),
			)
			res, err = i.send(ctx, next, call.Messages)
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (i *Invoker) send(ctx context.Context, req *capability.Request, msgs []invoker.Message) (*invoker.Result, error) {
	completion, err := i.create(ctx, req, req.Params, msgs)
	if err != nil {
		if swapped, ok := swapTokenParam(req.Params, err); ok {
			i.logger.Warn("Token limit parameter rejected, retrying with the other name",
				zap.String("model", req.Model),
			)
			completion, err = i.create(ctx, req, swapped, msgs)
		}
	}
	if err != nil {
		return nil, err
	}
	return toResult(req, completion)
}

func (i *Invoker) create(ctx context.Context, req *capability.Request, params capability.Parameters, msgs []invoker.Message) (*openai.ChatCompletion, error) {
	body := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toMessages(msgs),
	}

	if req.Path == capability.PathSchemaBeta {
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Format.Name,
					Schema: req.Format.StrictSchema(),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	// adapted parameters are sent verbatim
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]option.RequestOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, option.WithJSONSet(k, params[k]))
	}

	return i.client.Chat.Completions.New(ctx, body, opts...)
}

func toMessages(msgs []invoker.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "developer":
			out = append(out, openai.DeveloperMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toResult(req *capability.Request, c *openai.ChatCompletion) (*invoker.Result, error) {
	if len(c.Choices) == 0 {
		return nil, invoker.ErrEmptyResponse
	}
	choice := c.Choices[0]

	res := &invoker.Result{
		ID:           c.ID,
		Model:        c.Model,
		Content:      choice.Message.Content,
		Refusal:      choice.Message.Refusal,
		FinishReason: string(choice.FinishReason),
		Path:         req.Path,
		Usage: invoker.Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			CachedTokens:     int(c.Usage.PromptTokensDetails.CachedTokens),
		},
	}

	if !invoker.WantsJSON(req.Path) {
		return res, nil
	}
	if res.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", invoker.ErrRefusal, res.Refusal)
	}

	parsed, err := invoker.DecodeJSON(res.Content)
	if err != nil {
		return nil, err
	}
	if req.Path == capability.PathSchemaBeta {
		if err := invoker.ValidateJSON(req.Format.StrictSchema(), parsed); err != nil {
			return nil, err
		}
	}
	res.Parsed = parsed
	return res, nil
}

// swapTokenParam returns params with the token limit renamed when err says
// the model wants the other parameter.
func swapTokenParam(params capability.Parameters, err error) (capability.Parameters, bool) {
	msg := errorMessage(err)
	if !strings.Contains(msg, capability.ParamMaxTokens) || !strings.Contains(msg, capability.ParamMaxCompletionTokens) {
		return nil, false
	}

	from, to := capability.ParamMaxTokens, capability.ParamMaxCompletionTokens
	if _, ok := params[from]; !ok {
		from, to = to, from
	}
	v, ok := params[from]
	if !ok {
		return nil, false
	}

	out := params.Clone()
	delete(out, from)
	out[to] = v
	return out, true
}

// shouldFallback is true only for reply problems the response_format path
// can tolerate. Upstream errors would repeat there.
func shouldFallback(err error) bool {
	return errors.Is(err, invoker.ErrDecode) ||
		errors.Is(err, invoker.ErrSchema) ||
		errors.Is(err, invoker.ErrEmptyResponse)
}

func errorMessage(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
