package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/httpclient"
	"github.com/nulzo/model-helpers/internal/invoker"
	"github.com/nulzo/model-helpers/internal/retry"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 4096

	jsonInstruction = "Respond only with a single valid JSON object. Do not wrap it in markdown or add any other text."
)

type Config struct {
	APIKey           string
	BaseURL          string
	Version          string
	DefaultMaxTokens int
	Timeout          time.Duration

	// rate-limited calls are retried with this backoff
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Invoker sends adapted requests to the Anthropic Messages API.
type Invoker struct {
	config Config
	client httpclient.HTTPClient
	logger *zap.Logger
}

// New builds an invoker. A nil client gets an *http.Client using cfg.Timeout.
func New(cfg Config, client httpclient.HTTPClient, logger *zap.Logger) *Invoker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{config: cfg, client: client, logger: logger}
}

func (i *Invoker) Provider() capability.Provider {
	return capability.Anthropic
}

func (i *Invoker) Invoke(ctx context.Context, call invoker.Call) (*invoker.Result, error) {
	req := call.Request
	if req == nil {
		return nil, fmt.Errorf("anthropic: nil request")
	}
	if req.Path == capability.PathSchemaBeta || req.Path == capability.PathSchemaLegacy {
		return nil, &capability.UnsupportedFeatureError{Model: req.Model, Feature: capability.FeatureStructuredOutput}
	}

	body := toMessagesRequest(req, call.Messages, i.config.DefaultMaxTokens)
	headers := map[string]string{
		"x-api-key":         i.config.APIKey,
		"anthropic-version": i.config.Version,
	}
	url := fmt.Sprintf("%s/messages", strings.TrimRight(i.config.BaseURL, "/"))

	var resp messagesResponse
	err := retry.Do(ctx, i.policy(req.Model), func(ctx context.Context) error {
		return httpclient.SendRequest(ctx, i.client, http.MethodPost, url, headers, body, &resp)
	})
	if err != nil {
		return nil, err
	}

	return toResult(req, &resp)
}

func (i *Invoker) policy(model string) retry.Policy {
	return retry.Policy{
		MaxRetries:   i.config.MaxRetries,
		InitialDelay: i.config.InitialDelay,
		MaxDelay:     i.config.MaxDelay,
		Multiplier:   2,
		Retryable: func(err error) bool {
			var upstream *httpclient.UpstreamError
			return errors.As(err, &upstream) && upstream.RateLimited()
		},
		RetryAfter: func(err error) (time.Duration, bool) {
			var upstream *httpclient.UpstreamError
			if errors.As(err, &upstream) {
				return upstream.RetryAfter()
			}
			return 0, false
		},
		OnRetry: func(err error, attempt int, delay time.Duration) {
			i.logger.Warn("Rate limited by Anthropic, retrying",
				zap.String("model", model),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
		},
	}
}

func toResult(req *capability.Request, resp *messagesResponse) (*invoker.Result, error) {
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	content, reasoning := invoker.ExtractThinking(text.String())

	res := &invoker.Result{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content,
		Reasoning:    reasoning,
		FinishReason: finishReason(resp.StopReason),
		Path:         req.Path,
		Usage: invoker.Usage{
			PromptTokens:     resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			CachedTokens:     resp.Usage.CacheReadInputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
		},
	}

	if invoker.WantsJSON(req.Path) {
		parsed, err := invoker.DecodeJSON(content)
		if err != nil {
			return nil, err
		}
		res.Parsed = parsed
	}
	return res, nil
}

func finishReason(stop string) string {
	switch stop {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return stop
	}
}
