package gateway

import (
	"github.com/go-playground/validator/v10"
	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/config"
	"github.com/nulzo/model-helpers/internal/invoker/anthropic"
	"github.com/nulzo/model-helpers/internal/invoker/openai"
	"go.uber.org/zap"
)

// BootstrapInvokers registers an invoker for every provider with credentials
// and returns how many were registered.
func BootstrapInvokers(service Service, cfg *config.Config, resolver *capability.Resolver, log *zap.Logger) int {
	registered := 0
	validate := validator.New()

	if err := validate.Struct(&cfg.OpenAI); err != nil {
		log.Warn("Skipping provider due to missing API key", zap.String("provider", string(capability.OpenAI)))
	} else {
		openai.CheckSDKVersion(log)
		service.RegisterInvoker(openai.New(openai.Config{
			APIKey:       cfg.OpenAI.APIKey,
			Organization: cfg.OpenAI.Organization,
			BaseURL:      cfg.OpenAI.BaseURL,
			Timeout:      cfg.OpenAI.Timeout,
			MaxRetries:   cfg.Retry.MaxRetries,
		}, resolver, log.Named("openai")))
		registered++
	}

	if err := validate.Struct(&cfg.Anthropic); err != nil {
		log.Warn("Skipping provider due to missing API key", zap.String("provider", string(capability.Anthropic)))
	} else {
		service.RegisterInvoker(anthropic.New(anthropic.Config{
			APIKey:           cfg.Anthropic.APIKey,
			BaseURL:          cfg.Anthropic.BaseURL,
			Version:          cfg.Anthropic.Version,
			DefaultMaxTokens: cfg.Anthropic.DefaultMaxTokens,
			Timeout:          cfg.Anthropic.Timeout,
			MaxRetries:       cfg.Retry.MaxRetries,
			InitialDelay:     cfg.Retry.InitialDelay,
			MaxDelay:         cfg.Retry.MaxDelay,
		}, nil, log.Named("anthropic")))
		registered++
	}

	if registered == 0 {
		log.Warn("No providers were registered. Only dry-run adaptation will work.")
	}

	return registered
}
