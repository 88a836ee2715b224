package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/pkg/api"
)

// ListModels renders the capability table in table order and applies filter.
func (s *service) ListModels(ctx context.Context, filter api.ModelFilter) ([]api.Model, error) {
	var provider capability.Provider
	if filter.Provider != "" {
		p, err := capability.ParseProvider(filter.Provider)
		if err != nil {
			return nil, api.BadRequestError(err.Error(), api.WithLog(err))
		}
		provider = p
	}

	results := []api.Model{}
	for _, caps := range s.resolver.Models() {
		if provider != "" && caps.Provider != provider {
			continue
		}
		if filter.ID != "" && !strings.Contains(strings.ToLower(caps.Model), strings.ToLower(filter.ID)) {
			continue
		}
		if filter.StructuredOutput != nil && caps.StructuredOutput != *filter.StructuredOutput {
			continue
		}
		results = append(results, s.toModel(caps))
	}

	return results, nil
}

func (s *service) GetModel(ctx context.Context, id string) (*api.Model, error) {
	caps, err := s.resolver.Capabilities(id)
	if err != nil {
		return nil, api.NotFoundError(fmt.Sprintf("model '%s' is not in the capability table", id), api.WithLog(err))
	}
	m := s.toModel(caps)
	return &m, nil
}

func (s *service) toModel(caps capability.Capabilities) api.Model {
	m := api.Model{
		ID:                    caps.Model,
		Object:                "model",
		OwnedBy:               string(caps.Provider),
		Provider:              string(caps.Provider),
		Family:                string(caps.Family),
		TokenParam:            caps.TokenParam(),
		StructuredOutput:      caps.StructuredOutput,
		UnsupportedParameters: caps.Unsupported(),
	}

	if rate, ok := s.pricing.Rate(caps.Model); ok {
		m.Pricing = &api.Pricing{
			Input:      rate.Input,
			Output:     rate.Output,
			CacheWrite: rate.CacheWrite,
			CacheRead:  rate.CacheRead,
		}
	}
	return m
}
