package capability

import (
	"fmt"
	"strings"
)

// Provider identifies the upstream vendor serving a model.
type Provider string

const (
	OpenAI    Provider = "openai"
	Anthropic Provider = "anthropic"
)

// providerAliases maps every accepted spelling to its provider.
var providerAliases = map[string]Provider{
	"openai":    OpenAI,
	"gpt":       OpenAI,
	"anthropic": Anthropic,
	"claude":    Anthropic,
}

func (p Provider) String() string {
	return string(p)
}

// ParseProvider resolves a provider name or alias, case-insensitively.
func ParseProvider(name string) (Provider, error) {
	if p, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}
