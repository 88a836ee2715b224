package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Family groups models that share parameter rules.
type Family string

const (
	FamilyStandard  Family = "standard"
	FamilyReasoning Family = "reasoning"
)

// Request parameter names the resolver knows about.
const (
	ParamMaxTokens           = "max_tokens"
	ParamMaxCompletionTokens = "max_completion_tokens"
	ParamTemperature         = "temperature"
	ParamTopP                = "top_p"
	ParamParallelToolCalls   = "parallel_tool_calls"
	ParamResponseFormat      = "response_format"
)

// OpenAI models.
const (
	GPT45Preview = "gpt-4.5-preview"
	O3Mini       = "o3-mini"
	O1           = "o1"
	O1Mini       = "o1-mini"
	GPT4o        = "gpt-4o"
	GPT4oMini    = "gpt-4o-mini"
	GPT4Turbo    = "gpt-4-turbo"
	GPT4         = "gpt-4"
	GPT35Turbo   = "gpt-3.5-turbo"
)

// Anthropic models.
const (
	Claude37SonnetLatest   = "claude-3-7-sonnet-latest"
	Claude37Sonnet20250219 = "claude-3-7-sonnet-20250219"
	Claude35HaikuLatest    = "claude-3-5-haiku-latest"
	Claude35Haiku20241022  = "claude-3-5-haiku-20241022"
	Claude35SonnetLatest   = "claude-3-5-sonnet-latest"
	Claude35Sonnet20241022 = "claude-3-5-sonnet-20241022"
	Claude35Sonnet20240620 = "claude-3-5-sonnet-20240620"
	Claude3OpusLatest      = "claude-3-opus-latest"
	Claude3Opus20240229    = "claude-3-opus-20240229"
	Claude3Sonnet20240229  = "claude-3-sonnet-20240229"
	Claude3Haiku20240307   = "claude-3-haiku-20240307"
	Claude21               = "claude-2.1"
	Claude20               = "claude-2.0"

	DefaultClaudeModel = Claude35SonnetLatest
)

var reasoningUnsupported = []string{ParamParallelToolCalls, ParamTemperature, ParamTopP}

// Capabilities is the immutable record for a single model.
type Capabilities struct {
	Model            string   `mapstructure:"id"`
	Provider         Provider `mapstructure:"provider"`
	Family           Family   `mapstructure:"family"`
	StructuredOutput bool     `mapstructure:"structured_output"`
}

// TokenParam is the name of the token-limit parameter the model accepts.
func (c Capabilities) TokenParam() string {
	if c.Family == FamilyReasoning {
		return ParamMaxCompletionTokens
	}
	return ParamMaxTokens
}

// Unsupported returns the sorted parameters the model rejects.
func (c Capabilities) Unsupported() []string {
	if c.Family == FamilyReasoning {
		out := make([]string, len(reasoningUnsupported))
		copy(out, reasoningUnsupported)
		return out
	}
	return []string{}
}

func (c Capabilities) rejects(param string) bool {
	if c.Family != FamilyReasoning {
		return false
	}
	for _, p := range reasoningUnsupported {
		if p == param {
			return true
		}
	}
	return false
}

func openai(model string, family Family, structured bool) Capabilities {
	return Capabilities{Model: model, Provider: OpenAI, Family: family, StructuredOutput: structured}
}

func claude(model string) Capabilities {
	return Capabilities{Model: model, Provider: Anthropic, Family: FamilyStandard}
}

var builtins = []Capabilities{
	openai(GPT45Preview, FamilyStandard, true),
	openai(O3Mini, FamilyReasoning, true),
	openai(O1, FamilyReasoning, true),
	openai(O1Mini, FamilyReasoning, false),
	openai(GPT4o, FamilyStandard, true),
	openai(GPT4oMini, FamilyStandard, true),
	openai(GPT4Turbo, FamilyStandard, true),
	openai(GPT4, FamilyStandard, false),
	openai(GPT35Turbo, FamilyStandard, false),

	claude(Claude37SonnetLatest),
	claude(Claude37Sonnet20250219),
	claude(Claude35HaikuLatest),
	claude(Claude35Haiku20241022),
	claude(Claude35SonnetLatest),
	claude(Claude35Sonnet20241022),
	claude(Claude35Sonnet20240620),
	claude(Claude3OpusLatest),
	claude(Claude3Opus20240229),
	claude(Claude3Sonnet20240229),
	claude(Claude3Haiku20240307),
	claude(Claude21),
	claude(Claude20),
}

// Table is a read-only model capability index. It is never mutated after
// construction, so lookups need no locking.
type Table struct {
	models map[string]Capabilities
	order  []string
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := NewTable()
	if err != nil {
		panic(err)
	}
	return t
})

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	return defaultTable()
}

// NewTable builds a table from the built-in models plus extra rows, which
// usually come from configuration. Extras may not redefine a built-in.
func NewTable(extra ...Capabilities) (*Table, error) {
	t := &Table{models: make(map[string]Capabilities, len(builtins)+len(extra))}

	for _, c := range builtins {
		t.add(c)
	}

	for _, c := range extra {
		if c.Model == "" {
			return nil, fmt.Errorf("capability row is missing a model id")
		}
		if _, exists := t.models[c.Model]; exists {
			return nil, fmt.Errorf("model %q is already defined", c.Model)
		}
		p, err := ParseProvider(string(c.Provider))
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", c.Model, err)
		}
		c.Provider = p

		switch c.Family {
		case "":
			c.Family = FamilyStandard
		case FamilyStandard, FamilyReasoning:
		default:
			return nil, fmt.Errorf("model %q: unknown family %q", c.Model, c.Family)
		}
		t.add(c)
	}

	return t, nil
}

func (t *Table) add(c Capabilities) {
	t.models[c.Model] = c
	t.order = append(t.order, c.Model)
}

// Lookup returns the capabilities for an exact model identifier.
func (t *Table) Lookup(model string) (Capabilities, bool) {
	c, ok := t.models[model]
	return c, ok
}

// All returns every model, OpenAI first, in declaration order within a provider.
func (t *Table) All() []Capabilities {
	out := make([]Capabilities, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.models[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Provider == OpenAI && out[j].Provider != OpenAI
	})
	return out
}

// Len reports the number of models in the table.
func (t *Table) Len() int {
	return len(t.order)
}
