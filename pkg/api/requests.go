package api

import (
	"encoding/json"
	"strings"
)

type ChatRequest struct {
	// message array is required, dive in and deep validate
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`

	// bare model identifier, e.g. `gpt-4o` or `claude-3-5-sonnet-latest`
	Model string `json:"model" binding:"required"`

	// Allows to force the model to produce specific output format.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Can be string or []string
	Stop *Stop `json:"stop,omitempty"`

	// LLM Parameters
	MaxTokens           *int               `json:"max_tokens,omitempty" binding:"omitempty,min=1"`
	MaxCompletionTokens *int               `json:"max_completion_tokens,omitempty" binding:"omitempty,min=1"`
	Temperature         *float64           `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
	TopP                *float64           `json:"top_p,omitempty" binding:"omitempty,min=0,max=1"`
	FrequencyPenalty    *float64           `json:"frequency_penalty,omitempty" binding:"omitempty,min=-2,max=2"`
	PresencePenalty     *float64           `json:"presence_penalty,omitempty" binding:"omitempty,min=-2,max=2"`
	Seed                *int               `json:"seed,omitempty"`
	LogitBias           map[string]float64 `json:"logit_bias,omitempty"`
	User                string             `json:"user,omitempty"`

	// Tool calling
	Tools             []Tool      `json:"tools,omitempty"`
	ToolChoice        interface{} `json:"tool_choice,omitempty"` // "none", "auto", or object
	ParallelToolCalls *bool       `json:"parallel_tool_calls,omitempty"`

	// Structured outputs use the parse endpoint unless this is false
	UseBetaParse *bool `json:"use_beta_parse,omitempty"`
}

// Parameters flattens the optional tuning fields into a wire-keyed map.
// Unset fields are omitted.
func (r *ChatRequest) Parameters() map[string]any {
	p := make(map[string]any)

	setInt := func(key string, v *int) {
		if v != nil {
			p[key] = *v
		}
	}
	setFloat := func(key string, v *float64) {
		if v != nil {
			p[key] = *v
		}
	}

	setInt("max_tokens", r.MaxTokens)
	setInt("max_completion_tokens", r.MaxCompletionTokens)
	setInt("seed", r.Seed)
	setFloat("temperature", r.Temperature)
	setFloat("top_p", r.TopP)
	setFloat("frequency_penalty", r.FrequencyPenalty)
	setFloat("presence_penalty", r.PresencePenalty)

	if r.ParallelToolCalls != nil {
		p["parallel_tool_calls"] = *r.ParallelToolCalls
	}
	if r.Stop != nil && len(r.Stop.Val) > 0 {
		p["stop"] = r.Stop.Val
	}
	if len(r.LogitBias) > 0 {
		p["logit_bias"] = r.LogitBias
	}
	if r.User != "" {
		p["user"] = r.User
	}
	if len(r.Tools) > 0 {
		p["tools"] = r.Tools
	}
	if r.ToolChoice != nil {
		p["tool_choice"] = r.ToolChoice
	}

	return p
}

// BetaParse defaults to true.
func (r *ChatRequest) BetaParse() bool {
	return r.UseBetaParse == nil || *r.UseBetaParse
}

type ChatMessage struct {
	Role    string  `json:"role" binding:"required,oneof=user assistant system developer"`
	Content Content `json:"content"` // string or []ContentPart
	Name    string  `json:"name,omitempty"`
}

// Content handles the union type: string | []ContentPart
type Content struct {
	Text  string
	Parts []ContentPart
}

func (c *Content) UnmarshalJSON(data []byte) error {
	// Try string first
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	// Try array of parts
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Parts)
	}
	// Null or other?
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// String joins the text parts; non-text parts are skipped.
func (c Content) String() string {
	if c.Parts == nil {
		return c.Text
	}
	var texts []string
	for _, part := range c.Parts {
		if part.Type == "text" && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ResponseFormat struct {
	Type       string            `json:"type" binding:"required,oneof=text json_object json_schema"`
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty" binding:"required_if=Type json_schema"`
}

type JSONSchemaFormat struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema" binding:"required"`
	Strict      *bool                  `json:"strict,omitempty"`
}

type Stop struct {
	Val []string
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &s.Val)
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	s.Val = []string{str}
	return nil
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if len(s.Val) == 1 {
		return json.Marshal(s.Val[0])
	}
	return json.Marshal(s.Val)
}

type Tool struct {
	Type     string              `json:"type"` // "function"
	Function FunctionDescription `json:"function"`
}

type FunctionDescription struct {
	Description string                 `json:"description,omitempty"`
	Name        string                 `json:"name"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema object
	Strict      *bool                  `json:"strict,omitempty"`
}

// AdaptRequest asks for a dry-run adaptation without calling a provider.
type AdaptRequest struct {
	Model          string                 `json:"model" binding:"required"`
	Parameters     map[string]interface{} `json:"parameters"`
	ResponseFormat *ResponseFormat        `json:"response_format,omitempty"`
	UseBetaParse   *bool                  `json:"use_beta_parse,omitempty"`
}

func (r *AdaptRequest) BetaParse() bool {
	return r.UseBetaParse == nil || *r.UseBetaParse
}

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
	Developer Role = "developer"
	Anonymous Role = "anonymous"
)
