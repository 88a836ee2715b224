package api

type ChatResponse struct {
	ID       string         `json:"id"`
	Object   string         `json:"object"` // "chat.completion"
	Created  int64          `json:"created"`
	Model    string         `json:"model"`
	Provider string         `json:"provider,omitempty"`
	Choices  []Choice       `json:"choices"`
	Usage    *ResponseUsage `json:"usage,omitempty"`

	// how the request was sent upstream
	CallPath          string   `json:"call_path,omitempty"`
	DroppedParameters []string `json:"dropped_parameters,omitempty"`
}

type Choice struct {
	Index        int              `json:"index"`
	Message      *ResponseMessage `json:"message,omitempty"`
	FinishReason string           `json:"finish_reason"`
}

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// decoded JSON content for json mode and schema paths
	Parsed  interface{} `json:"parsed,omitempty"`
	Refusal string      `json:"refusal,omitempty"`
}

type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`

	// Cost in USD
	Cost *float64 `json:"cost,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens     int `json:"cached_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// AdaptResponse is the dry-run view of what would be sent upstream.
type AdaptResponse struct {
	Model             string                 `json:"model"`
	Provider          string                 `json:"provider"`
	TokenParam        string                 `json:"token_param"`
	Parameters        map[string]interface{} `json:"parameters"`
	CallPath          string                 `json:"call_path"`
	ResponseFormat    string                 `json:"response_format"`
	Schema            map[string]interface{} `json:"schema,omitempty"`
	DroppedParameters []string               `json:"dropped_parameters"`
}

type ErrorResponse struct {
	Code    interface{} `json:"code,omitempty"`
	Message string      `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}
