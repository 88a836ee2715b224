package api

type Model struct {
	ID                    string   `json:"id"`
	Object                string   `json:"object"`
	OwnedBy               string   `json:"owned_by"`
	Provider              string   `json:"provider"`
	Family                string   `json:"family"`
	TokenParam            string   `json:"token_param"`
	StructuredOutput      bool     `json:"structured_output"`
	UnsupportedParameters []string `json:"unsupported_parameters"`
	Pricing               *Pricing `json:"pricing,omitempty"`
}

// Pricing is in USD per million tokens.
type Pricing struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cache_write,omitempty"`
	CacheRead  float64 `json:"cache_read,omitempty"`
}

type ModelFilter struct {
	ID               string `form:"id"`
	Provider         string `form:"provider"`
	StructuredOutput *bool  `form:"structured_output"`
}
