package pricing

const claude35Sonnet = "claude-3-5-sonnet"

var claudeRates = map[string]Rate{
	"claude-3-7-sonnet": {Input: 3, Output: 15, CacheWrite: 3.75, CacheRead: 0.30},
	claude35Sonnet:      {Input: 3, Output: 15, CacheWrite: 3.75, CacheRead: 0.30},
	"claude-3-5-haiku":  {Input: 0.80, Output: 4, CacheWrite: 1, CacheRead: 0.08},
	"claude-3-opus":     {Input: 15, Output: 75, CacheWrite: 18.75, CacheRead: 1.50},
	"claude-3-sonnet":   {Input: 3, Output: 15},
	"claude-3-haiku":    {Input: 0.25, Output: 1.25, CacheWrite: 0.30, CacheRead: 0.03},
	"claude-2":          {Input: 8, Output: 24},
}

// OpenAI has no cache write charge; CacheRead is the cached input rate.
var openAIRates = map[string]Rate{
	"gpt-4.5-preview": {Input: 75, Output: 150, CacheRead: 37.5},
	"o3-mini":         {Input: 1.10, Output: 4.40, CacheRead: 0.55},
	"o1-mini":         {Input: 1.10, Output: 4.40, CacheRead: 0.55},
	"o1":              {Input: 15, Output: 60, CacheRead: 7.5},
	"gpt-4o-mini":     {Input: 0.15, Output: 0.60, CacheRead: 0.075},
	"gpt-4o":          {Input: 2.50, Output: 10, CacheRead: 1.25},
	"gpt-4-turbo":     {Input: 10, Output: 30},
	"gpt-4":           {Input: 30, Output: 60},
	"gpt-3.5-turbo":   {Input: 0.50, Output: 1.50},
}
