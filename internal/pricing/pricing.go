package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrInvalidCacheOp   = errors.New("cache operation must be 'write' or 'read'")
	ErrCacheUnsupported = errors.New("model has no prompt cache pricing")
)

// Rate is USD per million tokens.
type Rate struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

func (r Rate) HasCache() bool {
	return r.CacheWrite > 0 || r.CacheRead > 0
}

// Usage counts tokens by billing class. InputTokens excludes cached tokens.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
}

type CacheOp string

const (
	CacheWrite CacheOp = "write"
	CacheRead  CacheOp = "read"
)

type prefixRate struct {
	prefix string
	rate   Rate
}

// Calculator prices token usage by longest matching model-name prefix.
type Calculator struct {
	logger *zap.Logger
	rates  []prefixRate
}

func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Calculator{logger: logger}
	for prefix, rate := range claudeRates {
		c.rates = append(c.rates, prefixRate{prefix, rate})
	}
	for prefix, rate := range openAIRates {
		c.rates = append(c.rates, prefixRate{prefix, rate})
	}
	sort.Slice(c.rates, func(i, j int) bool {
		if len(c.rates[i].prefix) != len(c.rates[j].prefix) {
			return len(c.rates[i].prefix) > len(c.rates[j].prefix)
		}
		return c.rates[i].prefix < c.rates[j].prefix
	})
	return c
}

// Rate looks up the price for model. Unknown Claude models are priced as
// Claude 3.5 Sonnet; other unknown models report false.
func (c *Calculator) Rate(model string) (Rate, bool) {
	for _, r := range c.rates {
		if strings.HasPrefix(model, r.prefix) {
			return r.rate, true
		}
	}

	if strings.HasPrefix(model, "claude") {
		c.logger.Warn("No pricing for model, using Claude 3.5 Sonnet rates", zap.String("model", model))
		return claudeRates[claude35Sonnet], true
	}
	return Rate{}, false
}

// Cost returns the USD cost of u on model, or zero when model is unpriced.
func (c *Calculator) Cost(model string, u Usage) float64 {
	r, ok := c.Rate(model)
	if !ok {
		c.logger.Warn("No pricing for model", zap.String("model", model))
		return 0
	}

	total := float64(u.InputTokens)*r.Input +
		float64(u.OutputTokens)*r.Output +
		float64(u.CacheWriteTokens)*r.CacheWrite +
		float64(u.CacheReadTokens)*r.CacheRead
	return total / 1_000_000
}

// PromptCacheCost prices writing or reading tokens from the prompt cache.
func (c *Calculator) PromptCacheCost(model string, tokens int, op CacheOp) (float64, error) {
	if op != CacheWrite && op != CacheRead {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidCacheOp, op)
	}

	r, ok := c.Rate(model)
	if !ok || !r.HasCache() {
		return 0, fmt.Errorf("%w: %s", ErrCacheUnsupported, model)
	}

	rate := r.CacheRead
	if op == CacheWrite {
		rate = r.CacheWrite
	}
	return float64(tokens) * rate / 1_000_000, nil
}

// Micros converts USD to integer micro-dollars for storage.
func Micros(usd float64) int64 {
	return int64(math.Round(usd * 1_000_000))
}
