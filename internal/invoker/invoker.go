package invoker

import (
	"context"
	"errors"

	"github.com/nulzo/model-helpers/internal/capability"
)

var (
	ErrEmptyResponse = errors.New("provider returned no content")
	ErrDecode        = errors.New("response is not valid JSON")
	ErrRefusal       = errors.New("model refused the request")
	ErrSchema        = errors.New("response does not match schema")
)

// Message is a single chat turn with flattened text content.
type Message struct {
	Role    string
	Content string
}

// Call is a fully adapted request ready to send.
type Call struct {
	Request  *capability.Request
	Messages []Message
}

// Usage follows the OpenAI convention: PromptTokens includes cached and
// cache-write tokens.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	CacheWriteTokens int
}

func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Result is what a provider produced. Path is the call path that finally
// succeeded, which differs from the request when a fallback was taken.
type Result struct {
	ID           string
	Model        string
	Content      string
	Reasoning    string
	Parsed       any
	Refusal      string
	FinishReason string
	Usage        Usage
	Path         capability.CallPath
}

// Invoker performs the network call for one provider.
type Invoker interface {
	Provider() capability.Provider
	Invoke(ctx context.Context, call Call) (*Result, error)
}

// WantsJSON reports whether the content of a response on path should be decoded.
func WantsJSON(path capability.CallPath) bool {
	return path != capability.PathPlain
}
