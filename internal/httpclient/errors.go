package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// UpstreamError represents an error returned by an upstream service
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
	Header     http.Header
}

func (e *UpstreamError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("upstream error: status %d from %s: %s", e.StatusCode, e.URL, msg)
	}
	return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.URL)
}

// Message extracts error.message from the usual JSON error envelope.
func (e *UpstreamError) Message() string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}

// RateLimited reports a 429 response.
func (e *UpstreamError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// RetryAfter parses the retry-after header given in seconds.
func (e *UpstreamError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(e.Header.Get("Retry-After"), 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
