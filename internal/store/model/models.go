package model

import (
	"time"
)

// CompletionLog captures one chat completion routed through the gateway.
type CompletionLog struct {
	ID            string `db:"id" json:"id"`
	APIKeyID      string `db:"api_key_id" json:"api_key_id"`
	AppName       string `db:"app_name" json:"app_name"`
	Provider      string `db:"provider" json:"provider"`
	Model         string `db:"model" json:"model"`
	UpstreamModel string `db:"upstream_model" json:"upstream_model"`
	CallPath      string `db:"call_path" json:"call_path"`
	// JSON array of parameter names removed before sending
	Dropped      string `db:"dropped_params" json:"dropped_params"`
	FinishReason string `db:"finish_reason" json:"finish_reason"`

	InputTokens      int `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int `db:"output_tokens" json:"output_tokens"`
	CachedTokens     int `db:"cached_tokens" json:"cached_tokens"`
	CacheWriteTokens int `db:"cache_write_tokens" json:"cache_write_tokens"`

	LatencyMS    int64  `db:"latency_ms" json:"latency_ms"`
	StatusCode   int    `db:"status_code" json:"status_code"`
	CostMicros   int64  `db:"cost_micros" json:"cost_micros"`
	ErrorMessage string `db:"error_message" json:"error_message,omitempty"`
	// served from the response cache without an upstream call
	CacheHit  bool      `db:"cache_hit" json:"cache_hit"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DailyStats is a helper struct for analytics queries.
type DailyStats struct {
	Date            string  `db:"date" json:"date"`
	TotalRequests   int     `db:"total_requests" json:"total_requests"`
	FailedRequests  int     `db:"failed_requests" json:"failed_requests"`
	CacheHits       int     `db:"cache_hits" json:"cache_hits"`
	TotalTokens     int     `db:"total_tokens" json:"total_tokens"`
	TotalCostMicros int64   `db:"total_cost_micros" json:"total_cost_micros"`
	AvgLatency      float64 `db:"avg_latency" json:"avg_latency_ms"`
}

type PathStats struct {
	CallPath string `db:"call_path" json:"call_path"`
	Requests int    `db:"requests" json:"requests"`
}
