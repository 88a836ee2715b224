package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_Parameters(t *testing.T) {
	body := `{
		"model": "o3-mini",
		"messages": [{"role": "user", "content": "hi"}],
		"max_tokens": 100,
		"temperature": 0,
		"stop": "END",
		"parallel_tool_calls": false
	}`

	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, map[string]any{
		"max_tokens":          100,
		"temperature":         0.0,
		"stop":                []string{"END"},
		"parallel_tool_calls": false,
	}, req.Parameters())
	assert.True(t, req.BetaParse())
}

func TestChatRequest_BetaParseOptOut(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"use_beta_parse": false}`), &req))
	assert.False(t, req.BetaParse())
}

func TestContent(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"image_url"},{"type":"text","text":"b"}]`), &c))
	assert.Equal(t, "a\nb", c.String())

	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &c))
	assert.Equal(t, "plain", c.Text)
}

func TestProblem_MarshalJSON(t *testing.T) {
	p := BadRequestError("bad model", WithExtension("model", "gpt-99"), WithLog(errors.New("internal")))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "about:blank", out["type"])
	assert.Equal(t, float64(http.StatusBadRequest), out["status"])
	assert.Equal(t, "gpt-99", out["model"])
	assert.NotContains(t, out, "Log")
	assert.EqualError(t, errors.Unwrap(p), "internal")
}
