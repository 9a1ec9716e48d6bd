package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v2/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/config"
)

func chatServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(seen)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestOpenAIGenerator(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, "Tưới vào sáng sớm.", &seen)
	defer srv.Close()

	cfg := config.Default().LLM
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	g := NewOpenAIGenerator(cfg, option.WithMaxRetries(0))

	out, err := g.Generate(context.Background(), "cách tưới cà chua", Options{Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "Tưới vào sáng sớm.", out)
	assert.Equal(t, "gpt-4o-mini", seen["model"])
	assert.InDelta(t, 0.3, seen["temperature"], 1e-9)
	assert.EqualValues(t, 4096, seen["max_tokens"])
}

func TestOpenAIGeneratorEmptyCompletion(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, "", &seen)
	defer srv.Close()

	cfg := config.Default().LLM
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	_, err := NewOpenAIGenerator(cfg, option.WithMaxRetries(0)).Generate(context.Background(), "q", Options{})
	assert.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	cfg := config.LLMConfig{Temperature: 0.7, MaxTokens: 100}
	assert.Equal(t, Options{Temperature: 0.7, MaxTokens: 100}, Options{}.withDefaults(cfg))
	assert.Equal(t, Options{Temperature: 0.5, MaxTokens: 20}, Options{Temperature: 0.5, MaxTokens: 20}.withDefaults(cfg))
}

func TestPrompts(t *testing.T) {
	p := RAGPrompt("cách tưới cà chua", "[Nguồn 1] (so tay)\nTưới sáng sớm")
	assert.Contains(t, p, "[Nguồn 1] (so tay)")
	assert.Contains(t, p, "cách tưới cà chua")
	assert.NotContains(t, p, "{context}")

	assert.Contains(t, FallbackPrompt("xin chào"), "Câu hỏi: xin chào")
	e := ExplainPrompt("doanh thu tháng 3", `{"revenue": 1000}`)
	assert.Contains(t, e, `{"revenue": 1000}`)
	assert.Contains(t, e, "Câu hỏi gốc: doanh thu tháng 3")
}

func TestNewFromConfigRejectsUnknown(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.LLMConfig{Provider: "claude-local"})
	assert.Error(t, err)
}
