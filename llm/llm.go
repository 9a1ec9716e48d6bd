// Package llm wraps the text generation backends.
package llm

import (
	"context"
	"fmt"

	"github.com/agrisense/agriquery/config"
)

// Options tunes a single generation call. Zero values use the backend defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Generator produces text for a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// NewFromConfig builds the generator named by cfg.LLM.Provider.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIGenerator(cfg), nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func (o Options) withDefaults(cfg config.LLMConfig) Options {
	if o.Temperature == 0 {
		o.Temperature = cfg.Temperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = cfg.MaxTokens
	}
	return o
}
