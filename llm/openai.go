package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/agrisense/agriquery/config"
)

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client openai.Client
	cfg    config.LLMConfig
}

func NewOpenAIGenerator(cfg config.LLMConfig, extra ...option.RequestOption) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIGenerator{client: openai.NewClient(opts...), cfg: cfg}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	opts = opts.withDefaults(g.cfg)
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.cfg.Model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("llm: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
