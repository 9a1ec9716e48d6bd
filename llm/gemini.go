package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/config"
)

// GeminiGenerator drives a Gemini model through the eino chat model.
type GeminiGenerator struct {
	chat *gemini.ChatModel
	cfg  config.LLMConfig
}

func NewGeminiGenerator(ctx context.Context, cfg config.LLMConfig) (*GeminiGenerator, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logger.Errorf("llm: create gemini client: %v", err)
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temperature := float32(cfg.Temperature)
	maxTokens := cfg.MaxTokens
	chat, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return &GeminiGenerator{chat: chat, cfg: cfg}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	opts = opts.withDefaults(g.cfg)
	out, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)},
		model.WithTemperature(float32(opts.Temperature)),
		model.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		return "", err
	}
	if out == nil || out.Content == "" {
		return "", errors.New("llm: empty completion")
	}
	return out.Content, nil
}
