// Package embedding turns query text into vectors for knowledge search.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/agrisense/agriquery/common/httpx"
	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/config"
)

// Embedder produces an embedding for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NewFromConfig builds the configured embedder. Remote providers are
// wrapped in Fallback so a failing service degrades to hashed vectors.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	ec := cfg.Embedding
	hash := NewHashEmbedder(ec.Dimensions)
	switch ec.Provider {
	case "", "hash":
		return hash, nil
	case "openai":
		return &Fallback{Primary: NewOpenAIEmbedder(ec), Secondary: hash}, nil
	case "http":
		client := httpx.NewFromConfig(&cfg.HTTP, config.Millis(cfg.Pipeline.StageTimeouts.RetrievalMs, 30*time.Second))
		return &Fallback{Primary: &HTTPEmbedder{Endpoint: ec.BaseURL, Model: ec.Model, Dims: ec.Dimensions, Client: client}, Secondary: hash}, nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", ec.Provider)
	}
}

// Fallback serves Secondary when Primary fails.
type Fallback struct {
	Primary   Embedder
	Secondary Embedder
}

func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Primary.Embed(ctx, text)
	if err == nil {
		return v, nil
	}
	logger.Warnf("embedding: primary failed, using fallback: %v", err)
	return f.Secondary.Embed(ctx, text)
}

func (f *Fallback) Dimensions() int { return f.Primary.Dimensions() }
