package embedding

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/agrisense/agriquery/common/httpx"
)

// HTTPEmbedder posts {"model","input"} to a self-hosted embedding service
// and reads data[0].embedding, or a bare embedding array.
type HTTPEmbedder struct {
	Endpoint string
	Model    string
	Dims     int
	Client   *httpx.Client
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := e.Client.PostJSON(ctx, e.Endpoint, map[string]any{"model": e.Model, "input": text}, nil)
	if err != nil {
		return nil, err
	}
	arr := gjson.GetBytes(body, "data.0.embedding")
	if !arr.Exists() {
		arr = gjson.GetBytes(body, "embedding")
	}
	if !arr.IsArray() {
		return nil, fmt.Errorf("embedding: no vector in response from %s", e.Endpoint)
	}
	vals := arr.Array()
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(v.Float())
	}
	return out, nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.Dims }
