package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/agrisense/agriquery/lexicon"
)

// HashEmbedder builds deterministic bag-of-features vectors from folded
// words and character trigrams. It needs no service and keeps lexical
// similarity, which is enough for a degraded vector path.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 768
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dims)
	for _, w := range lexicon.Words(lexicon.Fold(text)) {
		h.add(v, "w:"+w, 1)
		r := []rune(" " + w + " ")
		for i := 0; i+3 <= len(r); i++ {
			h.add(v, "t:"+string(r[i:i+3]), 0.5)
		}
	}
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
