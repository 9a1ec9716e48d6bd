// Package knowledge defines the knowledge index accessor contracts and
// their backends: SQLite FTS5, Elasticsearch, Milvus and an in-memory store.
package knowledge

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/agrisense/agriquery/schema"
)

// ErrUnsupported is returned by a backend that lacks a search primitive.
// Callers fall back to an in-process algorithm over Scan/ScanEmbeddings.
var ErrUnsupported = errors.New("knowledge: operation not supported by backend")

// Filter narrows a search. Empty fields do not filter.
type Filter struct {
	// UserID limits results to chunks owned by the user plus shared chunks.
	UserID   string
	CropType string
	// MinSimilarity drops vector hits below this cosine similarity.
	MinSimilarity float64
}

// Chunk is a stored knowledge chunk with its embedding.
type Chunk struct {
	schema.Candidate
	UserID    string    `json:"user_id,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// FullTextIndex ranks chunks lexically, weighting crop type over section
// title over topic over body. Rank is higher-is-better.
type FullTextIndex interface {
	SearchWeightedFTS(ctx context.Context, query string, filter Filter, limit int, minRank float64) ([]schema.Candidate, error)
	Scan(ctx context.Context, filter Filter) ([]schema.Candidate, error)
}

// VectorIndex ranks chunks by embedding similarity. Rank is cosine similarity.
type VectorIndex interface {
	VectorSearch(ctx context.Context, embedding []float32, limit int, filter Filter) ([]schema.Candidate, error)
	ScanEmbeddings(ctx context.Context, filter Filter) ([]Chunk, error)
}

// Store bundles the two accessors a pipeline needs.
type Store struct {
	FullText FullTextIndex
	Vector   VectorIndex
	closers  []func() error
}

// Close releases backend connections.
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Cosine returns the cosine similarity of a and b, 0 when undefined.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CosineSearch scores every chunk against query in process and returns
// the best limit hits at or above filter.MinSimilarity. O(n) per query.
func CosineSearch(chunks []Chunk, query []float32, limit int, filter Filter) []schema.Candidate {
	out := make([]schema.Candidate, 0, len(chunks))
	for _, c := range chunks {
		if !filter.accepts(c) {
			continue
		}
		sim := Cosine(query, c.Embedding)
		if sim < filter.MinSimilarity {
			continue
		}
		cand := c.Candidate
		cand.Rank = sim
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SearchVector uses the backend's primitive and degrades to CosineSearch
// when the backend reports ErrUnsupported.
func SearchVector(ctx context.Context, idx VectorIndex, query []float32, limit int, filter Filter) ([]schema.Candidate, error) {
	res, err := idx.VectorSearch(ctx, query, limit, filter)
	if !errors.Is(err, ErrUnsupported) {
		return res, err
	}
	chunks, err := idx.ScanEmbeddings(ctx, filter)
	if err != nil {
		return nil, err
	}
	return CosineSearch(chunks, query, limit, filter), nil
}

func (f Filter) accepts(c Chunk) bool {
	if f.UserID != "" && c.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.CropType != "" && !containsFold(c.CropType, f.CropType) {
		return false
	}
	return true
}
