package knowledge

import (
	"context"
	"strings"
	"sync"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

// MemoryIndex keeps chunks in process. It has no ranking primitives, so
// callers always take their in-process fallback paths.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []Chunk
}

func NewMemoryIndex(chunks ...Chunk) *MemoryIndex {
	m := &MemoryIndex{}
	m.Put(chunks...)
	return m
}

// Put adds or replaces chunks by ID.
func (m *MemoryIndex) Put(chunks ...Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		replaced := false
		for i := range m.chunks {
			if m.chunks[i].ID == c.ID {
				m.chunks[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			m.chunks = append(m.chunks, c)
		}
	}
}

func (m *MemoryIndex) SearchWeightedFTS(context.Context, string, Filter, int, float64) ([]schema.Candidate, error) {
	return nil, ErrUnsupported
}

func (m *MemoryIndex) Scan(_ context.Context, filter Filter) ([]schema.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schema.Candidate, 0, len(m.chunks))
	for _, c := range m.chunks {
		if filter.accepts(c) {
			out = append(out, c.Candidate)
		}
	}
	return out, nil
}

func (m *MemoryIndex) VectorSearch(context.Context, []float32, int, Filter) ([]schema.Candidate, error) {
	return nil, ErrUnsupported
}

func (m *MemoryIndex) ScanEmbeddings(_ context.Context, filter Filter) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if filter.accepts(c) && len(c.Embedding) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(lexicon.Normalize(haystack), lexicon.Normalize(needle))
}
