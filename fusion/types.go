package fusion

import "github.com/agrisense/agriquery/schema"

// Retriever keys used by Layer 2.
const (
	RetrieverVector  = "vector"
	RetrieverLexical = "lexical"
)

// RetrieverResult groups the candidates returned by a single retriever for a given query.
type RetrieverResult struct {
	// Retriever is the logical retriever key (e.g. "vector", "lexical").
	Retriever string
	// Results are ranked best first. Scores live in Candidate.Rank.
	Results []schema.Candidate
}

// Result is one fused candidate.
type Result struct {
	schema.Candidate
	// Score orders the fused list.
	Score float64
	// Relevance is a [0,1] estimate of how well the chunk matches. It
	// equals Score for score-based strategies and the best per-retriever
	// score for rank-based ones.
	Relevance float64
	// Retrievers lists the retrievers that returned the chunk.
	Retrievers []string
}

// Strategy defines pluggable fusion strategies.
type Strategy interface {
	// Fuse merges multiple retriever result lists into a single ranked list.
	Fuse(inputs []RetrieverResult) []Result
	// Name returns the strategy identifier.
	Name() string
}
