package fusion

import (
	"sort"

	"github.com/agrisense/agriquery/schema"
)

// WeightedStrategy adds each retriever's score times its weight. A chunk
// returned by several retrievers accumulates all of its weighted scores.
type WeightedStrategy struct {
	Weights map[string]float64 // Weights per retriever type
}

func NewWeightedStrategy(weights map[string]float64) *WeightedStrategy {
	if weights == nil {
		weights = make(map[string]float64)
	}
	return &WeightedStrategy{Weights: weights}
}

func (s *WeightedStrategy) Fuse(inputs []RetrieverResult) []Result {
	acc := newAccumulator()
	for _, in := range inputs {
		weight, ok := s.Weights[in.Retriever]
		if !ok {
			weight = 1.0
		}
		for _, c := range in.Results {
			if r := acc.add(c, in.Retriever); r != nil {
				r.Score += c.Rank * weight
			}
		}
	}
	out := acc.results()
	for i := range out {
		out[i].Relevance = clamp01(out[i].Score)
	}
	sortResults(out)
	return out
}

func (s *WeightedStrategy) Name() string { return "weighted" }

// ScaleByMax divides every score of a list by its largest score, mapping
// unbounded lexical ranks into [0,1]. The input is not modified.
func ScaleByMax(in RetrieverResult) RetrieverResult {
	maxScore := 0.0
	for _, c := range in.Results {
		if c.Rank > maxScore {
			maxScore = c.Rank
		}
	}
	out := RetrieverResult{Retriever: in.Retriever, Results: make([]schema.Candidate, len(in.Results))}
	for i, c := range in.Results {
		if maxScore > 0 {
			c.Rank /= maxScore
		} else {
			c.Rank = 0
		}
		out.Results[i] = c
	}
	return out
}

type accumulator struct {
	byID  map[string]*Result
	order []string
}

func newAccumulator() *accumulator {
	return &accumulator{byID: map[string]*Result{}}
}

// add registers c under retriever and returns its aggregate. Candidates
// without an ID are skipped.
func (a *accumulator) add(c schema.Candidate, retriever string) *Result {
	if c.ID == "" {
		return nil
	}
	r, ok := a.byID[c.ID]
	if !ok {
		r = &Result{Candidate: c}
		a.byID[c.ID] = r
		a.order = append(a.order, c.ID)
	}
	r.Retrievers = append(r.Retrievers, retriever)
	return r
}

func (a *accumulator) results() []Result {
	out := make([]Result, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.byID[id])
	}
	return out
}

// sortResults orders by score, keeping first-seen order on ties.
func sortResults(out []Result) {
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Passthrough keeps a single list as it is, its scores used both for
// ordering and as relevance.
func Passthrough(in RetrieverResult) []Result {
	out := make([]Result, 0, len(in.Results))
	for _, c := range in.Results {
		out = append(out, Result{Candidate: c, Score: c.Rank, Relevance: clamp01(c.Rank), Retrievers: []string{in.Retriever}})
	}
	sortResults(out)
	return out
}
