package fusion

// RRFStrategy implements Reciprocal Rank Fusion: each list contributes
// 1/(k+rank) for every chunk it returns.
type RRFStrategy struct {
	K int // RRF parameter (default: 60)
}

func NewRRFStrategy(k int) *RRFStrategy {
	if k <= 0 {
		k = 60
	}
	return &RRFStrategy{K: k}
}

func (s *RRFStrategy) Fuse(inputs []RetrieverResult) []Result {
	acc := newAccumulator()
	for _, in := range inputs {
		for idx, c := range in.Results {
			r := acc.add(c, in.Retriever)
			if r == nil {
				continue
			}
			r.Score += 1.0 / (float64(s.K) + float64(idx+1))
			if rel := clamp01(c.Rank); rel > r.Relevance {
				r.Relevance = rel
			}
		}
	}
	out := acc.results()
	sortResults(out)
	return out
}

func (s *RRFStrategy) Name() string { return "rrf" }
