package metrics

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/agrisense/agriquery/common/logger"
)

// RetrievalTrace records one Layer 2 run for structured logging.
type RetrievalTrace struct {
	mu sync.Mutex

	Query      string    `json:"query"`
	Timestamp  time.Time `json:"timestamp"`
	Hybrid     bool      `json:"hybrid"`
	Threshold  float64   `json:"threshold"`
	CropFilter string    `json:"crop_filter,omitempty"`

	RetrieverMetrics map[string]RetrieverStats `json:"retriever_metrics"`
	TotalRetrieved   int                       `json:"total_retrieved"`

	FusionMethod      string `json:"fusion_method,omitempty"`
	FusionResultCount int    `json:"fusion_result_count"`

	AvgSimilarity    float64 `json:"avg_similarity"`
	SynthesisSkipped bool    `json:"synthesis_skipped,omitempty"`
	SynthesisMs      int64   `json:"synthesis_ms,omitempty"`
	Degraded         bool    `json:"degraded,omitempty"`

	TotalLatencyMs int64 `json:"total_latency_ms"`
	Found          bool  `json:"found"`
}

// RetrieverStats summarises one sub-search.
type RetrieverStats struct {
	Type        string  `json:"type"`
	LatencyMs   int64   `json:"latency_ms"`
	ResultCount int     `json:"result_count"`
	AvgScore    float64 `json:"avg_score"`
	TopScore    float64 `json:"top_score"`
}

func NewRetrievalTrace(query string) *RetrievalTrace {
	return &RetrievalTrace{
		Query:            query,
		Timestamp:        time.Now(),
		RetrieverMetrics: make(map[string]RetrieverStats),
	}
}

// AddRetrieverStats adds or merges stats for a retriever type. It is safe
// to call from concurrent sub-searches.
func (t *RetrievalTrace) AddRetrieverStats(stats RetrieverStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TotalRetrieved += stats.ResultCount
	existing, ok := t.RetrieverMetrics[stats.Type]
	if !ok {
		t.RetrieverMetrics[stats.Type] = stats
		return
	}
	existing.LatencyMs = (existing.LatencyMs + stats.LatencyMs) / 2
	existing.ResultCount += stats.ResultCount
	if stats.TopScore > existing.TopScore {
		existing.TopScore = stats.TopScore
	}
	existing.AvgScore = (existing.AvgScore + stats.AvgScore) / 2
	t.RetrieverMetrics[stats.Type] = existing
}

func (t *RetrievalTrace) RecordFusion(method string, resultCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FusionMethod = method
	t.FusionResultCount = resultCount
}

// Finish stamps the total latency and logs the trace at debug level.
func (t *RetrievalTrace) Finish(found bool) {
	t.mu.Lock()
	t.Found = found
	t.TotalLatencyMs = time.Since(t.Timestamp).Milliseconds()
	data, err := json.Marshal(t)
	t.mu.Unlock()
	if err == nil {
		logger.Debugf("[RETRIEVAL_METRICS] %s", data)
	}
}
