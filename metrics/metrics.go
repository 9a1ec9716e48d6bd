package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	layerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriquery_layer_latency_ms",
		Help:    "Latency of pipeline layers in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"layer"})

	layerOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriquery_layer_outcome_total",
		Help: "Layer results by outcome (accepted/rejected/error)",
	}, []string{"layer", "outcome"})

	retrieverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriquery_retriever_latency_ms",
		Help:    "Latency of knowledge index calls in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500, 1200},
	}, []string{"type"})

	retrieverResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriquery_retriever_results",
		Help:    "Number of candidates returned by a knowledge index call",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"type"})

	fusionLists = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agriquery_fusion_input_lists",
		Help:    "Number of ranked lists fused per query",
		Buckets: []float64{0, 1, 2, 3, 4},
	})

	vectorTop1 = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agriquery_vector_top1",
		Help:    "Top1 vector similarity distribution",
		Buckets: []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1.0},
	})

	intentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriquery_intent_total",
		Help: "Classified intents by classifier path (rule/remote)",
	}, []string{"intent", "path"})

	cacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriquery_cache_events_total",
		Help: "Search cache hits, misses and evictions",
	}, []string{"event"})

	scopeRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriquery_scope_rejections_total",
		Help: "Unclassified queries rejected as out of scope",
	}, []string{"reason"})

	actionResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriquery_action_results_total",
		Help: "Action handler results by intent and success",
	}, []string{"intent", "success"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// ObserveLayer records latency and outcome for a pipeline layer.
func ObserveLayer(layer string, start time.Time, outcome string) {
	ensureRegistered()
	layerLatency.WithLabelValues(layer).Observe(float64(time.Since(start).Milliseconds()))
	layerOutcome.WithLabelValues(layer, outcome).Inc()
}

// ObserveRetriever records latency and result size for an index call.
func ObserveRetriever(typ string, start time.Time, results int) {
	ensureRegistered()
	retrieverLatency.WithLabelValues(typ).Observe(float64(time.Since(start).Milliseconds()))
	retrieverResults.WithLabelValues(typ).Observe(float64(results))
}

// ObserveFusion records how many lists were fused.
func ObserveFusion(n int) {
	ensureRegistered()
	fusionLists.Observe(float64(n))
}

// ObserveVectorTop1 records the best vector similarity of a query.
func ObserveVectorTop1(score float64) {
	ensureRegistered()
	if score >= 0 {
		vectorTop1.Observe(score)
	}
}

// IncIntent counts a classification.
func IncIntent(intent, path string) {
	ensureRegistered()
	intentTotal.WithLabelValues(intent, path).Inc()
}

// IncCache counts a cache event: hit, miss or eviction.
func IncCache(event string) {
	ensureRegistered()
	cacheEvents.WithLabelValues(event).Inc()
}

// IncScopeRejection counts an out-of-scope rejection.
func IncScopeRejection(reason string) {
	ensureRegistered()
	scopeRejections.WithLabelValues(reason).Inc()
}

// IncAction counts an action handler result.
func IncAction(intent string, success bool) {
	ensureRegistered()
	s := "false"
	if success {
		s = "true"
	}
	actionResults.WithLabelValues(intent, s).Inc()
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		layerLatency, layerOutcome, retrieverLatency, retrieverResults, fusionLists,
		vectorTop1, intentTotal, cacheEvents, scopeRejections, actionResults,
	}
}
