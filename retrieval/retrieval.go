// Package retrieval is the second knowledge layer: hybrid vector and
// lexical retrieval followed by grounded answer synthesis.
package retrieval

import (
	"context"
	"errors"
	"math"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/embedding"
	"github.com/agrisense/agriquery/fusion"
	"github.com/agrisense/agriquery/knowledge"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/llm"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

const (
	noChunksAnswer = "Xin lỗi, tôi không tìm thấy thông tin liên quan trong tài liệu."
	disclaimer     = "\n\n_Lưu ý: không thể tổng hợp câu trả lời lúc này, đây là nội dung gốc từ tài liệu liên quan nhất._"
	// lowSimilarityConfidence marks a retrieval that was judged irrelevant.
	lowSimilarityConfidence = 0.2
)

// Answers that admit the documents do not cover the question.
var noInfoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)không\s+(có|tìm\s+thấy|cung\s+cấp)\s+thông\s+tin`),
	regexp.MustCompile(`(?i)rất\s+tiếc.*không`),
	regexp.MustCompile(`(?i)tài\s+liệu.*không.*đủ`),
	regexp.MustCompile(`(?i)không\s+đề\s+cập`),
	regexp.MustCompile(`(?i)chưa\s+có\s+thông\s+tin`),
}

// Options narrows one retrieval.
type Options struct {
	UseHybrid  bool
	UserID     string
	CropFilter string
	// Threshold overrides the dynamic vector similarity floor when > 0.
	Threshold float64
}

// Source is one chunk that backed an answer.
type Source struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Page       int     `json:"page,omitempty"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// Result is the outcome of Layer 2.
type Result struct {
	Found         bool          `json:"found"`
	Answer        string        `json:"answer"`
	Confidence    float64       `json:"confidence"`
	AvgSimilarity float64       `json:"avg_similarity"`
	Sources       []Source      `json:"sources"`
	Degraded      bool          `json:"degraded,omitempty"`
	RetrievalTime time.Duration `json:"retrieval_time"`
	SynthesisTime time.Duration `json:"synthesis_time"`
}

// Config tunes an Engine.
type Config struct {
	TopK             int
	MinAvgSimilarity float64
	MaxContextTokens int
	Temperature      float64
	MaxTokens        int
}

// Engine runs Layer 2. It is safe for concurrent use.
type Engine struct {
	fts      knowledge.FullTextIndex
	vec      knowledge.VectorIndex
	embedder embedding.Embedder
	gen      llm.Generator
	lex      *lexicon.Lexicon
	strategy fusion.Strategy
	counter  TokenCounter
	cfg      Config
}

// New builds an Engine. fts may be nil for vector-only retrieval; a nil
// strategy selects weighted 0.7/0.3 fusion and a nil counter approximates
// token counts.
func New(fts knowledge.FullTextIndex, vec knowledge.VectorIndex, embedder embedding.Embedder, gen llm.Generator,
	lex *lexicon.Lexicon, strategy fusion.Strategy, counter TokenCounter, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinAvgSimilarity <= 0 {
		cfg.MinAvgSimilarity = 0.45
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if strategy == nil {
		strategy, _ = fusion.NewStrategy("weighted", 0.7, 0.3, 0)
	}
	if counter == nil {
		counter = approxCounter{}
	}
	return &Engine{
		fts:      fts,
		vec:      vec,
		embedder: embedder,
		gen:      gen,
		lex:      lex,
		strategy: strategy,
		counter:  counter,
		cfg:      cfg,
	}
}

// Retrieve finds the chunks most similar to query and synthesizes an
// answer from them. Collaborator failures lower the result to found=false
// or to a degraded answer; they are never returned as errors.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) Result {
	start := time.Now()
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DynamicThreshold(query, e.lex)
	}
	filter := knowledge.Filter{UserID: opts.UserID, CropType: opts.CropFilter, MinSimilarity: threshold}

	trace := metrics.NewRetrievalTrace(query)
	trace.Hybrid = opts.UseHybrid
	trace.Threshold = threshold
	trace.CropFilter = opts.CropFilter
	res := e.retrieve(ctx, query, filter, opts.UseHybrid, trace)
	res.RetrievalTime = time.Since(start) - res.SynthesisTime
	trace.AvgSimilarity = res.AvgSimilarity
	trace.SynthesisMs = res.SynthesisTime.Milliseconds()
	trace.Degraded = res.Degraded
	trace.Finish(res.Found)
	return res
}

func (e *Engine) retrieve(ctx context.Context, query string, filter knowledge.Filter, hybrid bool, trace *metrics.RetrievalTrace) Result {
	chunks := e.search(ctx, query, filter, hybrid, trace)
	var res Result
	if len(chunks) == 0 {
		logger.Debugf("retrieval: no chunks above similarity %.2f", filter.MinSimilarity)
		res.Answer = noChunksAnswer
		return res
	}
	res.Sources = toSources(chunks)

	var sum float64
	for _, c := range chunks {
		sum += c.Relevance
	}
	res.AvgSimilarity = sum / float64(len(chunks))
	if res.AvgSimilarity < e.cfg.MinAvgSimilarity {
		logger.Infof("retrieval: average similarity %.3f < %.2f, skipping synthesis", res.AvgSimilarity, e.cfg.MinAvgSimilarity)
		res.Answer = "Tài liệu hiện có không chứa thông tin liên quan đến \"" + query + "\". Vui lòng thử câu hỏi khác hoặc cung cấp thêm tài liệu."
		res.Confidence = lowSimilarityConfidence
		trace.SynthesisSkipped = true
		return res
	}

	synthStart := time.Now()
	contextBlock, used := buildContext(chunks, e.counter, e.cfg.MaxContextTokens)
	answer, err := e.gen.Generate(ctx, llm.RAGPrompt(query, contextBlock), llm.Options{
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	res.SynthesisTime = time.Since(synthStart)
	res.Found = true
	res.Confidence = math.Min(res.AvgSimilarity*1.2, 1.0)
	if err != nil {
		logger.Warnf("retrieval: synthesis failed, returning top chunk: %v", err)
		res.Answer = chunks[0].Content + disclaimer
		res.Degraded = true
		return res
	}
	res.Answer = answer
	if admitsNoInfo(answer) {
		logger.Debugf("retrieval: answer reports missing information, lowering confidence")
		res.Confidence = math.Min(res.AvgSimilarity*0.5, 0.3)
	}
	logger.Debugf("retrieval: synthesized from %d/%d chunks avg=%.3f confidence=%.3f",
		used, len(chunks), res.AvgSimilarity, res.Confidence)
	return res
}

// search runs the vector and lexical sub-searches concurrently and fuses
// them into the top K chunks. A hybrid search always goes through the
// fusion strategy, so a missing lexical list contributes nothing instead
// of lifting the vector scores to full weight. Only a vector-only search
// keeps the cosine scores as they are.
func (e *Engine) search(ctx context.Context, query string, filter knowledge.Filter, hybrid bool, trace *metrics.RetrievalTrace) []fusion.Result {
	runLexical := hybrid && e.fts != nil
	perList := e.cfg.TopK
	if hybrid {
		perList = e.cfg.TopK * 2
	}

	var vector, lexical []schema.Candidate
	var g errgroup.Group
	g.Go(func() error {
		vector = e.vectorSearch(ctx, query, filter, perList, trace)
		return nil
	})
	if runLexical {
		g.Go(func() error {
			lexical = e.lexicalSearch(ctx, query, filter, perList, trace)
			return nil
		})
	}
	_ = g.Wait()

	var inputs []fusion.RetrieverResult
	if len(vector) > 0 {
		inputs = append(inputs, fusion.RetrieverResult{Retriever: fusion.RetrieverVector, Results: vector})
	}
	if len(lexical) > 0 {
		inputs = append(inputs, fusion.ScaleByMax(fusion.RetrieverResult{Retriever: fusion.RetrieverLexical, Results: lexical}))
	}
	metrics.ObserveFusion(len(inputs))
	if len(inputs) == 0 {
		return nil
	}

	var fused []fusion.Result
	if hybrid {
		fused = e.strategy.Fuse(inputs)
		trace.RecordFusion(e.strategy.Name(), len(fused))
	} else {
		fused = fusion.Passthrough(inputs[0])
		trace.RecordFusion("passthrough", len(fused))
	}
	if len(fused) > e.cfg.TopK {
		fused = fused[:e.cfg.TopK]
	}
	return fused
}

func (e *Engine) vectorSearch(ctx context.Context, query string, filter knowledge.Filter, limit int, trace *metrics.RetrievalTrace) []schema.Candidate {
	start := time.Now()
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warnf("retrieval: embedding failed: %v", err)
		return nil
	}
	cands, err := knowledge.SearchVector(ctx, e.vec, vec, limit, filter)
	metrics.ObserveRetriever(fusion.RetrieverVector, start, len(cands))
	trace.AddRetrieverStats(retrieverStats(fusion.RetrieverVector, start, cands))
	if err != nil {
		logger.Warnf("retrieval: vector search failed: %v", err)
		return nil
	}
	if len(cands) > 0 {
		metrics.ObserveVectorTop1(cands[0].Rank)
	}
	return cands
}

// lexicalSearch ignores the similarity floor, which only applies to vectors.
func (e *Engine) lexicalSearch(ctx context.Context, query string, filter knowledge.Filter, limit int, trace *metrics.RetrievalTrace) []schema.Candidate {
	start := time.Now()
	filter.MinSimilarity = 0
	cands, err := e.fts.SearchWeightedFTS(ctx, query, filter, limit, 0)
	metrics.ObserveRetriever(fusion.RetrieverLexical, start, len(cands))
	trace.AddRetrieverStats(retrieverStats(fusion.RetrieverLexical, start, cands))
	if err != nil {
		if !errors.Is(err, knowledge.ErrUnsupported) {
			logger.Warnf("retrieval: lexical search failed: %v", err)
		}
		return nil
	}
	return cands
}

func retrieverStats(typ string, start time.Time, cands []schema.Candidate) metrics.RetrieverStats {
	stats := metrics.RetrieverStats{Type: typ, LatencyMs: time.Since(start).Milliseconds(), ResultCount: len(cands)}
	if len(cands) == 0 {
		return stats
	}
	var sum float64
	for _, c := range cands {
		sum += c.Rank
	}
	stats.AvgScore = sum / float64(len(cands))
	stats.TopScore = cands[0].Rank
	return stats
}

func toSources(chunks []fusion.Result) []Source {
	out := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Source{
			ID:         c.ID,
			Name:       PrettySourceName(c.Source),
			Page:       c.Page,
			Similarity: c.Relevance,
			Content:    c.Content,
		})
	}
	return out
}

func admitsNoInfo(answer string) bool {
	for _, re := range noInfoPatterns {
		if re.MatchString(answer) {
			return true
		}
	}
	return false
}
