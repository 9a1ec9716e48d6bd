package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/action"
	"github.com/agrisense/agriquery/common/errx"
	"github.com/agrisense/agriquery/config"
	"github.com/agrisense/agriquery/exactmatch"
	"github.com/agrisense/agriquery/fallback"
	"github.com/agrisense/agriquery/knowledge"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/llm"
	"github.com/agrisense/agriquery/preprocess"
	"github.com/agrisense/agriquery/retrieval"
	"github.com/agrisense/agriquery/schema"
	"github.com/agrisense/agriquery/scope"
)

type stubClassifier struct {
	cls schema.IntentClassification
	err error
}

func (s *stubClassifier) Classify(_ context.Context, query string) (*schema.IntentClassification, error) {
	if s.err != nil {
		return nil, s.err
	}
	c := s.cls
	c.NormalizedQuery = strings.ToLower(query)
	return &c, nil
}

type stubExact struct {
	res   exactmatch.Result
	calls int
	query string
	opts  exactmatch.SearchOptions
}

func (s *stubExact) Search(_ context.Context, query string, so exactmatch.SearchOptions) exactmatch.Result {
	s.calls++
	s.query = query
	s.opts = so
	return s.res
}

type stubRetriever struct {
	res   retrieval.Result
	calls int
	opts  retrieval.Options
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, opts retrieval.Options) retrieval.Result {
	s.calls++
	s.opts = opts
	return s.res
}

type stubGenerator struct {
	res    fallback.Result
	calls  int
	reason string
}

func (s *stubGenerator) Generate(_ context.Context, _ string, reason string) fallback.Result {
	s.calls++
	s.reason = reason
	return s.res
}

type stubActions struct {
	res   action.Result
	req   action.Request
	panic bool
}

func (s *stubActions) Route(_ context.Context, req action.Request) action.Result {
	if s.panic {
		panic("nil map write")
	}
	s.req = req
	return s.res
}

type fixture struct {
	cls   *stubClassifier
	exact *stubExact
	rag   *stubRetriever
	gen   *stubGenerator
	acts  *stubActions
	o     *Orchestrator
}

func newFixture(intent schema.Intent) *fixture {
	f := &fixture{
		cls:   &stubClassifier{cls: schema.IntentClassification{Intent: intent, Confidence: 0.8, Path: "rule"}},
		exact: &stubExact{},
		rag:   &stubRetriever{},
		gen:   &stubGenerator{res: fallback.Result{Answer: "Câu trả lời chung", Confidence: 0.6, Model: "gpt-4o-mini"}},
		acts:  &stubActions{},
	}
	f.o = &Orchestrator{
		Cfg:        config.Default().Pipeline,
		Classifier: f.cls,
		Scope:      scope.NewGuard(nil),
		ExactMatch: f.exact,
		Retrieval:  f.rag,
		Fallback:   f.gen,
		Actions:    f.acts,
	}
	return f
}

func (f *fixture) run(text string) schema.PipelineResponse {
	return f.o.Run(context.Background(), schema.Query{Text: text, UserID: "u1"})
}

func TestLayerPrecedence(t *testing.T) {
	t.Run("exact match above threshold", func(t *testing.T) {
		f := newFixture(schema.IntentKnowledgeQuery)
		f.exact.res = exactmatch.Result{Found: true, Confidence: 0.95, Content: "**Lúa - Bón phân**",
			Best: &schema.Candidate{Source: "so_tay_lua.pdf"}}

		resp := f.run("cách bón phân cho lúa")
		assert.True(t, resp.Success)
		assert.Equal(t, schema.LayerExactMatch, resp.ProcessingLayer)
		assert.Equal(t, 0.95, resp.Confidence)
		assert.Equal(t, "**Lúa - Bón phân**", resp.Message)
		assert.Equal(t, []schema.Source{{Type: schema.SourceDocument, Reference: "so_tay_lua.pdf", Confidence: 0.95}}, resp.Sources)
		assert.Zero(t, f.rag.calls)
		assert.Zero(t, f.gen.calls)
	})

	t.Run("retrieval when exact match is weak", func(t *testing.T) {
		f := newFixture(schema.IntentKnowledgeQuery)
		f.exact.res = exactmatch.Result{Confidence: 0.3}
		f.rag.res = retrieval.Result{Found: true, Confidence: 0.8, Answer: "Tổng hợp từ tài liệu",
			Sources: []retrieval.Source{{Name: "So Tay Lua", Similarity: 0.72}}}

		resp := f.run("cách bón phân cho lúa")
		assert.True(t, resp.Success)
		assert.Equal(t, schema.LayerRetrieval, resp.ProcessingLayer)
		assert.Equal(t, 0.8, resp.Confidence)
		assert.Equal(t, []schema.Source{{Type: schema.SourceDocument, Reference: "So Tay Lua", Confidence: 0.72}}, resp.Sources)
		assert.Equal(t, 1, f.exact.calls)
		assert.Zero(t, f.gen.calls)
		assert.True(t, f.rag.opts.UseHybrid)
		assert.Equal(t, "u1", f.rag.opts.UserID)
	})

	t.Run("generation when both are weak", func(t *testing.T) {
		f := newFixture(schema.IntentKnowledgeQuery)
		f.exact.res = exactmatch.Result{Confidence: 0.3}
		f.rag.res = retrieval.Result{Found: true, Confidence: 0.5}

		resp := f.run("cách bón phân cho lúa")
		assert.True(t, resp.Success)
		assert.Equal(t, schema.LayerGeneration, resp.ProcessingLayer)
		assert.Equal(t, 0.6, resp.Confidence)
		assert.Equal(t, reasonLayersFailed, f.gen.reason)
		assert.Equal(t, []schema.Source{{Type: schema.SourceLLM, Reference: "gpt-4o-mini", Confidence: 0.6}}, resp.Sources)
	})
}

func TestFoundFlagGatesEachLayer(t *testing.T) {
	f := newFixture(schema.IntentKnowledgeQuery)
	f.exact.res = exactmatch.Result{Found: false, Confidence: 0.95}
	f.rag.res = retrieval.Result{Found: false, Confidence: 0.9}

	resp := f.run("cách bón phân cho lúa")
	assert.Equal(t, schema.LayerGeneration, resp.ProcessingLayer)
	assert.Equal(t, 1, f.gen.calls)
}

func TestCropEntityFiltersKnowledgeLayers(t *testing.T) {
	f := newFixture(schema.IntentKnowledgeQuery)
	f.cls.cls.Entities = []schema.Entity{{Type: schema.EntityCropName, Value: "lúa"}}

	f.run("sâu cuốn lá trên lúa")
	assert.Equal(t, "lúa", f.exact.opts.CropFilter)
	assert.Equal(t, "u1", f.exact.opts.UserID)
	assert.Equal(t, "lúa", f.rag.opts.CropFilter)
}

type stubPreprocessor struct{}

func (stubPreprocessor) Preprocess(query string) preprocess.Result {
	return preprocess.Result{Original: query, Cleaned: "bón phân lúa", Recommended: true}
}

func TestExactMatchUsesPreprocessedText(t *testing.T) {
	f := newFixture(schema.IntentKnowledgeQuery)
	f.o.Preprocessor = stubPreprocessor{}

	f.run("cho mình hỏi cách bón phân lúa với ạ")
	assert.Equal(t, "bón phân lúa", f.exact.query)
}

func TestScopeGuard(t *testing.T) {
	t.Run("rejects off-topic unknown queries", func(t *testing.T) {
		f := newFixture(schema.IntentUnknown)
		resp := f.run("viết chương trình python để sắp xếp mảng số nguyên")

		assert.False(t, resp.Success)
		assert.Equal(t, scope.RejectionMessage, resp.Message)
		assert.Equal(t, string(errx.CodeOutOfScope), resp.ErrorCode)
		assert.Equal(t, schema.LayerScope, resp.ProcessingLayer)
		assert.Zero(t, resp.Confidence)
		assert.Zero(t, f.exact.calls)
		assert.Zero(t, f.rag.calls)
		assert.Zero(t, f.gen.calls)
	})

	t.Run("answers valid unknown queries directly", func(t *testing.T) {
		f := newFixture(schema.IntentUnknown)
		resp := f.run("xin chào")

		assert.True(t, resp.Success)
		assert.Equal(t, schema.LayerGeneration, resp.ProcessingLayer)
		assert.Equal(t, reasonUnknownIntent, f.gen.reason)
		assert.Zero(t, f.exact.calls)
		assert.Zero(t, f.rag.calls)
	})
}

func TestActionBranch(t *testing.T) {
	f := newFixture(schema.IntentFinancialQuery)
	f.acts.res = action.Result{Success: true, Message: "Tổng doanh thu tháng này là 2.000.000 ₫.", Data: map[string]float64{"revenue": 2e6}}

	resp := f.run("doanh thu tháng này")
	assert.True(t, resp.Success)
	assert.Equal(t, schema.LayerAction, resp.ProcessingLayer)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.Equal(t, []schema.Source{{Type: schema.SourceDatabase, Reference: "Farm Database", Confidence: 1.0}}, resp.Sources)
	assert.Equal(t, "u1", f.acts.req.UserID)
	assert.Equal(t, schema.IntentFinancialQuery, f.acts.req.Classification.Intent)
	assert.Zero(t, f.exact.calls)
	assert.Zero(t, f.gen.calls)
}

func TestActionWithoutDataHasNoSources(t *testing.T) {
	f := newFixture(schema.IntentCreateRecord)
	f.acts.res = action.Result{Success: true, Message: "Để tạo bản ghi mới...", RequiresConfirmation: true}

	resp := f.run("thêm hoạt động bón phân")
	assert.True(t, resp.RequiresConfirmation)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0.9, resp.Confidence)
}

func TestFailedGenerationStillAnswers(t *testing.T) {
	f := newFixture(schema.IntentKnowledgeQuery)
	f.gen.res = fallback.Result{Answer: fallback.Apology, Model: "gpt-4o-mini", Failed: true}

	resp := f.run("cách trồng sầu riêng")
	assert.False(t, resp.Success)
	assert.Equal(t, fallback.Apology, resp.Message)
	assert.Equal(t, schema.LayerGeneration, resp.ProcessingLayer)
	assert.Equal(t, string(errx.CodeDependencyUnavailable), resp.ErrorCode)
}

func TestErrorsBecomeOrchestrationError(t *testing.T) {
	t.Run("classifier error", func(t *testing.T) {
		f := newFixture(schema.IntentKnowledgeQuery)
		f.cls.err = errors.New("boom")

		resp := f.run("cách trồng lúa")
		assert.False(t, resp.Success)
		assert.Equal(t, msgOrchestrationError, resp.Message)
		assert.Equal(t, string(errx.CodeOrchestration), resp.ErrorCode)
		assert.Equal(t, schema.LayerError, resp.ProcessingLayer)
		assert.NotEmpty(t, resp.RequestID)
	})

	t.Run("panic in a stage", func(t *testing.T) {
		f := newFixture(schema.IntentDeviceControl)
		f.acts.panic = true

		var resp schema.PipelineResponse
		require.NotPanics(t, func() { resp = f.run("bật máy bơm khu A") })
		assert.False(t, resp.Success)
		assert.Equal(t, string(errx.CodeOrchestration), resp.ErrorCode)
		assert.Equal(t, msgOrchestrationError, resp.Message)
		assert.NotEmpty(t, resp.Summary)
	})
}

func TestResponseMetadata(t *testing.T) {
	f := newFixture(schema.IntentKnowledgeQuery)
	a := f.run("cách trồng lúa")
	b := f.run("cách trồng lúa")

	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.True(t, a.ResponseTime > 0)
	assert.True(t, strings.HasPrefix(a.Summary, "Processed via Layer 3: LLM Fallback | Confidence: 60% | Time: "))
	assert.Equal(t, "cách trồng lúa", a.Classification.NormalizedQuery)
}

func TestSummary(t *testing.T) {
	got := Summary(schema.PipelineResponse{ProcessingLayer: schema.LayerExactMatch, Confidence: 0.934, ResponseTime: 42 * time.Millisecond})
	assert.Equal(t, "Processed via Layer 1: Exact Match (FTS) | Confidence: 93% | Time: 42ms", got)

	got = Summary(schema.PipelineResponse{ProcessingLayer: schema.LayerAction, Confidence: 0.9, ResponseTime: 1500 * time.Microsecond})
	assert.Equal(t, "Processed via Action Router | Confidence: 90% | Time: 1ms", got)
}

type fixedEmbedder []float32

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return e, nil }
func (e fixedEmbedder) Dimensions() int {  return len(e) }

type synthGenerator struct{}

func (synthGenerator) Generate(context.Context, string, llm.Options) (string, error) {
	return "Tưới đẫm gốc vào sáng sớm [Nguồn 1].", nil
}

type lexicalIndex struct {
	cands []schema.Candidate
	err   error
}

func (l lexicalIndex) SearchWeightedFTS(context.Context, string, knowledge.Filter, int, float64) ([]schema.Candidate, error) {
	return l.cands, l.err
}

func (l lexicalIndex) Scan(context.Context, knowledge.Filter) ([]schema.Candidate, error) {
	return nil, knowledge.ErrUnsupported
}

func TestHybridRetrievalLayerDependsOnLexicalEvidence(t *testing.T) {
	// The only chunk sits at cosine 0.6 from the query vector.
	vec := knowledge.NewMemoryIndex(knowledge.Chunk{
		Candidate: schema.Candidate{ID: "w1", CropType: "Lúa", SectionTitle: "Tưới lúa", Content: "Giữ mực nước 5cm.", Source: "ky_thuat_lua.pdf"},
		Embedding: []float32{0.6, 0.8, 0},
	})

	tests := []struct {
		name string
		fts  lexicalIndex
		want schema.ProcessingLayer
	}{
		{"lexical rows", lexicalIndex{cands: []schema.Candidate{{ID: "w1", Rank: 3}}}, schema.LayerRetrieval},
		{"lexical empty", lexicalIndex{}, schema.LayerGeneration},
		{"lexical unsupported", lexicalIndex{err: knowledge.ErrUnsupported}, schema.LayerGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(schema.IntentKnowledgeQuery)
			f.exact.res = exactmatch.Result{Confidence: 0.2}
			f.o.Retrieval = retrieval.New(tt.fts, vec, fixedEmbedder{1, 0, 0}, synthGenerator{},
				lexicon.Default(), nil, nil, retrieval.Config{})

			resp := f.run("cách tưới nước cho lúa")
			assert.Equal(t, tt.want, resp.ProcessingLayer)
			if tt.want == schema.LayerGeneration {
				assert.Equal(t, 1, f.gen.calls)
			} else {
				assert.Zero(t, f.gen.calls)
			}
		})
	}
}
