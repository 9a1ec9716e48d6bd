package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/agriquery/action"
	"github.com/agrisense/agriquery/common/errx"
	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/config"
	"github.com/agrisense/agriquery/exactmatch"
	"github.com/agrisense/agriquery/fallback"
	"github.com/agrisense/agriquery/intent"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/preprocess"
	"github.com/agrisense/agriquery/retrieval"
	"github.com/agrisense/agriquery/schema"
	"github.com/agrisense/agriquery/scope"
)

const (
	msgOrchestrationError = "Xin lỗi, đã có lỗi xảy ra. Vui lòng thử lại."

	actionConfidence = 0.9

	reasonUnknownIntent = "Unknown intent - greeting or agriculture-related query"
	reasonLayersFailed  = "Layer 1 FTS and Layer 2 RAG failed - no relevant documents found"

	farmDatabase = "Farm Database"
)

// Layer outcomes recorded in metrics.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var layerNames = map[schema.ProcessingLayer]string{
	schema.LayerExactMatch: "Layer 1: Exact Match (FTS)",
	schema.LayerRetrieval:  "Layer 2: RAG (Vector Search + LLM Synthesis)",
	schema.LayerGeneration: "Layer 3: LLM Fallback",
	schema.LayerAction:     "Action Router",
	schema.LayerScope:      "Scope Guard",
	schema.LayerError:      "Error",
}

// QueryPreprocessor cleans a query before the full-text layer sees it.
type QueryPreprocessor interface {
	Preprocess(query string) preprocess.Result
}

// ExactMatcher is Layer 1. Both exactmatch.Engine and
// exactmatch.CachedSearcher satisfy it.
type ExactMatcher interface {
	Search(ctx context.Context, query string, so exactmatch.SearchOptions) exactmatch.Result
}

// Retriever is Layer 2.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) retrieval.Result
}

// Generator is Layer 3.
type Generator interface {
	Generate(ctx context.Context, query, reason string) fallback.Result
}

// ActionRouter executes the action intents.
type ActionRouter interface {
	Route(ctx context.Context, req action.Request) action.Result
}

// ScopeValidator decides whether an unclassified query is answered at all.
type ScopeValidator interface {
	Validate(query string) scope.Verdict
}

// Orchestrator wires the pipeline stages: classification, the scope guard
// for unknown intents, then either the action router or the three
// knowledge layers.
type Orchestrator struct {
	Cfg          config.PipelineConfig
	Classifier   intent.Classifier
	Scope        ScopeValidator
	Preprocessor QueryPreprocessor
	ExactMatch   ExactMatcher
	Retrieval    Retriever
	Fallback     Generator
	Actions      ActionRouter
}

// Run answers q. It always returns a response: errors and panics from any
// stage become an ORCHESTRATION_ERROR response.
func (o *Orchestrator) Run(ctx context.Context, q schema.Query) (resp schema.PipelineResponse) {
	start := time.Now()
	reqID := uuid.NewString()
	log := logger.WithContext(map[string]interface{}{"request_id": reqID})

	defer func() {
		if r := recover(); r != nil {
			err := errx.Wrap(fmt.Errorf("panic: %v", r), errx.CodeOrchestration, "pipeline panicked")
			log.Errorf("orchestrator: %v", err)
			resp = errorResponse(err)
		}
		resp.RequestID = reqID
		resp.ResponseTime = time.Since(start)
		resp.Summary = Summary(resp)
		log.Infof("orchestrator: %s", resp.Summary)
	}()

	resp, err := o.run(ctx, q, log)
	if err != nil {
		log.Errorf("orchestrator: %v", err)
		return errorResponse(err)
	}
	return resp
}

func (o *Orchestrator) run(ctx context.Context, q schema.Query, log *logger.ContextLogger) (schema.PipelineResponse, error) {
	cls, err := o.classify(ctx, q.Text)
	if err != nil {
		return schema.PipelineResponse{}, errx.Wrap(err, errx.CodeOrchestration, "classification failed")
	}
	log.Debugf("orchestrator: intent=%s confidence=%.2f entities=%d path=%s",
		cls.Intent, cls.Confidence, len(cls.Entities), cls.Path)

	if cls.Intent == schema.IntentUnknown {
		return o.unknown(ctx, q, *cls, log), nil
	}
	if intent.CategoryOf(cls.Intent) == schema.CategoryAction {
		return o.action(ctx, q, *cls), nil
	}
	return o.knowledge(ctx, q, *cls, log), nil
}

func (o *Orchestrator) classify(ctx context.Context, query string) (*schema.IntentClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, config.Millis(o.Cfg.StageTimeouts.ClassifyMs, 10*time.Second))
	defer cancel()
	cls, err := o.Classifier.Classify(ctx, query)
	if err != nil {
		return nil, err
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier returned no verdict")
	}
	return cls, nil
}

// unknown applies the scope guard, then answers valid queries directly
// from the generation layer.
func (o *Orchestrator) unknown(ctx context.Context, q schema.Query, cls schema.IntentClassification, log *logger.ContextLogger) schema.PipelineResponse {
	start := time.Now()
	v := o.Scope.Validate(q.Text)
	if !v.Valid {
		metrics.ObserveLayer(string(schema.LayerScope), start, outcomeRejected)
		log.Warnf("orchestrator: query rejected as out of scope (%s)", v.Reason)
		return schema.PipelineResponse{
			Message:         scope.RejectionMessage,
			Intent:          schema.IntentUnknown,
			ProcessingLayer: schema.LayerScope,
			Sources:         []schema.Source{},
			ErrorCode:       string(errx.CodeOutOfScope),
			Classification:  cls,
		}
	}
	log.Debugf("orchestrator: unknown intent allowed by rule %q", v.Rule)
	metrics.ObserveLayer(string(schema.LayerScope), start, outcomeAccepted)
	return o.generate(ctx, q, cls, reasonUnknownIntent)
}

func (o *Orchestrator) action(ctx context.Context, q schema.Query, cls schema.IntentClassification) schema.PipelineResponse {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, config.Millis(o.Cfg.StageTimeouts.ActionMs, 15*time.Second))
	defer cancel()

	res := o.Actions.Route(ctx, action.Request{Query: q.Text, UserID: q.UserID, Classification: cls})
	outcome := outcomeAccepted
	if !res.Success {
		outcome = outcomeRejected
	}
	metrics.ObserveLayer(string(schema.LayerAction), start, outcome)

	sources := []schema.Source{}
	if res.Data != nil {
		sources = append(sources, schema.Source{Type: schema.SourceDatabase, Reference: farmDatabase, Confidence: 1.0})
	}
	return schema.PipelineResponse{
		Success:              res.Success,
		Message:              res.Message,
		Intent:               cls.Intent,
		ProcessingLayer:      schema.LayerAction,
		Confidence:           actionConfidence,
		Sources:              sources,
		RequiresConfirmation: res.RequiresConfirmation,
		Classification:       cls,
		Data:                 res.Data,
	}
}

// knowledge walks Layer 1, Layer 2 and Layer 3 in order. The first layer
// that is found and clears its threshold answers; Layer 3 always answers.
func (o *Orchestrator) knowledge(ctx context.Context, q schema.Query, cls schema.IntentClassification, log *logger.ContextLogger) schema.PipelineResponse {
	var crop string
	if e, ok := cls.FirstEntity(schema.EntityCropName); ok {
		crop = e.Value
	}

	if o.ExactMatch != nil {
		start := time.Now()
		lctx, cancel := context.WithTimeout(ctx, config.Millis(o.Cfg.StageTimeouts.ExactMatchMs, 5*time.Second))
		em := o.ExactMatch.Search(lctx, o.searchText(q.Text), exactmatch.SearchOptions{UserID: q.UserID, CropFilter: crop})
		cancel()
		if em.Found && em.Confidence >= o.Cfg.ExactMatchThreshold {
			metrics.ObserveLayer(string(schema.LayerExactMatch), start, outcomeAccepted)
			log.Infof("orchestrator: layer 1 accepted (confidence %.3f, method %s)", em.Confidence, em.Method)
			return schema.PipelineResponse{
				Success:         true,
				Message:         em.Content,
				Intent:          cls.Intent,
				ProcessingLayer: schema.LayerExactMatch,
				Confidence:      em.Confidence,
				Sources:         []schema.Source{exactMatchSource(em)},
				Classification:  cls,
			}
		}
		metrics.ObserveLayer(string(schema.LayerExactMatch), start, outcomeRejected)
		log.Debugf("orchestrator: layer 1 rejected (found=%v confidence %.3f)", em.Found, em.Confidence)
	}

	if o.Retrieval != nil {
		start := time.Now()
		lctx, cancel := context.WithTimeout(ctx, config.Millis(o.Cfg.StageTimeouts.RetrievalMs, 30*time.Second))
		rr := o.Retrieval.Retrieve(lctx, q.Text, retrieval.Options{UseHybrid: o.Cfg.UseHybrid, UserID: q.UserID, CropFilter: crop})
		cancel()
		if rr.Found && rr.Confidence >= o.Cfg.RAGConfidenceThreshold {
			metrics.ObserveLayer(string(schema.LayerRetrieval), start, outcomeAccepted)
			log.Infof("orchestrator: layer 2 accepted (confidence %.3f, %d sources)", rr.Confidence, len(rr.Sources))
			return schema.PipelineResponse{
				Success:         true,
				Message:         rr.Answer,
				Intent:          cls.Intent,
				ProcessingLayer: schema.LayerRetrieval,
				Confidence:      rr.Confidence,
				Sources:         retrievalSources(rr.Sources),
				Classification:  cls,
			}
		}
		metrics.ObserveLayer(string(schema.LayerRetrieval), start, outcomeRejected)
		log.Debugf("orchestrator: layer 2 rejected (found=%v confidence %.3f)", rr.Found, rr.Confidence)
	}

	return o.generate(ctx, q, cls, reasonLayersFailed)
}

// generate is the terminal Layer 3 step. A failed generation still answers,
// with the fixed apology.
func (o *Orchestrator) generate(ctx context.Context, q schema.Query, cls schema.IntentClassification, reason string) schema.PipelineResponse {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, config.Millis(o.Cfg.StageTimeouts.GenerationMs, 30*time.Second))
	defer cancel()

	res := o.Fallback.Generate(ctx, q.Text, reason)
	resp := schema.PipelineResponse{
		Success:         !res.Failed,
		Message:         res.Answer,
		Intent:          cls.Intent,
		ProcessingLayer: schema.LayerGeneration,
		Confidence:      res.Confidence,
		Sources:         []schema.Source{{Type: schema.SourceLLM, Reference: res.Model, Confidence: res.Confidence}},
		Classification:  cls,
	}
	if res.Failed {
		metrics.ObserveLayer(string(schema.LayerGeneration), start, outcomeError)
		resp.ErrorCode = string(errx.CodeDependencyUnavailable)
		return resp
	}
	metrics.ObserveLayer(string(schema.LayerGeneration), start, outcomeAccepted)
	return resp
}

// searchText is the Layer 1 query: the cleaned form when preprocessing
// recommends it, the normalized raw query otherwise.
func (o *Orchestrator) searchText(query string) string {
	if o.Preprocessor == nil {
		return query
	}
	return o.Preprocessor.Preprocess(query).SearchText()
}

func exactMatchSource(em exactmatch.Result) schema.Source {
	if em.Best != nil && em.Best.Source != "" {
		return schema.Source{Type: schema.SourceDocument, Reference: em.Best.Source, Confidence: em.Confidence}
	}
	return schema.Source{Type: schema.SourceKnowledgeBase, Reference: "Knowledge Base", Confidence: em.Confidence}
}

func retrievalSources(in []retrieval.Source) []schema.Source {
	out := make([]schema.Source, 0, len(in))
	for _, s := range in {
		out = append(out, schema.Source{Type: schema.SourceDocument, Reference: s.Name, Confidence: s.Similarity})
	}
	return out
}

func errorResponse(err error) schema.PipelineResponse {
	code := errx.CodeOf(err)
	if code == "" {
		code = errx.CodeOrchestration
	}
	return schema.PipelineResponse{
		Message:         msgOrchestrationError,
		Intent:          schema.IntentUnknown,
		ProcessingLayer: schema.LayerError,
		Sources:         []schema.Source{},
		ErrorCode:       string(code),
	}
}

// Summary renders a one-line description of how resp was produced.
func Summary(resp schema.PipelineResponse) string {
	name, ok := layerNames[resp.ProcessingLayer]
	if !ok {
		name = string(resp.ProcessingLayer)
	}
	return fmt.Sprintf("Processed via %s | Confidence: %.0f%% | Time: %dms",
		name, resp.Confidence*100, resp.ResponseTime.Milliseconds())
}
