// Package agriquery answers Vietnamese agricultural questions through a
// layered pipeline: intent classification, then either the farm action
// router or exact match, hybrid retrieval and LLM fallback in turn.
package agriquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrisense/agriquery/action"
	"github.com/agrisense/agriquery/cache"
	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/common/sqlitex"
	"github.com/agrisense/agriquery/config"
	"github.com/agrisense/agriquery/embedding"
	"github.com/agrisense/agriquery/entity"
	"github.com/agrisense/agriquery/exactmatch"
	"github.com/agrisense/agriquery/fallback"
	"github.com/agrisense/agriquery/farmstore"
	"github.com/agrisense/agriquery/fusion"
	"github.com/agrisense/agriquery/intent"
	"github.com/agrisense/agriquery/knowledge"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/llm"
	"github.com/agrisense/agriquery/orchestrator"
	"github.com/agrisense/agriquery/preprocess"
	"github.com/agrisense/agriquery/retrieval"
	"github.com/agrisense/agriquery/schema"
	"github.com/agrisense/agriquery/scope"
)

const Version = "1.0.0"

// Pipeline owns every stage of the query pipeline and the connections
// they share.
type Pipeline struct {
	Config       *config.Config
	Lexicon      *lexicon.Lexicon
	Preprocessor *preprocess.Preprocessor
	Extractor    *entity.Extractor
	Classifier   intent.Classifier
	Scope        *scope.Guard
	Knowledge    *knowledge.Store
	SearchCache  *cache.SearchCache[exactmatch.Result]
	ExactMatch   *exactmatch.Engine
	Retrieval    *retrieval.Engine
	Fallback     *fallback.Engine
	Actions      *action.Router
	Orchestrator *orchestrator.Orchestrator
	Sessions     SessionStore

	l2      *cache.RedisL2
	dbs     map[string]*sql.DB
	closers []func() error
}

type options struct {
	lex        *lexicon.Lexicon
	gen        llm.Generator
	embedder   embedding.Embedder
	knowledge  *knowledge.Store
	classifier intent.Classifier
	data       action.BusinessData
	devices    action.DeviceDispatcher
	sessions   SessionStore
}

// Option overrides a component NewPipeline would otherwise build from config.
type Option func(*options)

func WithLexicon(lex *lexicon.Lexicon) Option { return func(o *options) { o.lex = lex } }

func WithGenerator(gen llm.Generator) Option { return func(o *options) { o.gen = gen } }

func WithEmbedder(e embedding.Embedder) Option { return func(o *options) { o.embedder = e } }

// WithKnowledge supplies the knowledge indexes; the caller keeps ownership.
func WithKnowledge(s *knowledge.Store) Option { return func(o *options) { o.knowledge = s } }

func WithClassifier(c intent.Classifier) Option { return func(o *options) { o.classifier = c } }

// WithFarm supplies the business data and device collaborators. devices may be nil.
func WithFarm(data action.BusinessData, devices action.DeviceDispatcher) Option {
	return func(o *options) {
		o.data = data
		o.devices = devices
	}
}

func WithSessions(s SessionStore) Option { return func(o *options) { o.sessions = s } }

// NewPipeline builds every stage from cfg. On error, anything already
// opened is closed.
func NewPipeline(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Pipeline, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pipeline{Config: cfg, dbs: make(map[string]*sql.DB)}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	p.Lexicon = o.lex
	if p.Lexicon == nil {
		if p.Lexicon, err = lexicon.Load(cfg.Lexicon.Path); err != nil {
			return nil, err
		}
	}
	logger.Infof("pipeline: lexicon version %s", p.Lexicon.Version)

	p.Preprocessor = preprocess.New(p.Lexicon)
	if p.Extractor, err = entity.New(p.Lexicon); err != nil {
		return nil, fmt.Errorf("create entity extractor failed, err: %w", err)
	}
	p.Classifier = o.classifier
	if p.Classifier == nil {
		if p.Classifier, err = intent.NewFromConfig(cfg, p.Lexicon, p.Extractor); err != nil {
			return nil, err
		}
	}
	p.Scope = scope.NewGuard(p.Lexicon)

	if p.Knowledge = o.knowledge; p.Knowledge == nil {
		if p.Knowledge, err = p.openKnowledge(ctx); err != nil {
			return nil, fmt.Errorf("create knowledge store failed, err: %w", err)
		}
	}

	gen := o.gen
	if gen == nil {
		if gen, err = llm.NewFromConfig(ctx, cfg.LLM); err != nil {
			return nil, fmt.Errorf("create llm provider failed, err: %w", err)
		}
	}
	embedder := o.embedder
	if embedder == nil {
		if embedder, err = embedding.NewFromConfig(cfg); err != nil {
			return nil, fmt.Errorf("create embedding provider failed, err: %w", err)
		}
	}

	if err = p.buildCache(ctx); err != nil {
		return nil, err
	}
	p.ExactMatch = exactmatch.New(p.Knowledge.FullText, p.Lexicon, exactmatch.Options{
		Threshold: cfg.Pipeline.ExactMatchThreshold,
		Limit:     cfg.ExactMatch.Limit,
		MinRank:   cfg.ExactMatch.MinRank,
	})

	rc := cfg.Retrieval
	strategy, err := fusion.NewStrategy(rc.Fusion, rc.VectorWeight, rc.LexicalWeight, rc.RRFK)
	if err != nil {
		return nil, err
	}
	p.Retrieval = retrieval.New(p.Knowledge.FullText, p.Knowledge.Vector, embedder, gen, p.Lexicon,
		strategy, retrieval.NewTokenCounter(rc.Encoding), retrieval.Config{
			TopK:             rc.TopK,
			MinAvgSimilarity: rc.MinAvgSimilarity,
			MaxContextTokens: rc.MaxContextTokens,
			Temperature:      rc.Temperature,
			MaxTokens:        cfg.LLM.MaxTokens,
		})
	p.Fallback = fallback.New(gen, p.Lexicon, cfg.LLM.Model, llm.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	if o.data == nil {
		if o.data, o.devices, err = p.openFarm(ctx); err != nil {
			return nil, fmt.Errorf("create farm store failed, err: %w", err)
		}
	}
	var routerOpts []action.Option
	if cfg.Farm.ExplainData {
		routerOpts = append(routerOpts, action.WithExplainer(p.Fallback))
	}
	p.Actions = action.NewRouter(o.data, o.devices, p.Lexicon, routerOpts...)

	if p.Sessions = o.sessions; p.Sessions == nil {
		if p.Sessions, err = p.openSessions(ctx); err != nil {
			return nil, fmt.Errorf("create session store failed, err: %w", err)
		}
	}

	p.Orchestrator = &orchestrator.Orchestrator{
		Cfg:          cfg.Pipeline,
		Classifier:   p.Classifier,
		Scope:        p.Scope,
		Preprocessor: p.Preprocessor,
		ExactMatch:   p.exactMatcher(),
		Retrieval:    p.Retrieval,
		Fallback:     p.Fallback,
		Actions:      p.Actions,
	}
	return p, nil
}

// exactMatcher fronts Layer 1 with the search cache when expansion is on.
func (p *Pipeline) exactMatcher() orchestrator.ExactMatcher {
	if !p.Config.Pipeline.UseExpansion {
		return p.ExactMatch
	}
	cc := p.Config.Cache
	return exactmatch.NewCachedSearcher(p.ExactMatch, p.SearchCache,
		config.Seconds(cc.TTLFoundSeconds, exactmatch.DefaultTTLFound),
		config.Seconds(cc.TTLMissSeconds, exactmatch.DefaultTTLMiss))
}

// db opens path once; the knowledge index and farm store may share a file.
func (p *Pipeline) db(path string) (*sql.DB, error) {
	if db, ok := p.dbs[path]; ok {
		return db, nil
	}
	db, err := sqlitex.Open(path)
	if err != nil {
		return nil, err
	}
	p.dbs[path] = db
	p.closers = append(p.closers, db.Close)
	return db, nil
}

func (p *Pipeline) openKnowledge(ctx context.Context) (*knowledge.Store, error) {
	kc := p.Config.Knowledge
	var db *sql.DB
	if usesSQLite(kc.FTS) || usesSQLite(kc.Vector) {
		var err error
		if db, err = p.db(kc.SQLitePath); err != nil {
			return nil, err
		}
	}
	store, err := knowledge.NewFromConfig(ctx, p.Config, db)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, store.Close)
	return store, nil
}

func usesSQLite(backend string) bool { return backend == "" || backend == "sqlite" }

func (p *Pipeline) buildCache(ctx context.Context) error {
	cc := p.Config.Cache
	var l2 cache.L2
	if cc.Redis.Enabled() {
		rdb, err := p.redis(ctx, cc.Redis)
		if err != nil {
			return fmt.Errorf("create cache redis failed, err: %w", err)
		}
		p.l2 = cache.NewRedisL2(rdb, cc.Redis.Prefix, cc.Redis.Channel)
		l2 = p.l2
	}
	p.SearchCache = cache.NewSearchCache[exactmatch.Result](cc.MaxEntries,
		config.Seconds(cc.TTLFoundSeconds, exactmatch.DefaultTTLFound), l2)
	return nil
}

// openFarm returns a nil DeviceDispatcher when no command channel is configured.
func (p *Pipeline) openFarm(ctx context.Context) (action.BusinessData, action.DeviceDispatcher, error) {
	fc := p.Config.Farm
	if fc.SQLitePath == "" {
		logger.Warnf("pipeline: no farm database configured, action intents will fail")
		return nil, nil, nil
	}
	db, err := p.db(fc.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	store, err := farmstore.New(db)
	if err != nil {
		return nil, nil, err
	}
	if !fc.Redis.Enabled() {
		return store, nil, nil
	}
	rdb, err := p.redis(ctx, fc.Redis)
	if err != nil {
		return nil, nil, err
	}
	return store, farmstore.NewDispatcher(store, rdb, fc.Redis.Channel), nil
}

func (p *Pipeline) openSessions(ctx context.Context) (SessionStore, error) {
	sc := p.Config.Session
	if sc.Store != "redis" {
		return NewMemSessionStore(sc.MaxTurns), nil
	}
	rdb, err := p.redis(ctx, sc.Redis)
	if err != nil {
		return nil, err
	}
	return NewRedisSessionStore(rdb, sc.Redis.Prefix, config.Seconds(sc.TTLSeconds, 24*time.Hour), sc.MaxTurns), nil
}

func (p *Pipeline) redis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	rdb, err := cache.NewRedisClient(ctx, rc)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, rdb.Close)
	return rdb, nil
}

// Ask answers q and records the turn when q belongs to a conversation.
// Failing to record the turn does not fail the answer.
func (p *Pipeline) Ask(ctx context.Context, q schema.Query) schema.PipelineResponse {
	resp := p.Orchestrator.Run(ctx, q)
	if q.ConversationID == "" || p.Sessions == nil {
		return resp
	}
	turn := Turn{
		Query:     q.Text,
		Answer:    resp.Message,
		Intent:    resp.Intent,
		Layer:     resp.ProcessingLayer,
		RequestID: resp.RequestID,
		Timestamp: time.Now(),
	}
	if err := p.Sessions.AddTurn(ctx, q.ConversationID, q.UserID, turn); err != nil {
		logger.Warnf("pipeline: record turn for %s: %v", q.ConversationID, err)
	}
	return resp
}

// StartBackground runs the cache janitor and, with a shared L2, drops
// local entries whenever a peer clears the cache. Both stop with ctx.
func (p *Pipeline) StartBackground(ctx context.Context) {
	p.SearchCache.StartJanitor(ctx, config.Seconds(p.Config.Cache.JanitorSeconds, 5*time.Minute))
	if p.l2 != nil {
		p.l2.Watch(ctx, p.SearchCache.Local().Purge)
	}
}

// InvalidateCache drops cached Layer 1 results after userID's data
// changed and returns how many local entries were removed.
func (p *Pipeline) InvalidateCache(ctx context.Context, userID string) int {
	return p.SearchCache.InvalidateUser(ctx, userID)
}

// Close releases connections in reverse order of opening.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}
