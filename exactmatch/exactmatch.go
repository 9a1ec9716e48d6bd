// Package exactmatch is the first knowledge layer: a weighted full-text
// lookup over knowledge chunks with a calibrated confidence.
package exactmatch

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/knowledge"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

// Match methods recorded on results and in analytics.
const (
	MethodFTS      = "fts"
	MethodFallback = "substring"
	MethodCache    = "cache"
)

// Result is the outcome of one Layer 1 search. When Found is false,
// Confidence still carries the best score seen.
type Result struct {
	Found      bool              `json:"found"`
	Confidence float64           `json:"confidence"`
	Content    string            `json:"content,omitempty"`
	Best       *schema.Candidate `json:"best,omitempty"`
	Method     string            `json:"method,omitempty"`
	Term       string            `json:"term,omitempty"`
	Cached     bool              `json:"cached,omitempty"`
}

// Options configures an Engine.
type Options struct {
	// Threshold is the confidence at which a result counts as found.
	Threshold float64
	Limit     int
	MinRank   float64
}

// SearchOptions narrows one search.
type SearchOptions struct {
	UserID string
	// CropFilter limits candidates to a crop type, usually taken from a
	// cropName entity.
	CropFilter string
}

// Engine runs Layer 1 searches. It is safe for concurrent use.
type Engine struct {
	index     knowledge.FullTextIndex
	lex       *lexicon.Lexicon
	opts      Options
	pests     []*regexp.Regexp
	analytics *Analytics
}

func New(index knowledge.FullTextIndex, lex *lexicon.Lexicon, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.9
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.MinRank <= 0 {
		opts.MinRank = 0.01
	}
	return &Engine{
		index:     index,
		lex:       lex,
		opts:      opts,
		pests:     compilePestPatterns(lex.PestPrefixes),
		analytics: NewAnalytics(100),
	}
}

func (e *Engine) Threshold() float64 { return e.opts.Threshold }
func (e *Engine) Analytics() *Analytics { return e.analytics }

// Search returns the single best candidate for query. Index failures
// degrade to a substring scan and never surface as errors.
func (e *Engine) Search(ctx context.Context, query string, so SearchOptions) Result {
	start := time.Now()
	res := e.search(ctx, query, so)
	e.analytics.Record(query, res, time.Since(start))
	return res
}

func (e *Engine) search(ctx context.Context, query string, so SearchOptions) Result {
	filter := knowledge.Filter{UserID: so.UserID, CropType: so.CropFilter}
	method := MethodFTS
	cands, err := e.index.SearchWeightedFTS(ctx, query, filter, e.opts.Limit, e.opts.MinRank)
	if err != nil {
		if !errors.Is(err, knowledge.ErrUnsupported) {
			logger.Warnf("exactmatch: full-text search failed, using substring scan: %v", err)
		}
		method = MethodFallback
		cands, err = e.scan(ctx, query, filter)
		if err != nil {
			logger.Warnf("exactmatch: substring scan failed: %v", err)
			return Result{Method: method}
		}
	}
	if len(cands) == 0 {
		return Result{Method: method}
	}

	if kws := pestKeywords(query, e.pests); len(kws) > 0 {
		logger.Debugf("exactmatch: re-ranking with pest keywords %v", kws)
		cands = rerankByTitle(cands, kws)
	}

	best := cands[0]
	best.Confidence = Confidence(best, query)
	res := Result{
		Found:      best.Confidence >= e.opts.Threshold,
		Confidence: best.Confidence,
		Best:       &best,
		Method:     method,
		Term:       query,
	}
	if res.Found {
		res.Content = FormatAnswer(best)
	}
	logger.Debugf("exactmatch: top %q / %q rank=%.4f confidence=%.3f found=%v",
		best.CropType, best.SectionTitle, best.Rank, best.Confidence, res.Found)
	return res
}

func (e *Engine) scan(ctx context.Context, query string, filter knowledge.Filter) ([]schema.Candidate, error) {
	chunks, err := e.index.Scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return fallbackRank(chunks, query, e.opts.Limit), nil
}

// SearchWithExpansion tries the query and its synonym variants in turn
// and returns the first found result, else the best one seen.
func (e *Engine) SearchWithExpansion(ctx context.Context, query string, so SearchOptions) Result {
	var best Result
	for _, term := range e.expand(query) {
		res := e.Search(ctx, term, so)
		if res.Found {
			if term != query {
				logger.Debugf("exactmatch: matched with expanded term %q", term)
			}
			return res
		}
		if res.Confidence > best.Confidence || best.Method == "" {
			best = res
		}
		if ctx.Err() != nil {
			break
		}
	}
	return best
}

// expand lists the query followed by synonyms of every term it contains.
func (e *Engine) expand(query string) []string {
	q := lexicon.Normalize(query)
	terms := []string{query}
	seen := map[string]bool{q: true}

	keys := make([]string, 0, len(e.lex.Synonyms))
	for k := range e.lex.Synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.Contains(q, lexicon.Normalize(k)) {
			continue
		}
		for _, v := range e.lex.Synonyms[k] {
			nv := lexicon.Normalize(v)
			if !seen[nv] {
				seen[nv] = true
				terms = append(terms, v)
			}
		}
	}
	return terms
}
