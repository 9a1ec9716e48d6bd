package intent

import (
	"context"
	"math"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/entity"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/metrics"
	"github.com/agrisense/agriquery/schema"
)

// rulePriority is evaluated in order; the first group with a match wins.
var rulePriority = []schema.Intent{
	schema.IntentDeviceControl,
	schema.IntentFinancialQuery,
	schema.IntentAnalyticsQuery,
	schema.IntentSensorQuery,
	schema.IntentCropQuery,
	schema.IntentActivityQuery,
	schema.IntentFarmQuery,
	schema.IntentCreateRecord,
	schema.IntentUpdateRecord,
	schema.IntentDeleteRecord,
	schema.IntentKnowledgeQuery,
}

const (
	defaultRuleConfidence = 0.5
	boostPerMatch         = 0.1
	maxMatchBoost         = 0.3
)

// RuleClassifier is always available and never returns an error.
type RuleClassifier struct {
	lex       *lexicon.Lexicon
	extractor *entity.Extractor
}

func NewRuleClassifier(lex *lexicon.Lexicon, ex *entity.Extractor) *RuleClassifier {
	if lex == nil {
		lex = lexicon.Default()
	}
	if ex == nil {
		ex, _ = entity.New(lex)
	}
	return &RuleClassifier{lex: lex, extractor: ex}
}

// Classify picks the first pattern group that matches. A query matching no
// group is a knowledge query, never "no intent".
func (r *RuleClassifier) Classify(_ context.Context, query string) (*schema.IntentClassification, error) {
	norm := lexicon.Normalize(query)
	res := &schema.IntentClassification{
		Intent:          schema.IntentKnowledgeQuery,
		Confidence:      defaultRuleConfidence,
		Entities:        r.extractor.Extract(query),
		NormalizedQuery: norm,
		Path:            PathRule,
	}

	for _, in := range rulePriority {
		if conf, ok := score(norm, r.lex.IntentPatternsFor(in)); ok {
			res.Intent = in
			res.Confidence = conf
			break
		}
	}

	logger.Debugf("intent: rule verdict %s (%.2f) for %q", res.Intent, res.Confidence, norm)
	metrics.IncIntent(res.Intent.String(), PathRule)
	return res, nil
}

// score returns min(bestCoverage + min(0.1*matches, 0.3), 1) where coverage
// is the longest match length over the query length, both in runes.
func score(norm string, patterns []*lexicon.Pattern) (float64, bool) {
	qlen := lexicon.RuneLen(norm)
	if qlen == 0 {
		return 0, false
	}
	matches := 0
	best := 0.0
	for _, p := range patterns {
		found := p.FindAll(norm)
		if len(found) == 0 {
			continue
		}
		matches++
		for _, m := range found {
			if cov := float64(lexicon.RuneLen(m.Text)) / float64(qlen); cov > best {
				best = cov
			}
		}
	}
	if matches == 0 {
		return 0, false
	}
	boost := math.Min(boostPerMatch*float64(matches), maxMatchBoost)
	return math.Min(best+boost, 1.0), true
}
