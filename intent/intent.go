// Package intent assigns one intent label and a confidence to a query,
// either through an external ML service or through ordered rule patterns.
package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrisense/agriquery/common/httpx"
	"github.com/agrisense/agriquery/config"
	"github.com/agrisense/agriquery/entity"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

const (
	PathRule   = "rule"
	PathRemote = "remote"
)

// ErrUnavailable reports that a classifier could not produce a verdict.
var ErrUnavailable = errors.New("intent: classifier unavailable")

// Classifier assigns an intent to a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (*schema.IntentClassification, error)
}

// CategoryOf is the static intent to category table the orchestrator branches on.
func CategoryOf(i schema.Intent) schema.Category {
	return i.Category()
}

// NewFromConfig builds the classifier selected by cfg.Classifier.Mode.
// Both remote and hybrid mode adopt remote verdicts above min_confidence and
// fall back to rules otherwise. Remote mode calls the service on every query;
// hybrid mode gates calls on a cached health check.
func NewFromConfig(cfg *config.Config, lex *lexicon.Lexicon, ex *entity.Extractor) (Classifier, error) {
	rules := NewRuleClassifier(lex, ex)
	cc := cfg.Classifier
	switch cc.Mode {
	case "", "rule":
		return rules, nil
	case "remote", "hybrid":
		client := httpx.NewFromConfig(&cfg.HTTP, config.Millis(cc.TimeoutMs, 10*time.Second))
		remote := NewRemoteClassifier(cc.Endpoint, client, cc.TopK)
		h := NewHybridClassifier(remote, rules, cc.MinConfidence, config.Seconds(cc.HealthTTLSeconds, 30*time.Second))
		h.SkipHealthCheck = cc.Mode == "remote"
		return h, nil
	default:
		return nil, fmt.Errorf("intent: unsupported classifier mode %q", cc.Mode)
	}
}
