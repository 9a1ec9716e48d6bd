package intent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/schema"
)

// HealthChecker is a classifier whose availability can be probed.
type HealthChecker interface {
	Classifier
	Healthy(ctx context.Context) bool
}

const healthProbeTimeout = 2 * time.Second

// HybridClassifier tries the primary classifier while its cached health
// check says it is up and falls back to rules otherwise.
type HybridClassifier struct {
	Primary       HealthChecker
	Fallback      Classifier
	MinConfidence float64
	HealthTTL     time.Duration

	// SkipHealthCheck calls the primary on every query.
	SkipHealthCheck bool

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
	now       func() time.Time
	probes    singleflight.Group
}

func NewHybridClassifier(primary HealthChecker, fallback Classifier, minConfidence float64, healthTTL time.Duration) *HybridClassifier {
	if fallback == nil {
		fallback = NewRuleClassifier(nil, nil)
	}
	if healthTTL <= 0 {
		healthTTL = 30 * time.Second
	}
	return &HybridClassifier{
		Primary:       primary,
		Fallback:      fallback,
		MinConfidence: minConfidence,
		HealthTTL:     healthTTL,
		now:           time.Now,
	}
}

// Classify adopts the primary verdict when it is strictly above
// MinConfidence; otherwise the fallback decides.
func (h *HybridClassifier) Classify(ctx context.Context, query string) (*schema.IntentClassification, error) {
	if h.Primary != nil && (h.SkipHealthCheck || h.available(ctx)) {
		res, err := h.Primary.Classify(ctx, query)
		switch {
		case err != nil:
			logger.Warnf("intent: primary classifier failed, using fallback: %v", err)
			h.markDown()
		case res.Confidence > h.MinConfidence:
			return res, nil
		default:
			logger.Debugf("intent: primary confidence %.2f below %.2f, using fallback", res.Confidence, h.MinConfidence)
		}
	}
	return h.Fallback.Classify(ctx, query)
}

// available returns the cached health verdict, probing when it is stale.
// The probe runs outside the lock and concurrent callers share one probe.
func (h *HybridClassifier) available(ctx context.Context) bool {
	if healthy, fresh := h.cached(); fresh {
		return healthy
	}
	v, _, _ := h.probes.Do("health", func() (any, error) {
		if healthy, fresh := h.cached(); fresh {
			return healthy, nil
		}
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthProbeTimeout)
		defer cancel()
		healthy := h.Primary.Healthy(probeCtx)
		h.mu.Lock()
		h.healthy = healthy
		h.checkedAt = h.now()
		h.mu.Unlock()
		if !healthy {
			logger.Infof("intent: primary classifier unhealthy, rules only for %v", h.HealthTTL)
		}
		return healthy, nil
	})
	return v.(bool)
}

func (h *HybridClassifier) cached() (healthy, fresh bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fresh = !h.checkedAt.IsZero() && h.now().Sub(h.checkedAt) < h.HealthTTL
	return h.healthy, fresh
}

func (h *HybridClassifier) markDown() {
	h.mu.Lock()
	h.healthy = false
	h.checkedAt = h.now()
	h.mu.Unlock()
}
