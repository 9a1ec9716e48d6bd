package exactmatch

import (
	"context"
	"time"

	"github.com/agrisense/agriquery/cache"
	"github.com/agrisense/agriquery/common/logger"
)

// Default cache lifetimes for found and not-found results.
const (
	DefaultTTLFound = time.Hour
	DefaultTTLMiss  = 30 * time.Minute
	// minCacheConfidence is the floor below which a miss is not worth caching.
	minCacheConfidence = 0.3
)

// CachedSearcher fronts an Engine with a search cache.
type CachedSearcher struct {
	Engine   *Engine
	Cache    *cache.SearchCache[Result]
	TTLFound time.Duration
	TTLMiss  time.Duration
}

func NewCachedSearcher(engine *Engine, c *cache.SearchCache[Result], ttlFound, ttlMiss time.Duration) *CachedSearcher {
	if ttlFound <= 0 {
		ttlFound = DefaultTTLFound
	}
	if ttlMiss <= 0 {
		ttlMiss = DefaultTTLMiss
	}
	return &CachedSearcher{Engine: engine, Cache: c, TTLFound: ttlFound, TTLMiss: ttlMiss}
}

// Search serves from cache when possible, otherwise runs the expanded
// search and caches results that are found or reasonably close.
func (s *CachedSearcher) Search(ctx context.Context, query string, so SearchOptions) Result {
	start := time.Now()
	if res, ok := s.Cache.Get(ctx, query, so.UserID); ok {
		res.Cached = true
		s.Engine.analytics.Record(query, res, time.Since(start))
		logger.Debugf("exactmatch: cache hit for %q", query)
		return res
	}

	res := s.Engine.SearchWithExpansion(ctx, query, so)
	if ctx.Err() != nil {
		return res
	}
	switch {
	case res.Found:
		s.Cache.Set(ctx, query, so.UserID, res, s.TTLFound)
	case res.Confidence > minCacheConfidence:
		s.Cache.Set(ctx, query, so.UserID, res, s.TTLMiss)
	}
	return res
}
