package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/lexicon"
)

// ErrMiss is returned by an L2 store that has no value for a key.
var ErrMiss = errors.New("cache: miss")

// L2 is a shared second-level store consulted after a local miss. Get
// also returns the entry's remaining lifetime, zero when it never expires.
type L2 interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// SearchCache memoizes search results per (normalized query, user).
type SearchCache[V any] struct {
	lru *LRU[V]
	l2  L2
}

func NewSearchCache[V any](capacity int, ttl time.Duration, l2 L2) *SearchCache[V] {
	return &SearchCache[V]{lru: NewLRU[V](capacity, ttl), l2: l2}
}

// Key hashes the normalized query with the user id, "anonymous" when empty.
func Key(query, userID string) string {
	if userID == "" {
		userID = "anonymous"
	}
	sum := md5.Sum([]byte(lexicon.Normalize(query) + ":" + userID))
	return hex.EncodeToString(sum[:])
}

func (s *SearchCache[V]) Get(ctx context.Context, query, userID string) (V, bool) {
	key := Key(query, userID)
	if v, ok := s.lru.Get(key); ok {
		return v, true
	}
	var zero V
	if s.l2 == nil {
		return zero, false
	}
	raw, ttl, err := s.l2.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logger.Warnf("cache: l2 get failed: %v", err)
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warnf("cache: l2 value for %s is corrupt: %v", key, err)
		return zero, false
	}
	// The local copy must not outlive the shared one.
	s.lru.Set(key, v, ttl)
	return v, true
}

func (s *SearchCache[V]) Set(ctx context.Context, query, userID string, v V, ttl time.Duration) {
	key := Key(query, userID)
	s.lru.Set(key, v, ttl)
	if s.l2 == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warnf("cache: encode %s: %v", key, err)
		return
	}
	if err := s.l2.Set(ctx, key, raw, ttl); err != nil {
		logger.Warnf("cache: l2 set failed: %v", err)
	}
}

// InvalidateUser drops cached results after a user's data changed.
// Keys are hashes, so entries cannot be attributed to a user and the
// whole cache is cleared.
func (s *SearchCache[V]) InvalidateUser(ctx context.Context, userID string) int {
	n := s.Clear(ctx)
	logger.Infof("cache: invalidated %d entries for user %s", n, userID)
	return n
}

func (s *SearchCache[V]) Clear(ctx context.Context) int {
	n := s.lru.Purge()
	if s.l2 != nil {
		if err := s.l2.Clear(ctx); err != nil {
			logger.Warnf("cache: l2 clear failed: %v", err)
		}
	}
	return n
}

func (s *SearchCache[V]) Stats() Stats { return s.lru.Stats() }
func (s *SearchCache[V]) ResetStats() { s.lru.ResetStats() }
func (s *SearchCache[V]) Entries() []EntryInfo { return s.lru.Entries() }
func (s *SearchCache[V]) PurgeExpired() int { return s.lru.PurgeExpired() }
func (s *SearchCache[V]) Local() *LRU[V] { return s.lru }

// StartJanitor periodically purges expired local entries.
func (s *SearchCache[V]) StartJanitor(ctx context.Context, interval time.Duration) {
	s.lru.StartJanitor(ctx, interval, func(n int) {
		logger.Debugf("cache: janitor removed %d expired entries", n)
	})
}
