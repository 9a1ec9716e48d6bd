package agriquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore persists sessions in Redis as one JSON document per
// session under prefix+"session:"+id, refreshed to ttl on every write.
// Concurrent writers to the same session are last-write-wins.
type RedisSessionStore struct {
	rdb      redis.UniversalClient
	prefix   string
	ttl      time.Duration
	maxTurns int
}

func NewRedisSessionStore(rdb redis.UniversalClient, prefix string, ttl time.Duration, maxTurns int) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "agriquery:conv:"
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix, ttl: ttl, maxTurns: maxTurns}
}

func (s *RedisSessionStore) sessKey(id string) string { return s.prefix + "session:" + id }

func (s *RedisSessionStore) AddTurn(ctx context.Context, id, userID string, t Turn) error {
	sess, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		sess = &Session{ID: id, UserID: userID, CreatedAt: t.Timestamp}
	}
	sess.Turns = trimTurns(append(sess.Turns, t), s.maxTurns)
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.sessKey(id), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	b, err := s.rdb.Get(ctx, s.sessKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session: load %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, false, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &sess, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.sessKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("session: delete %s: %w", id, err)
	}
	return n > 0, nil
}
