package agriquery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agriquery/schema"
)

func turn(i int) Turn {
	return Turn{
		Query:     fmt.Sprintf("câu hỏi %d", i),
		Answer:    fmt.Sprintf("trả lời %d", i),
		Intent:    schema.IntentKnowledgeQuery,
		Layer:     schema.LayerExactMatch,
		Timestamp: time.Date(2025, 3, 1, 8, i, 0, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, s SessionStore) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.AddTurn(ctx, "c1", "u1", turn(i)))
	}
	sess, ok, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", sess.ID)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, turn(0).Timestamp, sess.CreatedAt)
	require.Len(t, sess.Turns, 3)
	assert.Equal(t, "câu hỏi 1", sess.Turns[0].Query)
	assert.Equal(t, "câu hỏi 3", sess.Turns[2].Query)
	assert.Equal(t, schema.IntentKnowledgeQuery, sess.Turns[2].Intent)

	deleted, err := s.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemSessionStore(t *testing.T) {
	exerciseStore(t, NewMemSessionStore(3))
}

func TestMemSessionStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemSessionStore(0)
	require.NoError(t, s.AddTurn(ctx, "c1", "", turn(0)))

	sess, _, _ := s.Get(ctx, "c1")
	sess.Turns[0].Answer = "đã sửa"
	again, _, _ := s.Get(ctx, "c1")
	assert.Equal(t, "trả lời 0", again.Turns[0].Answer)
}

// fakeRedis implements only the commands RedisSessionStore uses.
type fakeRedis struct {
	redis.UniversalClient
	data map[string]string
	ttls map[string]time.Duration
	fail bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.fail {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisSessionStore(t *testing.T) {
	rdb := newFakeRedis()
	exerciseStore(t, NewRedisSessionStore(rdb, "agriquery:conv:", time.Hour, 3))
}

func TestRedisSessionStoreKeysAndTTL(t *testing.T) {
	rdb := newFakeRedis()
	s := NewRedisSessionStore(rdb, "", 0, 0)
	require.NoError(t, s.AddTurn(context.Background(), "c9", "u1", turn(0)))

	assert.Contains(t, rdb.data, "agriquery:conv:session:c9")
	assert.Equal(t, 24*time.Hour, rdb.ttls["agriquery:conv:session:c9"])
	assert.Contains(t, rdb.data["agriquery:conv:session:c9"], `"intent":"KNOWLEDGE_QUERY"`)
}

func TestRedisSessionStoreSurfacesErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.fail = true
	s := NewRedisSessionStore(rdb, "p:", time.Hour, 0)

	_, _, err := s.Get(context.Background(), "c1")
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, s.AddTurn(context.Background(), "c1", "u1", turn(0)))
}
