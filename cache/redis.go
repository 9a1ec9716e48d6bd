package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/config"
)

const clearMessage = "clear"

// RedisL2 stores search results in Redis under a key prefix so several
// pipeline instances share hits. Clear is broadcast on Channel so peers
// drop their local entries too.
type RedisL2 struct {
	rdb     redis.UniversalClient
	prefix  string
	channel string
}

// NewRedisClient parses the URL, applies timeouts and pings.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.ReadTimeout = config.Millis(cfg.ReadTimeoutMs, 3*time.Second)
	opts.WriteTimeout = config.Millis(cfg.WriteTimeoutMs, 3*time.Second)
	opts.DialTimeout = config.Millis(cfg.DialTimeoutMs, 5*time.Second)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return client, nil
}

func NewRedisL2(rdb redis.UniversalClient, prefix, channel string) *RedisL2 {
	return &RedisL2{rdb: rdb, prefix: prefix, channel: channel}
}

func (r *RedisL2) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrMiss
	}
	if err != nil {
		return nil, 0, err
	}
	ttl, err := r.rdb.PTTL(ctx, r.prefix+key).Result()
	if err != nil {
		return nil, 0, err
	}
	// PTTL reports -1 for keys without expiry and -2 for keys already gone.
	if ttl == -2 {
		return nil, 0, ErrMiss
	}
	if ttl < 0 {
		ttl = 0
	}
	return b, ttl, nil
}

func (r *RedisL2) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Clear deletes every key under the prefix and notifies peers.
func (r *RedisL2) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if r.channel == "" {
		return nil
	}
	return r.rdb.Publish(ctx, r.channel, clearMessage).Err()
}

// Watch purges local on every clear broadcast until ctx is done.
func (r *RedisL2) Watch(ctx context.Context, purge func() int) {
	if r.channel == "" {
		return
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == clearMessage {
					n := purge()
					logger.Debugf("cache: peer clear dropped %d local entries", n)
				}
			}
		}
	}()
}
