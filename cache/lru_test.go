package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLRU(capacity int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	c := NewLRU[string](capacity, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUSetGetBeforeAndAfterExpiry(t *testing.T) {
	c, clk := newTestLRU(10, time.Hour)
	c.Set("k", "v", 30*time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clk.advance(29 * time.Minute)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clk.advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted lazily on access")

	s := c.Stats()
	assert.EqualValues(t, 2, s.Hits)
	assert.EqualValues(t, 1, s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(3, time.Hour)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("c", "3", 0)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", "4", 0)
	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestLRUUpdateDoesNotEvict(t *testing.T) {
	c, _ := newTestLRU(2, time.Hour)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("a", "1b", 0)

	assert.Equal(t, 2, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, "1b", v)
	assert.EqualValues(t, 0, c.Stats().Evictions)
}

func TestLRUPurgeExpiredAndEntries(t *testing.T) {
	c, clk := newTestLRU(10, time.Hour)
	c.Set("short", "x", time.Minute)
	c.Set("long", "y", 2*time.Hour)
	_, _ = c.Get("long")

	clk.advance(5 * time.Minute)
	assert.Equal(t, 1, c.PurgeExpired())

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "long", entries[0].Key)
	assert.Equal(t, 1, entries[0].Hits)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Len())
}

func TestLRUJanitor(t *testing.T) {
	c := NewLRU[string](10, time.Hour)
	c.Set("gone", "x", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	purged := make(chan int, 1)
	c.StartJanitor(ctx, 5*time.Millisecond, func(n int) {
		select {
		case purged <- n:
		default:
		}
	})

	select {
	case n := <-purged:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not purge")
	}
	assert.Equal(t, 0, c.Len())
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU[int](50, time.Hour)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := string(rune('a' + (i+g)%26))
				c.Set(key, i, 0)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
