package sportsgate_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// fakeClock is a manually advanced clock shared by cache and budget tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(maxEntries int, clock *fakeClock) *sportsgate.LRUCache {
	return sportsgate.NewLRUCache(sportsgate.CacheConfig{
		MaxEntries:    maxEntries,
		EvictionBatch: 100,
		Now:           clock.Now,
	})
}

func TestLRUCache_SetGetExpire(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := newTestCache(5, clock)

	cache.Set("a", map[string]int{"v": 1}, 100*time.Second)
	v, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"v": 1}, v)
	assert.Equal(t, int64(1), cache.Stats().Hits)

	cache.Set("b", "short", time.Second)
	clock.Advance(2 * time.Second)

	_, ok = cache.Get("b")
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size, "expired entry should be deleted on get")
}

func TestLRUCache_ExpiryIsStrictlyGreaterThanTTL(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := newTestCache(5, clock)

	cache.Set("k", 1, 10*time.Second)
	clock.Advance(10 * time.Second)
	_, ok := cache.Get("k")
	assert.True(t, ok, "entry exactly at its TTL is still fresh")

	clock.Advance(time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestLRUCache_StoredTTLIsAuthoritative(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := newTestCache(5, clock)

	cache.Set("k", 1, time.Minute)
	clock.Advance(30 * time.Second)

	_, ok := cache.GetExpecting("k", time.Second)
	assert.True(t, ok)

	clock.Advance(31 * time.Second)
	_, ok = cache.GetExpecting("k", time.Hour)
	assert.False(t, ok)
}

func TestLRUCache_OverwriteReplacesTTL(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := newTestCache(5, clock)

	cache.Set("k", 1, time.Second)
	cache.Set("k", 2, time.Hour)
	clock.Advance(time.Minute)

	v, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	clock := newFakeClock(time.Now())
	cache := newTestCache(10, clock)

	cache.Set("a", 1, time.Minute)
	cache.Set("b", 2, time.Minute)
	cache.Set("c", 3, time.Minute)

	assert.True(t, cache.Delete("a"))
	assert.False(t, cache.Delete("a"))
	assert.False(t, cache.Delete("missing"))

	assert.Equal(t, 2, cache.Clear())
	assert.Equal(t, 0, cache.Stats().Size)
	assert.Equal(t, 0, cache.Clear())
}

func TestLRUCache_EvictionBoundsSize(t *testing.T) {
	clock := newFakeClock(time.Now())
	const maxEntries = 1000
	cache := newTestCache(maxEntries, clock)

	for i := 0; i < maxEntries+500; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), i, time.Hour)
		if size := cache.Stats().Size; size > maxEntries {
			t.Fatalf("size %d exceeds max %d after %d inserts", size, maxEntries, i+1)
		}
	}
	assert.Greater(t, cache.Stats().Evictions, int64(0))
}

func TestLRUCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := sportsgate.NewLRUCache(sportsgate.CacheConfig{
		MaxEntries:    3,
		EvictionBatch: 1,
		Now:           clock.Now,
	})

	cache.Set("a", 1, time.Hour)
	clock.Advance(time.Second)
	cache.Set("b", 2, time.Hour)
	clock.Advance(time.Second)
	cache.Set("c", 3, time.Hour)
	clock.Advance(time.Second)

	// touch "a" so "b" becomes the oldest
	_, _ = cache.Get("a")
	clock.Advance(time.Second)
	cache.Set("d", 4, time.Hour)

	assert.Equal(t, []string{"a", "c", "d"}, cache.Keys())
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestLRUCache_EvictionTieBreaksOnInsertOrder(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := sportsgate.NewLRUCache(sportsgate.CacheConfig{
		MaxEntries:    2,
		EvictionBatch: 1,
		Now:           clock.Now,
	})

	cache.Set("first", 1, time.Hour)
	cache.Set("second", 2, time.Hour)
	cache.Set("third", 3, time.Hour)

	assert.Equal(t, []string{"second", "third"}, cache.Keys())
}

func TestLRUCache_AutoCleanup(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := sportsgate.NewLRUCache(sportsgate.CacheConfig{
		MaxEntries:      100,
		CleanupInterval: 10,
		Now:             clock.Now,
	})

	for i := 0; i < 5; i++ {
		cache.Set(fmt.Sprintf("old-%d", i), i, time.Second)
	}
	cache.Set("keep", "x", time.Hour)
	clock.Advance(5 * time.Second)

	for i := 0; i < 10; i++ {
		_, _ = cache.Get("keep")
	}

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.CleanupCount)
	assert.Equal(t, int64(10), stats.TotalGets)
}

func TestLRUCache_StatsHitRatio(t *testing.T) {
	clock := newFakeClock(time.Now())
	cache := newTestCache(10, clock)

	stats := cache.Stats()
	assert.Equal(t, 0.0, stats.HitRatio)

	cache.Set("a", 1, time.Minute)
	for i := 0; i < 3; i++ {
		_, _ = cache.Get("a")
	}
	_, _ = cache.Get("missing")

	stats = cache.Stats()
	assert.InDelta(t, 0.75, stats.HitRatio, 1e-9)
	assert.Equal(t, int64(4), stats.TotalGets)
	assert.Equal(t, int64(1), stats.TotalSets)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, "healthy", stats.HealthLabel)

	_, _ = cache.Get("missing")
	_, _ = cache.Get("missing")
	assert.Equal(t, "low_efficiency", cache.Stats().HealthLabel)
}

func TestLRUCache_EntryDoesNotCountAsGet(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := newTestCache(10, clock)

	cache.Set("a", 1, time.Minute)
	_, _ = cache.Get("a")
	clock.Advance(2 * time.Minute)

	info, ok := cache.Entry("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), info.HitCount)
	assert.Equal(t, time.Minute, info.TTL)
	assert.Equal(t, 2*time.Minute, info.Age)
	assert.True(t, info.Expired)
	assert.Equal(t, int64(1), cache.Stats().TotalGets)

	_, ok = cache.Entry("missing")
	assert.False(t, ok)
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := sportsgate.NewLRUCache(sportsgate.CacheConfig{MaxEntries: 50, EvictionBatch: 10})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d-%d", w, i%40)
				cache.Set(key, i, time.Minute)
				_, _ = cache.Get(key)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Size, 50)
}

func TestNoopCache(t *testing.T) {
	cache := sportsgate.NewNoopCache()
	cache.Set("a", 1, time.Minute)
	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.False(t, cache.Delete("a"))
	assert.Equal(t, 0, cache.Clear())
}
