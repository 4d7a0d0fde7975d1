package sportsgate

import (
	"sort"
	"sync"
	"time"
)

// Cache defines the interface for the upstream response cache
// used by the context fetcher to avoid spending budget twice.
type Cache interface {
	// Get retrieves a cached value
	// Returns the value and true if present and fresh, nil and false otherwise
	Get(key string) (interface{}, bool)

	// GetExpecting is Get with the TTL the caller expects the entry to carry.
	// The stored TTL stays authoritative; a mismatch is only logged.
	GetExpecting(key string, expectedTTL time.Duration) (interface{}, bool)

	// Set stores a value with its own TTL, overwriting any existing entry
	Set(key string, value interface{}, ttl time.Duration)

	// Delete removes an entry and reports whether it existed
	Delete(key string) bool

	// Clear removes all entries and returns how many were removed
	Clear() int

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Size         int     `json:"size"`
	MaxSize      int     `json:"max_size"`
	HitRatio     float64 `json:"hit_ratio"`
	TotalGets    int64   `json:"total_gets"`
	TotalSets    int64   `json:"total_sets"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	CleanupCount int64   `json:"cleanup_count"`
	Evictions    int64   `json:"evictions"`
	HealthLabel  string  `json:"health_label"`
}

// EntryInfo describes a cached entry without touching its access metadata
type EntryInfo struct {
	Key            string        `json:"key"`
	StoredAt       time.Time     `json:"stored_at"`
	TTL            time.Duration `json:"ttl"`
	HitCount       int64         `json:"hit_count"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	Age            time.Duration `json:"age"`
	Expired        bool          `json:"expired"`
}

// cacheEntry wraps a cached value with its own TTL and access data for LRU
type cacheEntry struct {
	value      interface{}
	storedAt   time.Time
	ttl        time.Duration
	hitCount   int64
	accessTime time.Time
	sequence   int64 // For tiebreaking when access times are equal
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// NoopCache is a cache implementation that does nothing
// Used when caching is disabled
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(_ string) (interface{}, bool) { return nil, false }

func (c *NoopCache) GetExpecting(_ string, _ time.Duration) (interface{}, bool) { return nil, false }

func (c *NoopCache) Set(_ string, _ interface{}, _ time.Duration) {}

func (c *NoopCache) Delete(_ string) bool { return false }

func (c *NoopCache) Clear() int { return 0 }

func (c *NoopCache) Stats() CacheStats { return CacheStats{} }

// LRUCache implements Cache in memory with per-entry TTL and batch LRU eviction
type LRUCache struct {
	mu              sync.Mutex
	entries         map[string]*cacheEntry
	maxEntries      int
	evictionBatch   int
	cleanupInterval int64
	now             func() time.Time
	logger          Logger
	metrics         Metrics

	totalGets    int64
	totalSets    int64
	hits         int64
	misses       int64
	cleanupCount int64
	evictions    int64
	sequence     int64
}

// NewLRUCache creates a new LRU cache
func NewLRUCache(config CacheConfig) *LRUCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	if config.EvictionBatch <= 0 {
		config.EvictionBatch = 100
	}
	if config.EvictionBatch > config.MaxEntries {
		config.EvictionBatch = config.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 100
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	config.Logger.Info("cache store initialized", Field{"max_entries", config.MaxEntries})

	return &LRUCache{
		entries:         make(map[string]*cacheEntry, config.MaxEntries),
		maxEntries:      config.MaxEntries,
		evictionBatch:   config.EvictionBatch,
		cleanupInterval: int64(config.CleanupInterval),
		now:             config.Now,
		logger:          config.Logger,
		metrics:         config.Metrics,
	}
}

func (c *LRUCache) Get(key string) (interface{}, bool) {
	return c.GetExpecting(key, 0)
}

func (c *LRUCache) GetExpecting(key string, expectedTTL time.Duration) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.totalGets++
	if c.totalGets%c.cleanupInterval == 0 {
		c.cleanupExpired(now)
	}

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		c.logger.Debug("cache miss", Field{"key", key})
		return nil, false
	}
	if entry.isExpired(now) {
		c.misses++
		delete(c.entries, key)
		c.logger.Debug("cache entry expired",
			Field{"key", key}, Field{"age", now.Sub(entry.storedAt).String()}, Field{"ttl", entry.ttl.String()})
		return nil, false
	}

	if expectedTTL > 0 && expectedTTL != entry.ttl {
		c.logger.Debug("cache ttl differs from expectation",
			Field{"key", key}, Field{"stored_ttl", entry.ttl.String()}, Field{"expected_ttl", expectedTTL.String()})
	}

	c.hits++
	entry.hitCount++
	entry.accessTime = now
	entry.sequence = c.nextSequence()

	c.logger.Debug("cache hit", Field{"key", key}, Field{"hits", entry.hitCount})
	return entry.value, true
}

func (c *LRUCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.totalSets++

	// Evict if at capacity and entry doesn't exist
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		value:      value,
		storedAt:   now,
		ttl:        ttl,
		accessTime: now,
		sequence:   c.nextSequence(),
	}
	c.logger.Debug("cache set", Field{"key", key}, Field{"ttl", ttl.String()}, Field{"size", len(c.entries)})
}

func (c *LRUCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

func (c *LRUCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry, c.maxEntries)
	c.logger.Info("cache cleared", Field{"removed", n})
	return n
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ratio float64
	if total := c.hits + c.misses; total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	health := "healthy"
	if ratio <= 0.6 {
		health = "low_efficiency"
	}

	return CacheStats{
		Size:         len(c.entries),
		MaxSize:      c.maxEntries,
		HitRatio:     ratio,
		TotalGets:    c.totalGets,
		TotalSets:    c.totalSets,
		Hits:         c.hits,
		Misses:       c.misses,
		CleanupCount: c.cleanupCount,
		Evictions:    c.evictions,
		HealthLabel:  health,
	}
}

// Keys returns every key currently stored, fresh or not, in sorted order
func (c *LRUCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry returns metadata for a key. It does not count as a get.
func (c *LRUCache) Entry(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	now := c.now()
	return EntryInfo{
		Key:            key,
		StoredAt:       entry.storedAt,
		TTL:            entry.ttl,
		HitCount:       entry.hitCount,
		LastAccessedAt: entry.accessTime,
		Age:            now.Sub(entry.storedAt),
		Expired:        entry.isExpired(now),
	}, true
}

func (c *LRUCache) nextSequence() int64 {
	seq := c.sequence
	c.sequence++
	return seq
}

// cleanupExpired removes every expired entry. Caller holds c.mu.
func (c *LRUCache) cleanupExpired(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.cleanupCount++
		c.logger.Info("cache auto cleanup", Field{"run", c.cleanupCount}, Field{"removed", removed})
	}
	return removed
}

// evictOldest drops a batch of least recently accessed entries. Caller holds c.mu.
func (c *LRUCache) evictOldest() {
	type candidate struct {
		key      string
		access   time.Time
		sequence int64
	}
	candidates := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		candidates = append(candidates, candidate{key: k, access: e.accessTime, sequence: e.sequence})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].access.Equal(candidates[j].access) {
			return candidates[i].sequence < candidates[j].sequence
		}
		return candidates[i].access.Before(candidates[j].access)
	})

	n := c.evictionBatch
	if n > len(candidates) {
		n = len(candidates)
	}
	for _, cand := range candidates[:n] {
		delete(c.entries, cand.key)
	}
	c.evictions += int64(n)
	c.metrics.RecordCacheEviction(n)
	c.logger.Warn("cache full, evicted least recently used entries",
		Field{"evicted", n}, Field{"remaining", len(c.entries)})
}
