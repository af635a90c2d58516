package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedState is a cache entry: an entity state plus the time it was
// sourced. FetchedAt is the REST fetch time, or the event time for
// entries written by the event path.
type CachedState struct {
	State     State     `json:"state"`
	FetchedAt time.Time `json:"fetched_at"`
}

// StateCache stores entity states keyed by entity ID. Entries expire
// after the configured TTL; Invalidate removes an entry eagerly. Only
// states Home Assistant reported are ever stored.
type StateCache interface {
	Get(ctx context.Context, entityID string) (*CachedState, bool)
	Put(ctx context.Context, state State, fetchedAt time.Time)
	Invalidate(ctx context.Context, entityID string) error
	Backend() string
}

// CacheMetrics counts cache outcomes. Invalidation failures are the
// interesting signal: a failed invalidation can leave a reader seeing a
// pre-write state until TTL expiry.
type CacheMetrics struct {
	Hits               atomic.Int64
	Misses             atomic.Int64
	InvalidateFailures atomic.Int64
}

// Snapshot returns current counter values for the health endpoint.
func (m *CacheMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":                m.Hits.Load(),
		"misses":              m.Misses.Load(),
		"invalidate_failures": m.InvalidateFailures.Load(),
	}
}

const cacheKeyPrefix = "ha:state:"

// RedisCache stores entity states in Redis with a TTL. Cache errors
// degrade to misses; they never fail the read path.
type RedisCache struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *CacheMetrics
}

// NewRedisCache creates a Redis-backed state cache.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
		metrics: &CacheMetrics{},
	}
}

// Metrics returns the cache counters.
func (c *RedisCache) Metrics() *CacheMetrics { return c.metrics }

// Backend identifies the cache implementation for /health.
func (c *RedisCache) Backend() string { return "redis" }

// Get returns the cached entry for entityID, or (nil, false) on miss.
func (c *RedisCache) Get(ctx context.Context, entityID string) (*CachedState, bool) {
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+entityID).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache read failed", "entity_id", entityID, "error", err)
		}
		c.metrics.Misses.Add(1)
		return nil, false
	}

	var entry CachedState
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("cache entry corrupt, discarding", "entity_id", entityID, "error", err)
		c.metrics.Misses.Add(1)
		return nil, false
	}

	c.metrics.Hits.Add(1)
	return &entry, true
}

// Put stores an entity state. Write failures are logged and otherwise
// ignored: the next read falls through to REST.
func (c *RedisCache) Put(ctx context.Context, state State, fetchedAt time.Time) {
	entry := CachedState{State: state, FetchedAt: fetchedAt}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache entry encode failed", "entity_id", state.EntityID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+state.EntityID, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", "entity_id", state.EntityID, "error", err)
	}
}

// Invalidate removes the entry for entityID. Failures are logged and
// counted, and returned to the caller: the write-through path depends
// on invalidation for coherence.
func (c *RedisCache) Invalidate(ctx context.Context, entityID string) error {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+entityID).Err(); err != nil {
		c.metrics.InvalidateFailures.Add(1)
		c.logger.Error("cache invalidation failed", "entity_id", entityID, "error", err)
		return fmt.Errorf("invalidate %s: %w", entityID, err)
	}
	return nil
}

// MemoryCache is an in-process StateCache with TTL expiry. The tests use
// it; the server does not select it (without Redis it runs uncached).
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	cached    CachedState
	expiresAt time.Time
}

// NewMemoryCache creates an in-process state cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Backend identifies the cache implementation for /health.
func (c *MemoryCache) Backend() string { return "memory" }

// Get returns the cached entry for entityID, or (nil, false) on miss.
func (c *MemoryCache) Get(ctx context.Context, entityID string) (*CachedState, bool) {
	c.mu.RLock()
	entry, ok := c.entries[entityID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	cached := entry.cached
	return &cached, true
}

// Put stores an entity state.
func (c *MemoryCache) Put(ctx context.Context, state State, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[state.EntityID] = memoryEntry{
		cached:    CachedState{State: state, FetchedAt: fetchedAt},
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes the entry for entityID.
func (c *MemoryCache) Invalidate(ctx context.Context, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entityID)
	return nil
}
