// Package cache implements C6: a bounded, TTL-evicted, at-most-once
// store of per-chunk transcripts keyed by model.CacheKey, backed by
// hashicorp/golang-lru's expirable LRU so both the size cap
// (cache.maxSize) and the time-based eviction (cache.ttlHours) come from
// one library rather than two.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"

	"github.com/scholary/streamscribe/internal/model"
)

// ChunkCache is safe for concurrent use; it is the sole piece of state
// shared across runs (§5).
type ChunkCache struct {
	store     *lru.LRU[string, model.ChunkTranscript]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	sweeper   *cron.Cron
}

// New builds a cache capped at maxSize entries, each evicted ttl after
// insertion. If sweepSchedule is non-empty, a cron job performs an
// explicit eviction sweep on that schedule in addition to the library's
// own lazy, access-time eviction — useful for long-lived caches that see
// little traffic and would otherwise only evict on the next touch.
func New(maxSize int, ttl time.Duration, sweepSchedule string) *ChunkCache {
	c := &ChunkCache{}
	c.store = lru.NewLRU[string, model.ChunkTranscript](maxSize, func(key string, value model.ChunkTranscript) {
		c.evictions.Add(1)
	}, ttl)

	if sweepSchedule != "" {
		c.sweeper = cron.New()
		_, _ = c.sweeper.AddFunc(sweepSchedule, func() {
			c.store.Keys() // touching Keys() forces the library to purge expired entries
		})
		c.sweeper.Start()
	}
	return c
}

// Close stops the eviction sweeper, if any.
func (c *ChunkCache) Close() {
	if c.sweeper != nil {
		c.sweeper.Stop()
	}
}

// Get returns the cached transcript for key, if present and unexpired.
func (c *ChunkCache) Get(key model.CacheKey) (model.ChunkTranscript, bool) {
	v, ok := c.store.Get(key.String())
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put inserts or overwrites the transcript for key. Last writer wins;
// at-most-once semantics beyond that are not required (§4.6).
func (c *ChunkCache) Put(key model.CacheKey, transcript model.ChunkTranscript) {
	c.store.Add(key.String(), transcript)
}

// Evict removes a single key.
func (c *ChunkCache) Evict(key model.CacheKey) {
	c.store.Remove(key.String())
}

// EvictAllForFile removes every cached chunk belonging to bucket/key,
// mirroring ChunkCache.generateFilePrefix's prefix-scan in the original.
func (c *ChunkCache) EvictAllForFile(bucket, key string) {
	prefix := bucket + ":" + key + ":"
	for _, k := range c.store.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.store.Remove(k)
		}
	}
}

// Stats reports cumulative hit/miss/eviction counters for observability.
func (c *ChunkCache) Stats() model.CacheStats {
	return model.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
