package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	metricsSnapshotKey = "tunnel:metrics:snapshot"
	metricsSnapshotTTL = 5 * time.Second
)

// SnapshotCacher is the narrow Redis surface the decorator needs;
// satisfied by *redis.Client. A nil SnapshotCacher disables caching
// entirely, which is what deployments without a Redis URL get.
type SnapshotCacher interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// metricsSnapshotCache is a cache-aside decorator in front of
// buildMetricsSnapshot. The TTL is short because the underlying data
// changes continuously, so time-based expiry is the only invalidation
// needed.
type metricsSnapshotCache struct {
	client SnapshotCacher

	mu     sync.Mutex
	hits   int64
	misses int64
}

func newMetricsSnapshotCache(client SnapshotCacher) *metricsSnapshotCache {
	return &metricsSnapshotCache{client: client}
}

// Get returns the cached snapshot if present and fresh, otherwise calls
// build, caches the result, and returns it.
func (c *metricsSnapshotCache) Get(ctx context.Context, build func() (MetricsSnapshot, error)) (MetricsSnapshot, error) {
	if c.client == nil {
		return build()
	}

	if cached, err := c.client.Get(ctx, metricsSnapshotKey).Bytes(); err == nil && len(cached) > 0 {
		var snap MetricsSnapshot
		if jsonErr := json.Unmarshal(cached, &snap); jsonErr == nil {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return snap, nil
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	snap, err := build()
	if err != nil {
		return MetricsSnapshot{}, err
	}

	if data, err := json.Marshal(snap); err == nil {
		if err := c.client.Set(ctx, metricsSnapshotKey, data, metricsSnapshotTTL).Err(); err != nil {
			log.Printf("[WARN] api: failed to cache metrics snapshot: %v", err)
		}
	}

	return snap, nil
}

// Stats returns cache hit/miss counts for diagnostics.
func (c *metricsSnapshotCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
