// Package cache holds the Redis-backed read-side caches.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

const defaultSnapshotTTL = 60 * time.Second

// SnapshotCache keeps queue snapshots in Redis so dashboard and patient
// polling stay off DynamoDB. A nil Redis client disables the cache; every
// read then misses and every write is a no-op. Cache failures degrade to
// misses and never surface to callers.
type SnapshotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewSnapshotCache creates a snapshot cache. A non-positive ttl falls back
// to 60 seconds.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SnapshotCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.Component("snapshot_cache"),
	}
}

var _ queue.SnapshotCache = (*SnapshotCache)(nil)

func (c *SnapshotCache) key(queueID string) string {
	return fmt.Sprintf("pulseops:queue:snapshot:%s", queueID)
}

// Get returns the cached snapshot for the queue, reporting a miss when
// absent, expired, unreadable, or the cache is disabled.
func (c *SnapshotCache) Get(ctx context.Context, queueID string) (*queue.QueueSnapshot, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.key(queueID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Debug("snapshot cache read failed", "queue_id", queueID, "error", err)
		return nil, false
	}

	var snap queue.QueueSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("snapshot cache entry corrupt", "queue_id", queueID, "error", err)
		return nil, false
	}
	return &snap, true
}

// Set stores the snapshot under the cache TTL.
func (c *SnapshotCache) Set(ctx context.Context, snap *queue.QueueSnapshot) {
	if c.redis == nil || snap == nil || snap.Queue == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("snapshot cache marshal failed", "queue_id", snap.Queue.QueueID, "error", err)
		return
	}
	if err := c.redis.Set(ctx, c.key(snap.Queue.QueueID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("snapshot cache write failed", "queue_id", snap.Queue.QueueID, "error", err)
	}
}

// Invalidate drops the queue's cached snapshot. Called on every write to
// the queue so reads never serve state older than the last mutation plus
// replication delay.
func (c *SnapshotCache) Invalidate(ctx context.Context, queueID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(queueID)).Err(); err != nil {
		c.logger.Warn("snapshot cache invalidate failed", "queue_id", queueID, "error", err)
	}
}
