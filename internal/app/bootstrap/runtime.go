// Package bootstrap wires application dependencies for the binaries, so
// the HTTP server, the Lambda entrypoint and the notify worker assemble
// the same stack from one place.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karthik-ak-dev/pulse-ops/internal/cache"
	"github.com/karthik-ak-dev/pulse-ops/internal/clinic"
	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildClinicStore returns the clinic profile store. A nil Redis client
// yields a store that serves defaults, which keeps single-binary dev runs
// working without Redis.
func BuildClinicStore(redisClient *redis.Client) *clinic.Store {
	return clinic.NewStore(redisClient)
}

// BuildSnapshotCache returns the queue snapshot cache, or nil when Redis
// is not configured so the engine reads straight from the store.
func BuildSnapshotCache(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *cache.SnapshotCache {
	if redisClient == nil {
		return nil
	}
	return cache.NewSnapshotCache(redisClient, ttl, logger)
}
