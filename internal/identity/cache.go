package identity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FingerprintCache is a Redis-backed negative cache for fingerprint lookups.
// Large partner uploads are mostly never-seen contacts; remembering recent
// confirmed misses lets the resolver skip whole store round-trips for them.
// All cache errors are logged and ignored — the cache is an accelerator,
// never an authority.
type FingerprintCache struct {
	client *redis.Client
	ttl    time.Duration
}

const missValue = "0"

// NewFingerprintCache wraps a Redis client. TTL defaults to one hour; keep
// it short, staleness only costs an extra constraint-protected insert.
func NewFingerprintCache(client *redis.Client, ttl time.Duration) *FingerprintCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &FingerprintCache{client: client, ttl: ttl}
}

func cacheKey(fingerprint string) string {
	return "lead:fp:" + fingerprint
}

// KnownMiss reports whether the fingerprint was recently confirmed absent.
func (c *FingerprintCache) KnownMiss(ctx context.Context, fingerprint string) bool {
	val, err := c.client.Get(ctx, cacheKey(fingerprint)).Result()
	if err != nil {
		if err != redis.Nil {
			zap.L().Debug("identity: cache get failed", zap.Error(err))
		}
		return false
	}
	return val == missValue
}

// RecordMiss remembers that the store has no lead for this fingerprint.
func (c *FingerprintCache) RecordMiss(ctx context.Context, fingerprint string) {
	if err := c.client.Set(ctx, cacheKey(fingerprint), missValue, c.ttl).Err(); err != nil {
		zap.L().Debug("identity: cache set failed", zap.Error(err))
	}
}

// Invalidate drops the cached miss after a lead is created for the
// fingerprint.
func (c *FingerprintCache) Invalidate(ctx context.Context, fingerprint string) {
	if err := c.client.Del(ctx, cacheKey(fingerprint)).Err(); err != nil {
		zap.L().Debug("identity: cache invalidate failed", zap.Error(err))
	}
}
