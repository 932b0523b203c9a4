package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "goanalog"

// ResultCache stores JSON results in Redis. A nil client disables it: lookups miss and stores
// succeed without doing anything.
type ResultCache struct {
	redis  redis.Cmdable
	logger *logrus.Logger
}

func NewResultCache(client redis.Cmdable, logger *logrus.Logger) *ResultCache {
	return &ResultCache{redis: client, logger: logger}
}

// Enabled reports whether a Redis client is configured.
func (c *ResultCache) Enabled() bool {
	return c != nil && c.redis != nil
}

// Get decodes the cached value into dest. It reports false on a miss, on a decode failure and
// when the cache is disabled; Redis errors are logged and treated as misses.
func (c *ResultCache) Get(ctx context.Context, key string, dest any) bool {
	if !c.Enabled() {
		return false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Result cache read failed")
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (c *ResultCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.Enabled() || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// CacheKey joins parts under the service prefix. Callers include the model version so that a
// reload makes earlier entries unreachable.
func CacheKey(parts ...string) string {
	return cacheKeyPrefix + ":" + strings.Join(parts, ":")
}

// Fingerprint hashes the JSON encoding of v into a short stable key component.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12]), nil
}
