package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// PredictionCacheTTL bounds how long a score is reused for identical bytes.
const PredictionCacheTTL = 10 * time.Minute

// Cache is the subset of Redis the prediction use case relies on.
// Get must return redis.Nil on a miss.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache stores model scores in Redis.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps client. Single-node and cluster clients both work.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// NoopCache is used when no Redis address is configured. Every lookup misses.
type NoopCache struct{}

func (NoopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (NoopCache) Get(context.Context, string) (string, error) { return "", redis.Nil }

// predictionCacheKey derives the cache key from the model id and the hex SHA-1
// of the image bytes, so swapping models never serves stale scores.
func predictionCacheKey(modelID, sha1Hex string) string {
	if modelID == "" {
		return fmt.Sprintf("prediction:%s", sha1Hex)
	}
	return fmt.Sprintf("prediction:%s:%s", modelID, sha1Hex)
}

func encodeScore(score float32) string {
	return strconv.FormatFloat(float64(score), 'g', -1, 32)
}

func decodeScore(value string) (float32, error) {
	score, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return 0, fmt.Errorf("decode cached score %q: %w", value, err)
	}
	return float32(score), nil
}
