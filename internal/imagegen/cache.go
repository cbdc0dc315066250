package imagegen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timelinecraft/studio/internal/generation"
	"github.com/timelinecraft/studio/internal/segment"
)

const cacheKeyPrefix = "timelinecraft:frames:"

// Cache is the key/value store behind CachedGenerator.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache implements Cache on a go-redis client.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedGenerator serves repeated identical requests from the cache. Cache
// failures are logged and fall through to the wrapped generator.
type CachedGenerator struct {
	next   generation.ImageGenerator
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedGenerator(next generation.ImageGenerator, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedGenerator {
	return &CachedGenerator{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (g *CachedGenerator) GenerateFrames(ctx context.Context, req generation.FrameRequest) (segment.Frames, error) {
	key, err := CacheKey(req)
	if err != nil {
		return g.next.GenerateFrames(ctx, req)
	}

	if raw, ok, err := g.cache.Get(ctx, key); err != nil {
		g.logger.Warn("frame cache read failed", "error", err)
	} else if ok {
		var frames segment.Frames
		if err := json.Unmarshal([]byte(raw), &frames); err == nil && frames.Start != "" && frames.End != "" {
			g.logger.Debug("frame cache hit", "segment_id", req.SegmentID)
			return frames, nil
		}
	}

	frames, err := g.next.GenerateFrames(ctx, req)
	if err != nil {
		return frames, err
	}

	if raw, err := json.Marshal(frames); err == nil {
		if err := g.cache.Set(ctx, key, string(raw), g.ttl); err != nil {
			g.logger.Warn("frame cache write failed", "error", err)
		}
	}
	return frames, nil
}

// CacheKey hashes the parts of a request that determine its frames. The
// segment id is left out so identical prompts share results.
func CacheKey(req generation.FrameRequest) (string, error) {
	keyed := req
	keyed.SegmentID = ""
	raw, err := json.Marshal(keyed)
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}
