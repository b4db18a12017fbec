package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Cache stores embeddings by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Set(ctx context.Context, key string, vec []float64) error
}

// CacheKey derives the cache key for text embedded with model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process cache bounded by entry count. When full, the
// oldest entry is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string][]float64
	order   []string
	maxSize int
}

// NewMemoryCache returns a cache holding at most maxSize entries
// (0 means unbounded).
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{items: make(map[string][]float64), maxSize: maxSize}
}

// Get returns a copy of the cached vector.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Set stores a copy of vec.
func (c *MemoryCache) Set(_ context.Context, key string, vec []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		if c.maxSize > 0 && len(c.order) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	c.items[key] = slices.Clone(vec)
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RedisCache shares embeddings between processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to the Redis instance at url
// (redis://[:password@]host:port/db).
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCacheWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "llmfinder:embedding:", ttl: ttl}
}

// Get returns the cached vector for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float64, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, fmt.Errorf("decode cached embedding: %w", err)
	}
	return vec, true, nil
}

// Set stores vec under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float64) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedClient consults a Cache before calling the wrapped Client. Cache
// failures are logged and never fail the embedding request.
type CachedClient struct {
	inner  Client
	cache  Cache
	model  string
	logger zerolog.Logger
}

// NewCachedClient wraps inner. model namespaces the cache keys.
func NewCachedClient(inner Client, cache Cache, model string) *CachedClient {
	return &CachedClient{
		inner:  inner,
		cache:  cache,
		model:  model,
		logger: log.With().Str("component", "embedding").Logger(),
	}
}

// Embed returns the cached embedding of text or fetches and caches it.
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	key := CacheKey(c.model, text)
	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache read failed")
	}
	if ok {
		return vec, nil
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache write failed")
	}
	return vec, nil
}
