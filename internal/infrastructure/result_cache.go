package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"attributiongo/internal/domain"
	"attributiongo/pkg/config"
	"attributiongo/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// NoopResultCache never stores anything
type NoopResultCache struct{}

func (NoopResultCache) Generation(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (NoopResultCache) Get(ctx context.Context, key string) (*domain.EngineResult, bool, error) {
	return nil, false, nil
}

func (NoopResultCache) Set(ctx context.Context, key string, generation uint64, result *domain.EngineResult) error {
	return nil
}

func (NoopResultCache) Invalidate(ctx context.Context) error {
	return nil
}

type cachedResult struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryResultCache keeps encoded results in process with a TTL
type MemoryResultCache struct {
	ttl        time.Duration
	now        func() time.Time
	entries    map[string]cachedResult
	generation uint64
	mutex      sync.RWMutex
}

func NewMemoryResultCache(ttl time.Duration) *MemoryResultCache {
	return &MemoryResultCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedResult),
	}
}

func (c *MemoryResultCache) Generation(ctx context.Context) (uint64, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.generation, nil
}

// entries are stored encoded so callers can never mutate a cached tree
func (c *MemoryResultCache) Get(ctx context.Context, key string) (*domain.EngineResult, bool, error) {
	c.mutex.RLock()
	entry, ok := c.entries[key]
	c.mutex.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mutex.Lock()
		delete(c.entries, key)
		c.mutex.Unlock()
		return nil, false, nil
	}

	var result domain.EngineResult
	if err := json.Unmarshal(entry.payload, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, true, nil
}

func (c *MemoryResultCache) Set(ctx context.Context, key string, generation uint64, result *domain.EngineResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// computed from data the last Invalidate already superseded
	if generation != c.generation {
		return nil
	}

	c.entries[key] = cachedResult{payload: payload, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryResultCache) Invalidate(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]cachedResult)
	c.generation++
	return nil
}

const (
	redisGenerationKey = "attribution:generation"
	redisResultPrefix  = "attribution:result"
)

// RedisResultCache shares results across replicas. Invalidate bumps a generation
// counter that is part of every key, so stale entries simply expire. Set writes
// under the generation the caller read before computing, which Get no longer
// reads once Invalidate has run.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// connects to Redis and verifies it is reachable
func NewRedisResultCache(ctx context.Context, cfg config.CacheConfig, logger *logger.Logger) (*RedisResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(map[string]any{
		"addr": cfg.RedisAddr,
		"db":   cfg.RedisDB,
	}).Info("Connected to Redis")

	return &RedisResultCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func (c *RedisResultCache) Generation(ctx context.Context) (uint64, error) {
	generation, err := c.client.Get(ctx, redisGenerationKey).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return generation, nil
}

func resultKey(generation uint64, key string) string {
	return fmt.Sprintf("%s:%d:%s", redisResultPrefix, generation, key)
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (*domain.EngineResult, bool, error) {
	generation, err := c.Generation(ctx)
	if err != nil {
		return nil, false, err
	}
	redisKey := resultKey(generation, key)

	payload, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached result: %w", err)
	}

	var result domain.EngineResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, generation uint64, result *domain.EngineResult) error {
	redisKey := resultKey(generation, key)

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if err := c.client.Set(ctx, redisKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

func (c *RedisResultCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, redisGenerationKey).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	c.logger.WithContext(ctx).Info("Invalidated cached attribution results")
	return nil
}

func (c *RedisResultCache) Close() error {
	return c.client.Close()
}
