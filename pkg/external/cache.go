package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// CacheClient wraps Redis client with caching functionality for external API responses
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheClientFromRedis(client, config.DefaultTTL), nil
}

// NewCacheClientFromRedis wraps an existing Redis client
func NewCacheClientFromRedis(client *redis.Client, defaultTTL time.Duration) *CacheClient {
	if defaultTTL == 0 {
		defaultTTL = time.Hour
	}
	return &CacheClient{redis: client, defaultTTL: defaultTTL}
}

// cachedGuideline represents a cached guideline with metadata
type cachedGuideline struct {
	Data      *domain.Guideline `json:"data"`
	CachedAt  time.Time         `json:"cached_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// GetGuideline retrieves a cached guideline
func (c *CacheClient) GetGuideline(ctx context.Context, topic string) (*domain.Guideline, bool, error) {
	key := guidelineKey(topic)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get guideline cache: %w", err)
	}

	var cached cachedGuideline
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetGuideline caches a guideline
func (c *CacheClient) SetGuideline(ctx context.Context, topic string, guideline *domain.Guideline, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedGuideline{
		Data:      guideline,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal guideline cache data: %w", err)
	}

	return c.redis.Set(ctx, guidelineKey(topic), jsonData, ttl).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

func guidelineKey(topic string) string {
	sum := sha256.Sum256([]byte(NormalizeTopic(topic)))
	return "guideline:" + hex.EncodeToString(sum[:8])
}

// NormalizeTopic lower-cases a topic and joins its words with underscores
func NormalizeTopic(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), "_")
}
