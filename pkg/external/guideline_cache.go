package external

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
)

// CachedGuidelineProvider puts an in-memory LRU and an optional Redis tier
// in front of another provider.
type CachedGuidelineProvider struct {
	next   domain.GuidelineProvider
	memory *expirable.LRU[string, *domain.Guideline]
	redis  *CacheClient
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedGuidelineProvider wraps next. redis may be nil.
func NewCachedGuidelineProvider(next domain.GuidelineProvider, maxItems int, ttl time.Duration, redis *CacheClient, logger *logrus.Logger) *CachedGuidelineProvider {
	if maxItems <= 0 {
		maxItems = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedGuidelineProvider{
		next:   next,
		memory: expirable.NewLRU[string, *domain.Guideline](maxItems, nil, ttl),
		redis:  redis,
		ttl:    ttl,
		logger: logger,
	}
}

// Lookup serves from memory, then Redis, then the wrapped provider
func (c *CachedGuidelineProvider) Lookup(ctx context.Context, topic string) (*domain.Guideline, error) {
	key := NormalizeTopic(topic)

	if g, ok := c.memory.Get(key); ok {
		return cloneGuideline(*g), nil
	}

	if c.redis != nil {
		g, ok, err := c.redis.GetGuideline(ctx, key)
		if err != nil {
			c.logger.WithError(err).Debug("Guideline cache read failed")
		} else if ok && g != nil {
			c.memory.Add(key, g)
			return cloneGuideline(*g), nil
		}
	}

	g, err := c.next.Lookup(ctx, topic)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: no guideline for %q", domain.ErrGuidelineLookup, topic)
	}

	c.memory.Add(key, g)
	if c.redis != nil {
		if err := c.redis.SetGuideline(ctx, key, g, c.ttl); err != nil {
			c.logger.WithError(err).Debug("Guideline cache write failed")
		}
	}
	return cloneGuideline(*g), nil
}

// Len returns the number of topics held in memory
func (c *CachedGuidelineProvider) Len() int {
	return c.memory.Len()
}

// NewGuidelineProvider builds the configured provider behind the cache tiers
func NewGuidelineProvider(cfg domain.GuidelineConfig, cacheCfg domain.CacheConfig, redis *CacheClient, logger *logrus.Logger) (domain.GuidelineProvider, error) {
	var base domain.GuidelineProvider
	switch cfg.Provider {
	case "", "catalog":
		base = NewGuidelineCatalog()
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("guidelines.base_url is required for the http provider")
		}
		base = NewHTTPGuidelineClient(HTTPGuidelineConfig{
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown guideline provider %q", cfg.Provider)
	}

	return NewCachedGuidelineProvider(base, cacheCfg.MemoryMaxSize, cfg.CacheTTL, redis, logger), nil
}
