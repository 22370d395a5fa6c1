package redis

import (
	"context"
	"errors"
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/pkg/logger"
)

// jsonStore is the subset of Cache used by CatalogCache.
type jsonStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CatalogCache is a read-through cache in front of a badge.CatalogRepository.
// Redis failures are logged and the source is queried directly.
type CatalogCache struct {
	cache  jsonStore
	source badge.CatalogRepository
	ttl    time.Duration
	log    *logger.Logger
}

// NewCatalogCache wraps source with a Redis-backed cache.
func NewCatalogCache(cache jsonStore, source badge.CatalogRepository, ttl time.Duration, log *logger.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = TTLBadgeCatalog
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogCache{
		cache:  cache,
		source: source,
		ttl:    ttl,
		log:    log.With(logger.Component("badge_catalog_cache")),
	}
}

// ListBadges implements badge.CatalogRepository.
func (c *CatalogCache) ListBadges(ctx context.Context) ([]badge.Badge, error) {
	var cached []badge.Badge
	err := c.cache.Get(ctx, KeyBadgeCatalog, &cached)
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, ErrCacheMiss):
	default:
		c.log.Warn("catalog cache read failed", logger.Err(err))
	}

	badges, err := c.source.ListBadges(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, KeyBadgeCatalog, badges, c.ttl); err != nil {
		c.log.Warn("catalog cache write failed", logger.Err(err))
	}

	return badges, nil
}

// Invalidate drops the cached catalog.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, KeyBadgeCatalog)
}
