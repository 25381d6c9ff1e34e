package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/talmeida/linktrace/internal/app/model"
	"go.uber.org/zap"
)

const linkCacheKeyPrefix = "link:"

// LinkCache keeps link records in Redis as JSON documents so the redirect
// hot path usually skips Postgres. Cached values may predate this service
// (the legacy system wrote the old document shape), so reads go through the
// document codec which normalizes both generations.
type LinkCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewLinkCache builds a cache. A nil client yields a no-op cache.
func NewLinkCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *LinkCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LinkCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns the cached link, or nil on miss or any cache error.
func (c *LinkCache) Get(ctx context.Context, slug string) *model.Link {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, linkCacheKeyPrefix+slug).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("link cache read failed", zap.String("slug", slug), zap.Error(err))
		}
		return nil
	}
	link, err := model.DecodeLinkDocument(raw)
	if err != nil {
		c.logger.Warn("link cache entry undecodable", zap.String("slug", slug), zap.Error(err))
		return nil
	}
	return link
}

// Put stores the link in the current document shape. Failures are logged and
// ignored; the cache is an optimization, never a source of truth.
func (c *LinkCache) Put(ctx context.Context, link *model.Link) {
	if c == nil || c.rdb == nil || link == nil {
		return
	}
	data, err := model.EncodeLinkDocument(link)
	if err != nil {
		c.logger.Warn("link cache encode failed", zap.String("slug", link.Slug), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, linkCacheKeyPrefix+link.Slug, data, c.ttl).Err(); err != nil {
		c.logger.Warn("link cache write failed", zap.String("slug", link.Slug), zap.Error(err))
	}
}

// Invalidate drops the cached record after updates or deletion.
func (c *LinkCache) Invalidate(ctx context.Context, slug string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, linkCacheKeyPrefix+slug).Err(); err != nil {
		c.logger.Warn("link cache invalidate failed", zap.String("slug", slug), zap.Error(err))
	}
}
