package source

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/metrics"
	"github.com/sells-group/geocover/internal/model"
)

// DefaultCacheTTL keeps cached pages shorter than the default schedule
// interval so each scheduled run sees fresh availability.
const DefaultCacheTTL = 5 * time.Minute

// Redis is the subset of *redis.Client used by Cache.
type Redis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache serves region pages from redis and stores successful upstream
// responses. Redis failures are logged and bypassed.
type Cache struct {
	next   RegionQuery
	rdb    Redis
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewCache wraps next with a redis cache.
func NewCache(next RegionQuery, rdb Redis, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		prefix: "geocover:region:",
		log:    zap.L().With(zap.String("component", "source.cache")),
	}
}

// Key returns the redis key for r.
func (c *Cache) Key(r geo.Rect) string {
	return c.prefix + r.String()
}

// Fetch implements RegionQuery.
func (c *Cache) Fetch(ctx context.Context, r geo.Rect) (*model.Response, error) {
	key := c.Key(r)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var resp model.Response
		if jerr := json.Unmarshal(raw, &resp); jerr == nil {
			metrics.CacheHitsTotal.Inc()
			return &resp, nil
		}
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheMissesTotal.Inc()

	resp, err := c.next.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}

	if body, jerr := json.Marshal(resp); jerr == nil {
		if serr := c.rdb.Set(ctx, key, body, c.ttl).Err(); serr != nil {
			c.log.Warn("cache write failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return resp, nil
}
