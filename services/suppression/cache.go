package suppression

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/mailwarden/internal/cache"
	"github.com/customeros/mailwarden/internal/tracing"
)

// Cache holds suppression answers for the dispatch hot path. Both positive and
// negative answers are cached; a miss means the caller must ask the database.
// Set and Invalidate belong to the write path. Remember stores an answer read from
// the database and never replaces one written in the meantime.
type Cache interface {
	Get(ctx context.Context, email string) (suppressed bool, found bool, err error)
	Set(ctx context.Context, email string, suppressed bool) error
	Remember(ctx context.Context, email string, suppressed bool) error
	Invalidate(ctx context.Context, email string) error
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache stores answers under mailwarden:suppression:<email> for ttl.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(email string) string {
	return cache.Key("suppression", email)
}

func (c *redisCache) Get(ctx context.Context, email string) (bool, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionCache.Get")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	val, err := c.rdb.Get(ctx, cacheKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return false, false, errors.Wrap(err, "suppression cache get")
	}
	return val == "1", true, nil
}

func cacheValue(suppressed bool) string {
	if suppressed {
		return "1"
	}
	return "0"
}

func (c *redisCache) Set(ctx context.Context, email string, suppressed bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionCache.Set")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return errors.Wrap(c.rdb.Set(ctx, cacheKey(email), cacheValue(suppressed), c.ttl).Err(), "suppression cache set")
}

func (c *redisCache) Remember(ctx context.Context, email string, suppressed bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionCache.Remember")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return errors.Wrap(c.rdb.SetNX(ctx, cacheKey(email), cacheValue(suppressed), c.ttl).Err(), "suppression cache setnx")
}

func (c *redisCache) Invalidate(ctx context.Context, email string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionCache.Invalidate")
	defer span.Finish()
	tracing.SetDefaultRedisSpanTags(ctx, span)

	return errors.Wrap(c.rdb.Del(ctx, cacheKey(email)).Err(), "suppression cache delete")
}

type noopCache struct{}

// NewNoopCache disables caching; every lookup goes to the database.
func NewNoopCache() Cache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (bool, bool, error) { return false, false, nil }
func (noopCache) Set(context.Context, string, bool) error         { return nil }
func (noopCache) Remember(context.Context, string, bool) error    { return nil }
func (noopCache) Invalidate(context.Context, string) error        { return nil }
