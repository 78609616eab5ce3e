package resolver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

type DestinationResolver interface {
	Resolve(ctx context.Context, raw string) (*models.Destination, error)
}

// CachingResolver memoises successful resolutions in Redis. Cache failures fall
// through to the wrapped resolver.
type CachingResolver struct {
	next   DestinationResolver
	redis  redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachingResolver(next DestinationResolver, redisClient redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachingResolver {
	return &CachingResolver{next: next, redis: redisClient, ttl: ttl, logger: logger.Named("resolver_cache")}
}

func (c *CachingResolver) Resolve(ctx context.Context, raw string) (*models.Destination, error) {
	key := "destination:" + raw

	cached, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var dest models.Destination
		if err := json.Unmarshal(cached, &dest); err == nil {
			return &dest, nil
		}
	} else if err != redis.Nil {
		c.logger.Debug("Destination cache unavailable", zap.Error(err))
	}

	dest, err := c.next.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(dest); err == nil {
		if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Debug("Failed to cache destination", zap.String("destination", raw), zap.Error(err))
		}
	}
	return dest, nil
}
