package quote

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cache decorates a Source with a short-TTL Redis cache. It serves the
// public quote endpoint, which hammers the same symbols; the trade pipeline
// bypasses it and quotes the provider directly so executions never settle on
// a cached price. Redis failures degrade to the underlying source.
type Cache struct {
	src    Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCache(src Source, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{src: src, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Cache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := "quote:" + symbol
	if v, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if price, perr := decimal.NewFromString(v); perr == nil {
			return price, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
	}

	price, err := c.src.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.rdb.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("quote cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return price, nil
}
