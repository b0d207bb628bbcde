package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tradeledger/internal/config"
	"tradeledger/internal/handler"
	"tradeledger/internal/quote"
	"tradeledger/internal/router"
	"tradeledger/internal/store"
	"tradeledger/internal/trade"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// New wires config into a ready http.Server. The returned cleanup closes the
// database pool and the redis client.
func New(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*http.Server, func(), error) {
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	finnhub := quote.NewFinnhub(cfg.FinnhubURL, cfg.FinnhubKey, logger)
	cached := quote.NewCache(finnhub, rdb, cfg.QuoteCacheTTL, logger)

	// Trades quote the provider directly; only the read-side quote endpoint
	// goes through the cache.
	trades := trade.NewService(finnhub, pg, logger)

	h := handler.New(trades, pg, cached, loc, cfg.StartingBalance, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router.Setup(h, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
	cleanup := func() {
		pg.Close()
		rdb.Close()
	}
	return srv, cleanup, nil
}
