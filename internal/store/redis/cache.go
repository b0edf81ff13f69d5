package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultTTL          = 30 * time.Minute
	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
)

// CacheConfig configures the Redis bar cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // lifetime of a cached series; 0 uses 30m
}

// CachedProvider is a read-through cache in front of another
// model.HistoryProvider. Series are stored as JSON under
// "bars:{SYMBOL}:{period}". Redis trouble never fails a request: the breaker
// opens and calls go straight to the wrapped provider.
type CachedProvider struct {
	client  *goredis.Client
	next    model.HistoryProvider
	ttl     time.Duration
	breaker *CircuitBreaker
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewCachedProvider connects to Redis, pings it, and wraps next.
func NewCachedProvider(cfg CacheConfig, next model.HistoryProvider, m *metrics.Metrics, log *slog.Logger) (*CachedProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("redis bar cache connected", "addr", cfg.Addr, "ttl", ttlOrDefault(cfg.TTL).String())
	return NewCachedProviderWithClient(client, next, cfg.TTL, m, log), nil
}

// NewCachedProviderWithClient wraps next with an existing client.
func NewCachedProviderWithClient(client *goredis.Client, next model.HistoryProvider, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *CachedProvider {
	if log == nil {
		log = slog.Default()
	}
	cb := NewCircuitBreaker(defaultMaxFailures, defaultResetTimeout)
	cb.Ignore = func(err error) bool { return errors.Is(err, goredis.Nil) }
	cb.OnStateChange = func(from, to State) {
		m.BreakerState(int(to), to == StateOpen && from == StateClosed)
		log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}

	return &CachedProvider{
		client:  client,
		next:    next,
		ttl:     ttlOrDefault(ttl),
		breaker: cb,
		metrics: m,
		log:     log,
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

// Client returns the underlying Redis client for health checks.
func (c *CachedProvider) Client() *goredis.Client { return c.client }

// Breaker exposes the breaker state for diagnostics.
func (c *CachedProvider) Breaker() *CircuitBreaker { return c.breaker }

// CacheKey returns the Redis key for a symbol/period series.
func CacheKey(symbol, period string) string {
	return fmt.Sprintf("bars:%s:%s", strings.ToUpper(strings.TrimSpace(symbol)), period)
}

// History serves from Redis when possible and fills the cache on a miss.
// Empty series are not cached so a later import is picked up immediately.
func (c *CachedProvider) History(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	key := CacheKey(symbol, period)

	if bars, ok := c.lookup(ctx, key); ok {
		return bars, nil
	}

	bars, err := c.next.History(ctx, symbol, period)
	if err != nil || len(bars) == 0 {
		return bars, err
	}
	c.store(ctx, key, bars)
	return bars, nil
}

func (c *CachedProvider) lookup(ctx context.Context, key string) ([]model.Bar, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key).Bytes()
		return err
	})
	switch {
	case errors.Is(err, goredis.Nil):
		c.metrics.CacheResult(false, nil)
		return nil, false
	case err != nil:
		c.metrics.CacheResult(false, err)
		c.log.DebugContext(ctx, "bar cache read failed", append(logger.LogWithRun(ctx), "key", key, "error", err)...)
		return nil, false
	}

	var bars []model.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		c.metrics.CacheResult(false, err)
		c.log.WarnContext(ctx, "bar cache entry corrupt", append(logger.LogWithRun(ctx), "key", key, "error", err)...)
		return nil, false
	}
	c.metrics.CacheResult(true, nil)
	return bars, true
}

func (c *CachedProvider) store(ctx context.Context, key string, bars []model.Bar) {
	data, err := json.Marshal(bars)
	if err != nil {
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
	if err != nil {
		c.log.DebugContext(ctx, "bar cache write failed", append(logger.LogWithRun(ctx), "key", key, "error", err)...)
	}
}

// Invalidate drops every cached period of symbol, e.g. after an import.
func (c *CachedProvider) Invalidate(ctx context.Context, symbol string) error {
	pattern := CacheKey(symbol, "*")
	return c.breaker.Execute(func() error {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		return c.client.Del(ctx, keys...).Err()
	})
}

// Close closes the Redis client.
func (c *CachedProvider) Close() error {
	return c.client.Close()
}
