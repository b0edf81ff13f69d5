// Package provider builds the price-history source used by the engine:
// the local SQLite store or an upstream API, optionally behind the Redis
// bar cache.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/store/redis"
	"trading-backtestv1/internal/store/sqlite"
)

// instrumented records fetch latency and failures per source.
type instrumented struct {
	source  string
	next    model.HistoryProvider
	metrics *metrics.Metrics
}

// Instrument wraps p so every History call is measured under source.
func Instrument(source string, p model.HistoryProvider, m *metrics.Metrics) model.HistoryProvider {
	return &instrumented{source: source, next: p, metrics: m}
}

func (i *instrumented) History(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	start := time.Now()
	bars, err := i.next.History(ctx, symbol, period)
	i.metrics.ObserveHistory(i.source, time.Since(start), err)
	return bars, err
}

// Sources is the assembled history stack plus the handles needed for
// health checks and shutdown.
type Sources struct {
	History model.HistoryProvider
	SQLite  *sqlite.Reader         // set when DATA_SOURCE=sqlite
	Cache   *redis.CachedProvider // set when REDIS_ADDR is configured and reachable
}

// FromConfig builds the configured history source. An unreachable Redis is
// logged and skipped; the engine then reads the source directly.
func FromConfig(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (*Sources, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sources{}

	var base model.HistoryProvider
	switch cfg.Data.Source {
	case config.SourceSQLite:
		r, err := sqlite.NewReader(cfg.Data.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.SQLite = r
		base = r
	case config.SourceAlphaVantage:
		base = NewAlphaVantage(AlphaVantageConfig{
			BaseURL: cfg.Data.AlphaVantageURL,
			APIKey:  cfg.Data.AlphaVantageKey,
			Timeout: cfg.Data.Timeout,
			Retries: cfg.Data.Retries,
		}, log)
	case config.SourceYahoo:
		base = NewYahoo()
	case config.SourceAlpaca:
		base = NewAlpaca(AlpacaConfig{
			APIKey:    cfg.Data.AlpacaKey,
			APISecret: cfg.Data.AlpacaSecret,
			BaseURL:   cfg.Data.AlpacaURL,
			Feed:      cfg.Data.AlpacaFeed,
		})
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
	s.History = Instrument(cfg.Data.Source, base, m)

	if cfg.Cache.RedisAddr != "" {
		c, err := redis.NewCachedProvider(redis.CacheConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		}, s.History, m, log)
		if err != nil {
			log.Warn("bar cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			s.Cache = c
			s.History = c
		}
	}

	log.Info("history source ready", "source", cfg.Data.Source, "cache", s.Cache != nil)
	return s, nil
}

// Close releases the store and cache connections.
func (s *Sources) Close() error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.SQLite != nil {
		errs = append(errs, s.SQLite.Close())
	}
	return errors.Join(errs...)
}
