package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
)

// unreachableClient points at a port nothing listens on, so every command
// fails fast.
func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "bars:AAPL:6m", CacheKey(" aapl ", "6m"))
}

func TestCachedProvider_FallsThroughWhenRedisDown(t *testing.T) {
	want := []model.Bar{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 10}}
	calls := 0
	next := model.HistoryProviderFunc(func(_ context.Context, symbol, period string) ([]model.Bar, error) {
		calls++
		assert.Equal(t, "AAPL", symbol)
		assert.Equal(t, "1y", period)
		return want, nil
	})

	m := metrics.NewMetrics(prometheus.NewRegistry())
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	c := NewCachedProviderWithClient(unreachableClient(), next, time.Minute, m, log)
	defer c.Close()

	for i := 0; i < defaultMaxFailures; i++ {
		got, err := c.History(context.Background(), "AAPL", "1y")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, defaultMaxFailures, calls)
	assert.Equal(t, StateOpen, c.Breaker().CurrentState())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisCircuitBreakerTrips))
	assert.Equal(t, float64(StateOpen), testutil.ToFloat64(m.RedisCircuitBreakerState))
	assert.Greater(t, testutil.ToFloat64(m.CacheErrors), 0.0)

	// With the breaker open the provider still answers.
	got, err := c.History(context.Background(), "AAPL", "1y")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
