package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the backtest engine.
// A nil *Metrics is valid and records nothing, so library callers and tests
// can skip wiring a registry.
type Metrics struct {
	// Engine runs
	BacktestsTotal *prometheus.CounterVec   // labels: strategy, outcome
	BacktestDur    *prometheus.HistogramVec // labels: strategy

	// Optimizer
	OptimizeRuns        *prometheus.CounterVec // labels: strategy, partial
	CombinationsTotal   *prometheus.CounterVec // labels: strategy, outcome=ok|skipped
	OptimizeDur         prometheus.Histogram
	OptimizeWorkersBusy prometheus.Gauge

	// Weighting
	WeightRuns       prometheus.Counter
	StrategiesFailed *prometheus.CounterVec // labels: strategy

	// Data path
	HistoryFetchDur *prometheus.HistogramVec // labels: source
	HistoryErrors   *prometheus.CounterVec   // labels: source
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheErrors     prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Gateway
	HTTPRequests *prometheus.CounterVec // labels: route, code
	WSClients    prometheus.Gauge
}

// NewMetrics creates all collectors and registers them with reg.
// A nil reg registers with the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Backtest runs by strategy and outcome (ok or error kind)",
		}, []string{"strategy", "outcome"}),
		BacktestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Time to simulate and evaluate one strategy run",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"strategy"}),
		OptimizeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_optimize_runs_total",
			Help: "Grid-search runs by strategy and whether they were cut short",
		}, []string{"strategy", "partial"}),
		CombinationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_optimize_combinations_total",
			Help: "Parameter combinations processed by the optimizer",
		}, []string{"strategy", "outcome"}),
		OptimizeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_optimize_duration_seconds",
			Help:    "Wall time of one grid search",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		OptimizeWorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_optimize_workers_busy",
			Help: "Optimizer workers currently evaluating a combination",
		}),
		WeightRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_weight_runs_total",
			Help: "Strategy weighting runs",
		}),
		StrategiesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_weight_strategy_failures_total",
			Help: "Strategies excluded from weighting because evaluation failed",
		}, []string{"strategy"}),
		HistoryFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtest_history_fetch_duration_seconds",
			Help:    "Time to load a price history from its source",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
		}, []string{"source"}),
		HistoryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_history_errors_total",
			Help: "Failed history loads by source",
		}, []string{"source"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_bar_cache_hits_total",
			Help: "Bar series served from Redis",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_bar_cache_misses_total",
			Help: "Bar series not found in Redis",
		}),
		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_bar_cache_errors_total",
			Help: "Redis cache operations that failed or were rejected by the breaker",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state: 0=closed, 1=open, 2=half-open",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_ws_clients",
			Help: "Connected optimizer progress websocket clients",
		}),
	}

	reg.MustRegister(
		m.BacktestsTotal,
		m.BacktestDur,
		m.OptimizeRuns,
		m.CombinationsTotal,
		m.OptimizeDur,
		m.OptimizeWorkersBusy,
		m.WeightRuns,
		m.StrategiesFailed,
		m.HistoryFetchDur,
		m.HistoryErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CacheErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.HTTPRequests,
		m.WSClients,
	)

	return m
}

// ObserveBacktest records one strategy run. outcome is "ok" or an error kind.
func (m *Metrics) ObserveBacktest(strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BacktestsTotal.WithLabelValues(strategy, outcome).Inc()
	m.BacktestDur.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveCombination records one optimizer combination.
func (m *Metrics) ObserveCombination(strategy string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "skipped"
	}
	m.CombinationsTotal.WithLabelValues(strategy, outcome).Inc()
}

// WorkerBusy moves the busy-worker gauge by delta.
func (m *Metrics) WorkerBusy(delta float64) {
	if m == nil {
		return
	}
	m.OptimizeWorkersBusy.Add(delta)
}

// ObserveOptimize records a finished grid search.
func (m *Metrics) ObserveOptimize(strategy string, partial bool, d time.Duration) {
	if m == nil {
		return
	}
	p := "false"
	if partial {
		p = "true"
	}
	m.OptimizeRuns.WithLabelValues(strategy, p).Inc()
	m.OptimizeDur.Observe(d.Seconds())
}

// ObserveWeights records a weighting run and the strategies it excluded.
func (m *Metrics) ObserveWeights(failed []string) {
	if m == nil {
		return
	}
	m.WeightRuns.Inc()
	for _, s := range failed {
		m.StrategiesFailed.WithLabelValues(s).Inc()
	}
}

// ObserveHistory records one history load from source.
func (m *Metrics) ObserveHistory(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.HistoryFetchDur.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.HistoryErrors.WithLabelValues(source).Inc()
	}
}

// CacheResult records a cache lookup: hit, miss, or failure.
func (m *Metrics) CacheResult(hit bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.CacheErrors.Inc()
	case hit:
		m.CacheHits.Inc()
	default:
		m.CacheMisses.Inc()
	}
}

// BreakerState publishes the breaker state; trip marks a closed->open move.
func (m *Metrics) BreakerState(state int, trip bool) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if trip {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// ObserveRequest counts one API request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// WSClient moves the websocket client gauge by delta.
func (m *Metrics) WSClient(delta float64) {
	if m == nil {
		return
	}
	m.WSClients.Add(delta)
}

// HealthStatus tracks the liveness of the engine's storage dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	DataSource     string `json:"data_source"`
	RedisEnabled   bool   `json:"redis_enabled"`
	RedisConnected bool   `json:"redis_connected"`
	SQLiteEnabled  bool   `json:"sqlite_enabled"`
	SQLiteOK       bool   `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a health status for the given data source.
func NewHealthStatus(dataSource string) *HealthStatus {
	return &HealthStatus{
		DataSource: dataSource,
		StartedAt:  time.Now(),
	}
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either client may be nil when that dependency is not configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	check()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The service is degraded when a
// configured dependency is down; an unconfigured one is ignored.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		DataSource      string  `json:"data_source"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		DataSource:      h.DataSource,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(body)
}
