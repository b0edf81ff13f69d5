// cmd/api_gateway serves the backtest engine over HTTP: JSON endpoints for
// backtests, optimization and strategy weights, a websocket that streams
// optimizer progress, plus /healthz and /metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/app"
	"trading-backtestv1/internal/gateway"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.Init("api_gateway", logger.ParseLevel(cfg.Server.LogLevel))
	log.Info("starting", "addr", cfg.Server.HTTPAddr)

	a, err := app.New(cfg, nil, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := metrics.NewHealthStatus(cfg.Data.Source)
	var (
		rdb   *goredis.Client
		sqlDB *sql.DB
	)
	if a.Sources.Cache != nil {
		rdb = a.Sources.Cache.Client()
	}
	if a.Sources.SQLite != nil {
		sqlDB = a.Sources.SQLite.DB()
	}
	health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)

	srv := gateway.NewServer(a.Service, gateway.Options{
		OptimizeTimeout: cfg.Engine.OptimizeTimeout,
		Metrics:         a.Metrics,
		Health:          health,
		Notifier:        a.Notify,
		Logger:          log,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server error", "error", err)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
}
