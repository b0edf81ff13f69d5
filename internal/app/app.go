// Package app assembles the backtest service from configuration. Both the
// CLI and the HTTP gateway start here.
package app

import (
	"fmt"
	"log/slog"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/notification"
	"trading-backtestv1/internal/provider"

	"github.com/prometheus/client_golang/prometheus"
)

// App is a wired service with the resources it owns.
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Sources *provider.Sources
	Engine  *backtest.Engine
	Service *backtest.Service
	Notify  notification.Notifier
}

// New wires the service from cfg. A nil reg registers collectors on the
// default Prometheus registerer.
func New(cfg *config.Config, reg prometheus.Registerer, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	m := metrics.NewMetrics(reg)

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("strategy catalog: %w", err)
	}

	sources, err := provider.FromConfig(cfg, m, log)
	if err != nil {
		return nil, fmt.Errorf("history source: %w", err)
	}

	engine := backtest.NewEngine(
		backtest.WithCatalog(catalog),
		backtest.WithCommission(cfg.Engine.Commission),
		backtest.WithWorkers(cfg.Engine.Workers),
		backtest.WithMetrics(m),
		backtest.WithLogger(log),
	)
	svc := backtest.NewService(sources.History, engine, backtest.WithServiceLogger(log))

	log.Info("backtest service ready",
		"source", cfg.Data.Source,
		"commission", cfg.Engine.Commission,
		"workers", cfg.Engine.Workers,
		"strategies", catalog.Names())

	notifier := notification.New(notification.Config{
		WebhookURL:     cfg.Notify.WebhookURL,
		TelegramToken:  cfg.Notify.TelegramToken,
		TelegramChatID: cfg.Notify.TelegramChatID,
	}, log)

	return &App{
		Config:  cfg,
		Metrics: m,
		Sources: sources,
		Engine:  engine,
		Service: svc,
		Notify:  notifier,
	}, nil
}

// Close releases the history sources.
func (a *App) Close() error {
	return a.Sources.Close()
}
