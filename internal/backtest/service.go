package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/model"
)

// Service fronts the engine with a history source. It is the entry point
// used by the HTTP gateway and the CLI.
type Service struct {
	history model.HistoryProvider
	engine  *Engine
	now     func() time.Time
	log     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the clock used for LastUpdated.
func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

// WithServiceLogger sets the structured logger.
func WithServiceLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.log = l } }

// NewService wires a history provider to an engine.
func NewService(history model.HistoryProvider, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		history: history,
		engine:  engine,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine { return s.engine }

// RunBacktest loads symbol's history for period and runs one strategy.
// params override the strategy defaults key by key.
func (s *Service) RunBacktest(ctx context.Context, symbol, strategy, period string, params ParameterSet) (*Report, error) {
	ctx = logger.EnsureRunID(ctx, symbol)
	if _, err := s.engine.catalog.Lookup(strategy); err != nil {
		return nil, err
	}
	bars, err := s.load(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	rep, err := s.engine.Backtest(bars, strategy, params)
	if err != nil {
		s.log.WarnContext(ctx, "backtest failed",
			append(logger.LogWithRun(ctx), "symbol", symbol, "strategy", strategy, "kind", Kind(err), "error", err)...)
		return nil, err
	}
	rep.Symbol = symbol
	rep.Period = period
	rep.LastUpdated = s.now().UTC()

	s.log.InfoContext(ctx, "backtest complete",
		append(logger.LogWithRun(ctx),
			"symbol", symbol,
			"strategy", strategy,
			"bars", len(bars),
			"trades", rep.TotalTrades,
			"total_return_pct", rep.TotalReturnPct)...)
	return rep, nil
}

// OptimizeStrategy loads history once and grid-searches the strategy.
// progress may be nil.
func (s *Service) OptimizeStrategy(ctx context.Context, symbol, strategy, period string, grid Grid, progress ProgressFunc) (*OptimizationReport, error) {
	ctx = logger.EnsureRunID(ctx, symbol)
	if _, err := s.engine.catalog.Lookup(strategy); err != nil {
		return nil, err
	}
	bars, err := s.load(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	rep, err := s.engine.Optimize(ctx, bars, strategy, grid, progress)
	if err != nil {
		return nil, err
	}
	rep.Symbol = symbol
	rep.Period = period
	rep.LastUpdated = s.now().UTC()
	return rep, nil
}

// CalculateStrategyWeights loads history once and allocates across
// strategies. An empty list weighs every catalog strategy.
func (s *Service) CalculateStrategyWeights(ctx context.Context, symbol, period string, strategies []string) (*WeightReport, error) {
	ctx = logger.EnsureRunID(ctx, symbol)
	bars, err := s.load(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	rep, err := s.engine.ComputeWeights(ctx, bars, strategies)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rep.Symbol = symbol
	rep.Period = period
	rep.LastUpdated = now
	for _, r := range rep.StrategyResults {
		r.Report.Symbol = symbol
		r.Report.Period = period
		r.Report.LastUpdated = now
	}

	s.log.InfoContext(ctx, "weights calculated",
		append(logger.LogWithRun(ctx), "symbol", symbol, "weights", rep.Weights)...)
	return rep, nil
}

// load fetches bars and turns an empty answer into ErrInsufficientData.
// Provider errors that do not already carry an engine error kind keep their
// own identity and surface as upstream failures.
func (s *Service) load(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInsufficientData)
	}
	bars, err := s.history.History(ctx, symbol, period)
	if err != nil {
		return nil, fmt.Errorf("load %s history (%s): %w", symbol, period, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s over %s", ErrInsufficientData, symbol, period)
	}
	return bars, nil
}
