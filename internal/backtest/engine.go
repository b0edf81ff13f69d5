package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
)

// DefaultCommission is the flat per-event commission rate.
const DefaultCommission = 0.0025

// DefaultTopK is how many ranked results an optimization keeps.
const DefaultTopK = 5

// Engine runs strategies over in-memory bar series. It holds no per-run
// state, so one Engine serves concurrent callers.
type Engine struct {
	catalog    *Catalog
	commission float64
	workers    int
	topK       int
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatalog replaces the built-in strategy catalog.
func WithCatalog(c *Catalog) Option { return func(e *Engine) { e.catalog = c } }

// WithCommission sets the commission rate charged per entry/exit bar.
func WithCommission(rate float64) Option { return func(e *Engine) { e.commission = rate } }

// WithWorkers bounds the goroutines used by Optimize and ComputeWeights.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// NewEngine creates an engine with the built-in catalog, the default
// commission and four workers.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		catalog:    DefaultCatalog(),
		commission: DefaultCommission,
		workers:    4,
		topK:       DefaultTopK,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Catalog returns the engine's strategy catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Commission returns the configured commission rate.
func (e *Engine) Commission() float64 { return e.commission }

// Backtest runs one strategy over bars. overrides replace the strategy's
// default parameters key by key; nil runs the defaults.
func (e *Engine) Backtest(bars []model.Bar, name string, overrides ParameterSet) (*Report, error) {
	start := time.Now()
	rep, err := e.backtest(bars, name, overrides)
	outcome := "ok"
	if err != nil {
		outcome = Kind(err)
	}
	e.metrics.ObserveBacktest(name, outcome, time.Since(start))
	return rep, err
}

func (e *Engine) backtest(bars []model.Bar, name string, overrides ParameterSet) (*Report, error) {
	params, err := e.catalog.Resolve(name, overrides)
	if err != nil {
		return nil, err
	}
	return e.run(bars, name, params)
}

// run is the full pipeline for an already-resolved parameter set.
func (e *Engine) run(bars []model.Bar, name string, params ParameterSet) (*Report, error) {
	sig, err := e.catalog.GenerateSignals(bars, name, params)
	if err != nil {
		return nil, err
	}
	rep, err := Evaluate(bars, sig, e.commission)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	rep.Strategy = name
	rep.Parameters = params
	return rep, nil
}
