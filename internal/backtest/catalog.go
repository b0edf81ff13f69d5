package backtest

import (
	"fmt"
	"sort"
)

// Strategy names understood by the built-in catalog.
const (
	StrategySMACross  = "sma_cross"
	StrategyBollinger = "bollinger"
	StrategyMACD      = "macd"
	StrategyRSI       = "rsi"
)

// Strategy describes one named signal rule: its parameter keys in canonical
// order, default parameters and default optimization grid.
type Strategy struct {
	name     string
	keys     []string
	defaults ParameterSet
	grid     Grid
	compile  func(ParameterSet) (rule, error)
}

func (s *Strategy) Name() string { return s.name }

// Keys returns the parameter names in canonical order.
func (s *Strategy) Keys() []string { return append([]string(nil), s.keys...) }

// Defaults returns a copy of the default parameter set.
func (s *Strategy) Defaults() ParameterSet { return s.defaults.Clone() }

// Grid returns a copy of the default optimization grid.
func (s *Strategy) Grid() Grid { return s.grid.Clone() }

// Validate checks params against the strategy's constraints without
// generating signals.
func (s *Strategy) Validate(params ParameterSet) error {
	_, err := s.compile(params)
	return err
}

// Warmup returns how many bars are needed before the first defined signal.
func (s *Strategy) Warmup(params ParameterSet) (int, error) {
	r, err := s.compile(params)
	if err != nil {
		return 0, err
	}
	return r.warmup(), nil
}

// Catalog is an immutable set of strategies. Overrides produce a new Catalog,
// so one instance can be shared by concurrent runs.
type Catalog struct {
	strategies map[string]*Strategy
	order      []string
}

var builtin = newBuiltinCatalog()

// DefaultCatalog returns the built-in strategies with their stock defaults.
func DefaultCatalog() *Catalog { return builtin }

func newBuiltinCatalog() *Catalog {
	list := []*Strategy{
		{
			name:     StrategySMACross,
			keys:     []string{"short_window", "long_window"},
			defaults: ParameterSet{"short_window": 20, "long_window": 50},
			grid: Grid{
				"short_window": {5, 10, 15, 20, 25},
				"long_window":  {30, 40, 50, 60, 70},
			},
			compile: compileSMACross,
		},
		{
			name:     StrategyBollinger,
			keys:     []string{"window", "num_std"},
			defaults: ParameterSet{"window": 20, "num_std": 2.0},
			grid: Grid{
				"window":  {10, 15, 20, 25, 30},
				"num_std": {1.5, 2.0, 2.5, 3.0},
			},
			compile: compileBollinger,
		},
		{
			name:     StrategyMACD,
			keys:     []string{"fast_period", "slow_period", "signal_period"},
			defaults: ParameterSet{"fast_period": 12, "slow_period": 26, "signal_period": 9},
			grid: Grid{
				"fast_period":   {8, 10, 12, 14, 16},
				"slow_period":   {20, 24, 26, 28, 30},
				"signal_period": {7, 8, 9, 10, 11},
			},
			compile: compileMACD,
		},
		{
			name:     StrategyRSI,
			keys:     []string{"period", "overbought", "oversold"},
			defaults: ParameterSet{"period": 14, "overbought": 70, "oversold": 30},
			grid: Grid{
				"period":     {7, 10, 14, 20, 25},
				"overbought": {65, 70, 75, 80},
				"oversold":   {20, 25, 30, 35},
			},
			compile: compileRSI,
		},
	}

	c := &Catalog{strategies: make(map[string]*Strategy, len(list))}
	for _, s := range list {
		c.strategies[s.name] = s
		c.order = append(c.order, s.name)
	}
	return c
}

// Names returns the strategy names in catalog order.
func (c *Catalog) Names() []string { return append([]string(nil), c.order...) }

// Lookup returns the named strategy or ErrUnsupportedStrategy.
func (c *Catalog) Lookup(name string) (*Strategy, error) {
	s, ok := c.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, name)
	}
	return s, nil
}

// Resolve merges overrides over the strategy's defaults at key granularity.
func (c *Catalog) Resolve(name string, overrides ParameterSet) (ParameterSet, error) {
	s, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.defaults.Merge(overrides), nil
}

// ResolveGrid merges a caller grid over the strategy's default grid at key
// granularity and returns the merged grid with its iteration key order.
func (c *Catalog) ResolveGrid(name string, overrides Grid) (Grid, []string, error) {
	s, err := c.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	g := s.grid.Clone()
	for k, vals := range overrides {
		g[k] = append([]float64(nil), vals...)
	}
	return g, g.orderedKeys(s.keys), nil
}

// Override replaces part of a strategy's defaults and grid. Nil fields keep
// the existing values; non-nil maps are merged at key granularity.
type Override struct {
	Defaults ParameterSet `yaml:"defaults" json:"defaults"`
	Grid     Grid         `yaml:"grid" json:"grid"`
}

// WithOverrides returns a new Catalog with overrides applied. The receiver is
// left untouched. Unknown strategy names and defaults that violate a strategy
// constraint are rejected.
func (c *Catalog) WithOverrides(overrides map[string]Override) (*Catalog, error) {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &Catalog{
		strategies: make(map[string]*Strategy, len(c.strategies)),
		order:      append([]string(nil), c.order...),
	}
	for name, s := range c.strategies {
		cp := *s
		out.strategies[name] = &cp
	}

	for _, name := range names {
		s, ok := out.strategies[name]
		if !ok {
			return nil, fmt.Errorf("%w: override for %q", ErrUnsupportedStrategy, name)
		}
		o := overrides[name]
		s.defaults = s.defaults.Merge(o.Defaults)
		if err := s.Validate(s.defaults); err != nil {
			return nil, fmt.Errorf("defaults for %s: %w", name, err)
		}
		if len(o.Grid) > 0 {
			g := s.grid.Clone()
			for k, vals := range o.Grid {
				if len(vals) == 0 {
					return nil, fmt.Errorf("%w: grid for %s.%s is empty", ErrConstraintViolation, name, k)
				}
				g[k] = append([]float64(nil), vals...)
			}
			s.grid = g
		}
	}
	return out, nil
}
