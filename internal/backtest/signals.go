package backtest

import (
	"fmt"
	"math"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// Signal is the per-bar directional bias of a strategy.
type Signal int8

const (
	Short   Signal = -1
	Neutral Signal = 0
	Long    Signal = 1
)

// Signals is a signal sequence aligned one-to-one with a bar series.
// Values before Start are warm-up placeholders: the indicator window was not
// yet satisfied there and those bars take no part in simulation.
type Signals struct {
	Values []Signal
	Start  int
}

// Len returns the number of bars the sequence covers.
func (s Signals) Len() int { return len(s.Values) }

// Defined reports whether bar i carries a real signal.
func (s Signals) Defined(i int) bool { return i >= s.Start && i < len(s.Values) }

// check fails with ErrComputation unless the sequence covers exactly n bars
// and Start lies inside it.
func (s Signals) check(n int) error {
	if len(s.Values) != n {
		return fmt.Errorf("%w: %d signals for %d bars", ErrComputation, len(s.Values), n)
	}
	if s.Start < 0 || s.Start > max(n-1, 0) {
		return fmt.Errorf("%w: signal start %d outside %d bars", ErrComputation, s.Start, n)
	}
	return nil
}

// rule is a compiled strategy with validated parameters.
type rule interface {
	// warmup is the number of bars consumed before the first defined signal.
	warmup() int
	// apply writes signals for bars [warmup()-1, len(closes)) into out.
	apply(closes []float64, out []Signal)
}

// GenerateSignals runs the named strategy of the built-in catalog.
func GenerateSignals(bars []model.Bar, name string, params ParameterSet) (Signals, error) {
	return DefaultCatalog().GenerateSignals(bars, name, params)
}

// GenerateSignals converts bars into a signal sequence for the named
// strategy. params must carry every parameter the strategy requires; use
// Resolve to fill in defaults first.
func (c *Catalog) GenerateSignals(bars []model.Bar, name string, params ParameterSet) (Signals, error) {
	s, err := c.Lookup(name)
	if err != nil {
		return Signals{}, err
	}
	r, err := s.compile(params)
	if err != nil {
		return Signals{}, err
	}
	closes, err := checkCloses(bars)
	if err != nil {
		return Signals{}, err
	}
	need := r.warmup()
	if len(closes) < need {
		return Signals{}, fmt.Errorf("%w: %s needs %d bars, got %d", ErrInsufficientData, name, need, len(closes))
	}

	out := make([]Signal, len(closes))
	r.apply(closes, out)
	return Signals{Values: out, Start: need - 1}, nil
}

// checkCloses extracts close prices, rejecting empty series and prices the
// return math cannot handle.
func checkCloses(bars []model.Bar) ([]float64, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty price series", ErrInsufficientData)
	}
	closes := model.Closes(bars)
	for i, c := range closes {
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			return nil, fmt.Errorf("%w: invalid close %v on %s", ErrComputation, c, bars[i].Day())
		}
	}
	return closes, nil
}

// MaxWindow caps every window or period parameter, far beyond any daily
// history a provider returns.
const MaxWindow = 100000

func windowParam(p ParameterSet, key string, min int) (int, error) {
	v, err := p.Int(key)
	if err != nil {
		return 0, err
	}
	if v < min {
		return 0, fmt.Errorf("%w: %s must be >= %d, got %d", ErrConstraintViolation, key, min, v)
	}
	if v > MaxWindow {
		return 0, fmt.Errorf("%w: %s must be <= %d, got %d", ErrConstraintViolation, key, MaxWindow, v)
	}
	return v, nil
}

// ── sma_cross ──

type smaCross struct{ short, long int }

func compileSMACross(p ParameterSet) (rule, error) {
	short, err := windowParam(p, "short_window", 1)
	if err != nil {
		return nil, err
	}
	long, err := windowParam(p, "long_window", 1)
	if err != nil {
		return nil, err
	}
	if short >= long {
		return nil, fmt.Errorf("%w: short_window (%d) must be < long_window (%d)", ErrConstraintViolation, short, long)
	}
	return smaCross{short: short, long: long}, nil
}

func (r smaCross) warmup() int { return r.long }

func (r smaCross) apply(closes []float64, out []Signal) {
	fast, slow := indicator.NewSMA(r.short), indicator.NewSMA(r.long)
	for i, c := range closes {
		fast.Update(c)
		slow.Update(c)
		if !slow.Ready() {
			continue
		}
		if fast.Value() > slow.Value() {
			out[i] = Long
		} else {
			out[i] = Short
		}
	}
}

// ── bollinger ──

type bollinger struct {
	window int
	numStd float64
}

func compileBollinger(p ParameterSet) (rule, error) {
	window, err := windowParam(p, "window", 2)
	if err != nil {
		return nil, err
	}
	k, err := p.Float("num_std")
	if err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: num_std must be >= 0, got %v", ErrConstraintViolation, k)
	}
	return bollinger{window: window, numStd: k}, nil
}

func (r bollinger) warmup() int { return r.window }

func (r bollinger) apply(closes []float64, out []Signal) {
	mid, sd := indicator.NewSMA(r.window), indicator.NewStdDev(r.window)
	for i, c := range closes {
		mid.Update(c)
		sd.Update(c)
		if !mid.Ready() || !sd.Ready() {
			continue
		}
		width := r.numStd * sd.Value()
		switch {
		case c < mid.Value()-width:
			out[i] = Long
		case c > mid.Value()+width:
			out[i] = Short
		default:
			out[i] = Neutral
		}
	}
}

// ── macd ──

type macd struct{ fast, slow, signal int }

func compileMACD(p ParameterSet) (rule, error) {
	fast, err := windowParam(p, "fast_period", 1)
	if err != nil {
		return nil, err
	}
	slow, err := windowParam(p, "slow_period", 1)
	if err != nil {
		return nil, err
	}
	signal, err := windowParam(p, "signal_period", 1)
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast_period (%d) must be < slow_period (%d)", ErrConstraintViolation, fast, slow)
	}
	return macd{fast: fast, slow: slow, signal: signal}, nil
}

// The slow EMA needs slow bars; the signal line then needs signal MACD
// values, the first of which lands on the slow EMA's first ready bar.
func (r macd) warmup() int { return r.slow + r.signal - 1 }

func (r macd) apply(closes []float64, out []Signal) {
	fast, slow, line := indicator.NewEMA(r.fast), indicator.NewEMA(r.slow), indicator.NewEMA(r.signal)
	first := r.warmup() - 1
	for i, c := range closes {
		fast.Update(c)
		slow.Update(c)
		m := fast.Value() - slow.Value()
		line.Update(m)
		if i < first {
			continue
		}
		if m > line.Value() {
			out[i] = Long
		} else {
			out[i] = Short
		}
	}
}

// ── rsi ──

type rsiRule struct {
	period               int
	overbought, oversold float64
}

func compileRSI(p ParameterSet) (rule, error) {
	period, err := windowParam(p, "period", 1)
	if err != nil {
		return nil, err
	}
	ob, err := p.Float("overbought")
	if err != nil {
		return nil, err
	}
	os, err := p.Float("oversold")
	if err != nil {
		return nil, err
	}
	if os < 0 || ob > 100 || os >= ob {
		return nil, fmt.Errorf("%w: need 0 <= oversold (%v) < overbought (%v) <= 100", ErrConstraintViolation, os, ob)
	}
	return rsiRule{period: period, overbought: ob, oversold: os}, nil
}

func (r rsiRule) warmup() int { return r.period + 1 }

func (r rsiRule) apply(closes []float64, out []Signal) {
	rsi := indicator.NewRSI(r.period)
	for i, c := range closes {
		rsi.Update(c)
		if !rsi.Ready() {
			continue
		}
		switch v := rsi.Value(); {
		case v < r.oversold:
			out[i] = Long
		case v > r.overbought:
			out[i] = Short
		default:
			out[i] = Neutral
		}
	}
}
