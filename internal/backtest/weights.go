package backtest

import (
	"context"
	"fmt"
	"math"

	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/model"
)

// Composite score weights.
const (
	scoreReturn   = 1.0
	scoreSharpe   = 20.0
	scoreWinRate  = 0.5
	scoreDrawdown = 0.3
)

// CompositeScore blends return, risk-adjusted return, hit rate and drawdown
// into one number used for allocation.
func CompositeScore(r *Report) float64 {
	return r.TotalReturnPct*scoreReturn +
		r.SharpeRatio*scoreSharpe +
		r.WinRatePct*scoreWinRate +
		math.Max(0, 100-r.MaxDrawdownPct)*scoreDrawdown
}

// ComputeWeights runs each strategy with its default parameters and splits
// a unit allocation in proportion to composite score. An empty list means
// every catalog strategy; duplicates are ignored.
//
// Strategies that fail are left out of both the weights and the
// denominator. If no strategy succeeds the first failure is returned.
func (e *Engine) ComputeWeights(ctx context.Context, bars []model.Bar, strategies []string) (*WeightReport, error) {
	names := dedupe(strategies)
	if len(names) == 0 {
		names = e.catalog.Names()
	}

	reports := make([]*Report, len(names))
	errs := make([]error, len(names))
	completed := parallel(ctx, len(names), e.workers, func(i int) {
		reports[i], errs[i] = e.Backtest(bars, names[i], nil)
	})
	if completed < len(names) {
		return nil, fmt.Errorf("weights interrupted after %d of %d strategies: %w", completed, len(names), ctx.Err())
	}

	var (
		ok       []string
		scores   []float64
		failed   []string
		firstErr error
	)
	for i, name := range names {
		if errs[i] != nil {
			failed = append(failed, name)
			if firstErr == nil {
				firstErr = errs[i]
			}
			e.log.WarnContext(ctx, "strategy excluded from weighting",
				append(logger.LogWithRun(ctx), "strategy", name, "kind", Kind(errs[i]), "error", errs[i])...)
			continue
		}
		ok = append(ok, name)
		scores = append(scores, CompositeScore(reports[i]))
	}
	e.metrics.ObserveWeights(failed)
	if len(ok) == 0 {
		return nil, fmt.Errorf("no strategy could be evaluated: %w", firstErr)
	}

	alloc := allocate(scores)
	rep := &WeightReport{
		SchemaVersion:    SchemaVersion,
		Weights:          make(map[string]float64, len(ok)),
		StrategyResults:  make(map[string]StrategyResult, len(ok)),
		CalculationBasis: CalculationBasis,
	}
	j := 0
	for i, name := range names {
		if errs[i] != nil {
			continue
		}
		rep.Weights[name] = alloc[j]
		rep.StrategyResults[name] = StrategyResult{Report: reports[i], Score: round2(scores[j])}
		j++
	}
	return rep, nil
}

// allocate normalizes scores into weights that sum to 1. Negative scores get
// no allocation; if the scores do not sum to a positive total every entry
// gets an equal share. Weights are rounded to 4 decimals and the rounding
// residual goes to the largest weight.
func allocate(scores []float64) []float64 {
	w := make([]float64, len(scores))
	if len(w) == 0 {
		return w
	}

	sum, pos := 0.0, 0.0
	for _, s := range scores {
		sum += s
		pos += math.Max(s, 0)
	}
	for i, s := range scores {
		if sum > 0 {
			w[i] = math.Max(s, 0) / pos
		} else {
			w[i] = 1 / float64(len(w))
		}
	}

	largest, total := 0, 0.0
	for i := range w {
		w[i] = round4(w[i])
		total += w[i]
		if w[i] > w[largest] {
			largest = i
		}
	}
	w[largest] = round4(w[largest] + 1 - total)
	return w
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
