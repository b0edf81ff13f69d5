package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/model"
)

// ProgressFunc receives optimizer progress after each finished combination.
// Calls are serialized and done increases by one each time.
type ProgressFunc func(done, total int)

// comboResult is the outcome of one grid point. A slot is written once, by
// the worker that owns it, after the run finished.
type comboResult struct {
	ranked RankedResult
	err    error
}

// Optimize evaluates every combination of the strategy's grid merged with
// overrides and ranks the successful runs by total return, best first.
//
// Combinations that fail (constraint violations, too little data for the
// window, numeric trouble) are skipped. When ctx ends early the report holds
// the ranking of the combinations that did finish and Partial is set.
func (e *Engine) Optimize(ctx context.Context, bars []model.Bar, name string, overrides Grid, progress ProgressFunc) (*OptimizationReport, error) {
	start := time.Now()
	grid, keys, err := e.catalog.ResolveGrid(name, overrides)
	if err != nil {
		return nil, err
	}
	if grid.size(keys, MaxCombinations) < 0 {
		return nil, fmt.Errorf("%w: %s grid exceeds %d combinations", ErrConstraintViolation, name, MaxCombinations)
	}
	combos := grid.combinations(keys)
	total := len(combos)

	slots := make([]*comboResult, total)
	var (
		mu   sync.Mutex
		done int
	)
	completed := parallel(ctx, total, e.workers, func(i int) {
		e.metrics.WorkerBusy(1)
		res := &comboResult{}
		rep, err := e.run(bars, name, combos[i])
		if err != nil {
			res.err = err
		} else {
			res.ranked = rankedFrom(combos[i], rep)
		}
		slots[i] = res
		e.metrics.WorkerBusy(-1)
		e.metrics.ObserveCombination(name, err == nil)

		if err != nil {
			e.log.DebugContext(ctx, "combination skipped",
				append(logger.LogWithRun(ctx),
					"strategy", name,
					"params", combos[i],
					"kind", Kind(err),
					"error", err)...)
		}
		if progress != nil {
			mu.Lock()
			done++
			progress(done, total)
			mu.Unlock()
		}
	})

	ranked := make([]RankedResult, 0, total)
	for _, s := range slots {
		if s == nil || s.err != nil {
			continue
		}
		ranked = append(ranked, s.ranked)
	}
	evaluated := len(ranked)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].TotalReturnPct > ranked[b].TotalReturnPct
	})
	if len(ranked) > e.topK {
		ranked = ranked[:e.topK]
	}

	rep := &OptimizationReport{
		SchemaVersion:  SchemaVersion,
		Strategy:       name,
		TopResults:     ranked,
		ParameterCount: total,
		EvaluatedCount: evaluated,
		Partial:        completed < total,
	}
	e.metrics.ObserveOptimize(name, rep.Partial, time.Since(start))
	e.log.InfoContext(ctx, "optimization finished",
		append(logger.LogWithRun(ctx),
			"strategy", name,
			"combinations", total,
			"evaluated", evaluated,
			"partial", rep.Partial,
			"elapsed", time.Since(start).String())...)
	return rep, nil
}
