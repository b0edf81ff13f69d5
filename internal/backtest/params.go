package backtest

import (
	"fmt"
	"math"
	"sort"
)

// ParameterSet maps a strategy parameter name to its numeric value,
// e.g. {"short_window": 20, "long_window": 50}.
// A ParameterSet handed to the engine is never mutated; merges return copies.
type ParameterSet map[string]float64

// Clone returns an independent copy of p.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every key of over replacing p's value.
func (p ParameterSet) Merge(over ParameterSet) ParameterSet {
	out := p.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Float returns the named parameter, failing with ErrUnsupportedStrategy when
// it is missing.
func (p ParameterSet) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing parameter %q", ErrUnsupportedStrategy, key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: parameter %q is not finite", ErrConstraintViolation, key)
	}
	return v, nil
}

// Int returns the named parameter as an integer window length.
// Non-integral values fail with ErrConstraintViolation.
func (p ParameterSet) Int(key string) (int, error) {
	v, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: parameter %q must be an integer, got %v", ErrConstraintViolation, key, v)
	}
	if math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: parameter %q out of range, got %v", ErrConstraintViolation, key, v)
	}
	return int(v), nil
}

// Grid maps a parameter name to its candidate values for a grid search.
type Grid map[string][]float64

// Clone returns an independent copy of g.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for k, vals := range g {
		out[k] = append([]float64(nil), vals...)
	}
	return out
}

// MaxCombinations bounds the cartesian product of one grid search.
const MaxCombinations = 10000

// size returns the number of combinations over keys, or -1 when it exceeds
// limit.
func (g Grid) size(keys []string, limit int) int {
	if len(keys) == 0 {
		return 0
	}
	total := 1
	for _, k := range keys {
		n := len(g[k])
		if n == 0 {
			return 0
		}
		if total > limit/n {
			return -1
		}
		total *= n
	}
	return total
}

// combinations expands the grid into its cartesian product. keys fixes the
// iteration order: the last key varies fastest, so the output order is
// deterministic for a given key order. Grids above MaxCombinations yield nil.
func (g Grid) combinations(keys []string) []ParameterSet {
	total := g.size(keys, MaxCombinations)
	if total <= 0 {
		return nil
	}

	out := make([]ParameterSet, 0, total)
	idx := make([]int, len(keys))
	for {
		ps := make(ParameterSet, len(keys))
		for i, k := range keys {
			ps[k] = g[k][idx[i]]
		}
		out = append(out, ps)

		// odometer increment, last key fastest
		pos := len(keys) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(g[keys[pos]]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}

// orderedKeys returns canonical first (in order) followed by any remaining
// keys of g, sorted.
func (g Grid) orderedKeys(canonical []string) []string {
	keys := make([]string, 0, len(g))
	seen := make(map[string]bool, len(canonical))
	for _, k := range canonical {
		if _, ok := g[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range g {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}
