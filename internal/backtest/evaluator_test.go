package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_ScenarioA(t *testing.T) {
	bars := barsFrom(100, 102, 104, 101, 99)
	rep, err := Evaluate(bars, sigs(-1, -1, 1, 1, -1), 0)
	require.NoError(t, err)

	// Each bar earns the previous bar's signal times its own return.
	want := []float64{1, 0.98, 0.9607843137254902, 0.9330693815987934, 0.9145927601809954}
	require.Len(t, rep.EquityCurve, len(want))
	for i := range want {
		assertClose(t, "equity", rep.EquityCurve[i], want[i], 1e-12)
	}
	assert.Equal(t, -8.54, rep.TotalReturnPct)
	assert.Equal(t, 8.54, rep.MaxDrawdownPct)
	assert.Equal(t, 2, rep.TotalTrades)
	assert.Equal(t, 0.0, rep.WinRatePct)
	assert.Equal(t, 0.0, rep.AvgProfitPct)
	assertClose(t, "avg loss", rep.AvgLossPct, -2.41, 0.005)
	assert.Equal(t, 0.0, rep.ProfitLossRatio)
	assert.Equal(t, -77.69, rep.SharpeRatio)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, rep.Dates)
}

func TestEvaluate_CommissionOnEventBars(t *testing.T) {
	bars := barsFrom(100, 102, 104, 101, 99)
	free, err := Evaluate(bars, sigs(-1, -1, 1, 1, -1), 0)
	require.NoError(t, err)
	paid, err := Evaluate(bars, sigs(-1, -1, 1, 1, -1), 0.01)
	require.NoError(t, err)

	// Events on bars 2 and 4 only.
	assert.Equal(t, free.EquityCurve[1], paid.EquityCurve[1])
	assertClose(t, "bar 2", paid.EquityCurve[2], 0.98*(1-2.0/102-0.01), 1e-12)
	assert.Less(t, paid.TotalReturnPct, free.TotalReturnPct)
}

// Scenario B: a constant long signal never trades and compounds the raw
// returns with no commission, whatever the rate.
func TestEvaluate_ConstantSignal(t *testing.T) {
	rep, err := Evaluate(barsFrom(100, 110, 99, 105), sigs(1, 1, 1, 1), 0.05)
	require.NoError(t, err)

	assert.Equal(t, 0, rep.TotalTrades)
	assert.Empty(t, rep.Trades)
	assert.NotNil(t, rep.Trades)
	assert.Equal(t, 0.0, rep.WinRatePct)
	assert.Equal(t, 0.0, rep.AvgProfitPct)
	assert.Equal(t, 0.0, rep.AvgLossPct)
	assert.Equal(t, 0.0, rep.ProfitLossRatio)
	assert.Equal(t, 5.0, rep.TotalReturnPct)
	assert.Equal(t, 10.0, rep.MaxDrawdownPct)
}

func TestEvaluate_WarmupHoldsEquity(t *testing.T) {
	s := sigs(0, 0, 1, 1, 1)
	s.Start = 2
	rep, err := Evaluate(barsFrom(50, 100, 100, 110, 121), s, 0)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 1, 1}, rep.EquityCurve[:3])
	assert.Equal(t, 21.0, rep.TotalReturnPct)
	assert.Equal(t, 0.0, rep.MaxDrawdownPct)
}

func TestEvaluate_WinLossStats(t *testing.T) {
	// long 100->110 (+10), short 110->99 (+10), long 99->89.1 (-10 open)
	bars := barsFrom(100, 100, 110, 99, 89.1)
	rep, err := Evaluate(bars, sigs(-1, 1, -1, 1, 1), 0)
	require.NoError(t, err)

	require.Equal(t, 3, rep.TotalTrades)
	assertClose(t, "win rate", rep.WinRatePct, 66.67, 1e-9)
	assert.Equal(t, 10.0, rep.AvgProfitPct)
	assert.Equal(t, -10.0, rep.AvgLossPct)
	assert.Equal(t, 1.0, rep.ProfitLossRatio)
}

func TestEvaluate_SharpeZeroOnFlatReturns(t *testing.T) {
	rep, err := Evaluate(barsFrom(100, 100, 100, 100, 100), sigs(1, 1, 1, 1, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.SharpeRatio)
	assert.Equal(t, 0.0, rep.TotalReturnPct)
}

func TestEvaluate_Properties(t *testing.T) {
	bars := wave(300)
	for _, name := range DefaultCatalog().Names() {
		for _, params := range gridSample(t, name) {
			sig, err := DefaultCatalog().GenerateSignals(bars, name, params)
			if err != nil {
				continue
			}
			rep, err := Evaluate(bars, sig, DefaultCommission)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, rep.MaxDrawdownPct, 0.0)
			assert.GreaterOrEqual(t, rep.WinRatePct, 0.0)
			assert.LessOrEqual(t, rep.WinRatePct, 100.0)
			assert.Len(t, rep.EquityCurve, len(bars))
			if rep.TotalTrades == 0 {
				assert.Equal(t, 0.0, rep.WinRatePct)
			}
		}
	}
}

func TestEvaluate_RejectsBadInput(t *testing.T) {
	_, err := Evaluate(barsFrom(1, 2), sigs(1, 1), 1.5)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, err = Evaluate(nil, Signals{}, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Evaluate(barsFrom(1, -2), sigs(1, 1), 0)
	assert.ErrorIs(t, err, ErrComputation)
}

// gridSample returns every fifth combination of the strategy's default grid.
func gridSample(t *testing.T, name string) []ParameterSet {
	t.Helper()
	grid, keys, err := DefaultCatalog().ResolveGrid(name, nil)
	require.NoError(t, err)
	all := grid.combinations(keys)
	var out []ParameterSet
	for i := 0; i < len(all); i += 5 {
		out = append(out, all[i])
	}
	return out
}
