package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func TestGenerateSignals_SMACross(t *testing.T) {
	bars := barsFrom(10, 11, 12, 11, 10, 9, 10, 12)
	sig, err := GenerateSignals(bars, StrategySMACross, ParameterSet{"short_window": 2, "long_window": 3})
	require.NoError(t, err)

	require.Equal(t, len(bars), sig.Len())
	assert.Equal(t, 2, sig.Start)
	assert.False(t, sig.Defined(1))
	// SMA2 vs SMA3 from bar 2:
	// 11.5>11, 11.5>11.33, 10.5<11, 9.5<10, 9.5<9.67, 11>10.33
	want := []Signal{Long, Long, Short, Short, Short, Long}
	assert.Equal(t, want, sig.Values[2:])
}

func TestGenerateSignals_Bollinger(t *testing.T) {
	// A flat run then a spike above and a crash below the bands.
	bars := barsFrom(10, 10, 10, 10, 10, 10, 14, 10, 6)
	sig, err := GenerateSignals(bars, StrategyBollinger, ParameterSet{"window": 5, "num_std": 1})
	require.NoError(t, err)

	assert.Equal(t, 4, sig.Start)
	assert.Equal(t, Neutral, sig.Values[4], "flat window has zero-width bands")
	assert.Equal(t, Neutral, sig.Values[5])
	assert.Equal(t, Short, sig.Values[6], "close above upper band")
	assert.Equal(t, Neutral, sig.Values[7])
	assert.Equal(t, Long, sig.Values[8], "close below lower band")
}

func TestGenerateSignals_MACDWarmup(t *testing.T) {
	params := ParameterSet{"fast_period": 3, "slow_period": 6, "signal_period": 4}
	s, err := DefaultCatalog().Lookup(StrategyMACD)
	require.NoError(t, err)
	w, err := s.Warmup(params)
	require.NoError(t, err)
	assert.Equal(t, 9, w)

	_, err = GenerateSignals(barsFrom(1, 2, 3, 4, 5, 6, 7, 8), StrategyMACD, params)
	assert.ErrorIs(t, err, ErrInsufficientData)

	sig, err := GenerateSignals(wave(40), StrategyMACD, params)
	require.NoError(t, err)
	assert.Equal(t, 8, sig.Start)
	for i := sig.Start; i < sig.Len(); i++ {
		assert.NotEqual(t, Neutral, sig.Values[i], "macd has no neutral state (bar %d)", i)
	}
}

// Scenario C: a strictly rising window has zero average loss; RSI is pinned
// at 100 and lands above any overbought threshold.
func TestGenerateSignals_RSIZeroLoss(t *testing.T) {
	bars := barsFrom(10, 11, 12, 13, 14, 15, 16)
	sig, err := GenerateSignals(bars, StrategyRSI, ParameterSet{"period": 3, "overbought": 99.99, "oversold": 30})
	require.NoError(t, err)

	assert.Equal(t, 3, sig.Start)
	for i := sig.Start; i < sig.Len(); i++ {
		assert.Equal(t, Short, sig.Values[i], "bar %d", i)
	}
}

func TestGenerateSignals_NoLookahead(t *testing.T) {
	base := wave(120)
	full, err := GenerateSignals(base, StrategySMACross, ParameterSet{"short_window": 5, "long_window": 20})
	require.NoError(t, err)

	// Rewrite the future: signals up to the cut must not change.
	cut := 70
	altered := append([]model.Bar(nil), base...)
	for i := cut + 1; i < len(altered); i++ {
		altered[i].Close *= 3
	}
	part, err := GenerateSignals(altered, StrategySMACross, ParameterSet{"short_window": 5, "long_window": 20})
	require.NoError(t, err)
	assert.Equal(t, full.Values[:cut+1], part.Values[:cut+1])
}

func TestGenerateSignals_Errors(t *testing.T) {
	cases := []struct {
		name     string
		strategy string
		params   ParameterSet
		bars     []model.Bar
		want     error
	}{
		{"unknown strategy", "momentum", ParameterSet{}, wave(60), ErrUnsupportedStrategy},
		{"missing param", StrategySMACross, ParameterSet{"short_window": 5}, wave(60), ErrUnsupportedStrategy},
		{"short >= long", StrategySMACross, ParameterSet{"short_window": 20, "long_window": 20}, wave(60), ErrConstraintViolation},
		{"fractional window", StrategyBollinger, ParameterSet{"window": 10.5, "num_std": 2}, wave(60), ErrConstraintViolation},
		{"bollinger window 1", StrategyBollinger, ParameterSet{"window": 1, "num_std": 2}, wave(60), ErrConstraintViolation},
		{"fast >= slow", StrategyMACD, ParameterSet{"fast_period": 26, "slow_period": 12, "signal_period": 9}, wave(60), ErrConstraintViolation},
		{"oversold >= overbought", StrategyRSI, ParameterSet{"period": 14, "overbought": 30, "oversold": 70}, wave(60), ErrConstraintViolation},
		{"empty series", StrategySMACross, ParameterSet{"short_window": 2, "long_window": 3}, nil, ErrInsufficientData},
		{"too short", StrategySMACross, ParameterSet{"short_window": 20, "long_window": 50}, wave(49), ErrInsufficientData},
		{"window above cap", StrategySMACross, ParameterSet{"short_window": 5, "long_window": MaxWindow + 1}, wave(60), ErrConstraintViolation},
		{"window beyond int range", StrategyMACD, ParameterSet{"fast_period": 1, "slow_period": 4611686018427387904, "signal_period": 4611686018427388928}, wave(60), ErrConstraintViolation},
		{"zero close", StrategySMACross, ParameterSet{"short_window": 2, "long_window": 3}, barsFrom(1, 2, 0, 4), ErrComputation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GenerateSignals(tc.bars, tc.strategy, tc.params)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
