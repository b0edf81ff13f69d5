package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

type stubHistory struct {
	bars  []model.Bar
	err   error
	calls int
}

func (s *stubHistory) History(_ context.Context, _, _ string) ([]model.Bar, error) {
	s.calls++
	return s.bars, s.err
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(h model.HistoryProvider) *Service {
	return NewService(h, NewEngine(WithWorkers(2)), WithClock(func() time.Time { return fixedNow }))
}

func TestService_RunBacktestEnvelope(t *testing.T) {
	svc := newTestService(&stubHistory{bars: wave(200)})
	rep, err := svc.RunBacktest(context.Background(), "AAPL", StrategySMACross, "6m", ParameterSet{"short_window": 10})
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, rep.SchemaVersion)
	assert.Equal(t, "AAPL", rep.Symbol)
	assert.Equal(t, StrategySMACross, rep.Strategy)
	assert.Equal(t, "6m", rep.Period)
	assert.Equal(t, ParameterSet{"short_window": 10, "long_window": 50}, rep.Parameters)
	assert.Equal(t, fixedNow, rep.LastUpdated)
	assert.Len(t, rep.Dates, 200)
}

func TestService_RunBacktestIdempotent(t *testing.T) {
	svc := newTestService(&stubHistory{bars: wave(200)})
	a, err := svc.RunBacktest(context.Background(), "MSFT", StrategyMACD, "1y", nil)
	require.NoError(t, err)
	b, err := svc.RunBacktest(context.Background(), "MSFT", StrategyMACD, "1y", nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestService_EmptyHistoryIsInsufficientData(t *testing.T) {
	svc := newTestService(&stubHistory{})
	_, err := svc.RunBacktest(context.Background(), "NONE", StrategyRSI, "1y", nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = svc.OptimizeStrategy(context.Background(), "NONE", StrategyRSI, "1y", nil, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = svc.CalculateStrategyWeights(context.Background(), "NONE", "1y", nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestService_UnknownStrategySkipsFetch(t *testing.T) {
	h := &stubHistory{bars: wave(100)}
	svc := newTestService(h)
	_, err := svc.RunBacktest(context.Background(), "AAPL", "martingale", "1y", nil)
	assert.ErrorIs(t, err, ErrUnsupportedStrategy)
	assert.Equal(t, 0, h.calls)
}

func TestService_UpstreamError(t *testing.T) {
	boom := errors.New("503 from upstream")
	svc := newTestService(&stubHistory{err: boom})
	_, err := svc.RunBacktest(context.Background(), "AAPL", StrategyRSI, "1y", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, KindUpstream, Kind(err))
}

func TestService_OptimizeAndWeightsEnvelope(t *testing.T) {
	svc := newTestService(&stubHistory{bars: wave(300)})

	opt, err := svc.OptimizeStrategy(context.Background(), "SPY", StrategyBollinger, "1y", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SPY", opt.Symbol)
	assert.Equal(t, 20, opt.ParameterCount)
	assert.LessOrEqual(t, len(opt.TopResults), 5)
	assert.Equal(t, fixedNow, opt.LastUpdated)

	w, err := svc.CalculateStrategyWeights(context.Background(), "SPY", "1y", nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum(w.Weights), 1e-6)
	for _, r := range w.StrategyResults {
		assert.Equal(t, "SPY", r.Report.Symbol)
	}
}
