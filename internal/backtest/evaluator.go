package backtest

import (
	"fmt"
	"math"

	"trading-backtestv1/internal/model"
)

const (
	tradingDays = 252
	annualRF    = 0.02
)

// dailyRiskFree is the 2% annual risk-free rate compounded down to one
// trading day.
var dailyRiskFree = math.Pow(1+annualRF, 1.0/tradingDays) - 1

// Evaluate simulates sig over bars and summarizes the result.
//
// The return earned on bar t uses the signal of bar t-1, never bar t.
// Commission is charged once on every bar where the tracker opened or closed
// a position. Bars inside the warm-up window keep the equity at 1.0 and are
// left out of the Sharpe sample.
func Evaluate(bars []model.Bar, sig Signals, commission float64) (*Report, error) {
	if commission < 0 || commission >= 1 || math.IsNaN(commission) {
		return nil, fmt.Errorf("%w: commission rate %v outside [0,1)", ErrConstraintViolation, commission)
	}
	closes, err := checkCloses(bars)
	if err != nil {
		return nil, err
	}
	if err := sig.check(len(bars)); err != nil {
		return nil, err
	}
	led, err := TrackPositions(bars, sig)
	if err != nil {
		return nil, err
	}

	n := len(bars)
	equity := make([]float64, n)
	dates := make([]string, n)
	active := make([]float64, 0, n)

	mult := 1.0
	peak := 1.0
	maxDD := 0.0
	for t := 0; t < n; t++ {
		dates[t] = bars[t].Day()
		if t > 0 && sig.Defined(t-1) {
			raw := closes[t]/closes[t-1] - 1
			net := float64(sig.Values[t-1]) * raw
			if led.Events[t] {
				net -= commission
			}
			mult *= 1 + net
			active = append(active, net)
		}
		equity[t] = mult

		if mult > peak {
			peak = mult
		}
		if dd := (mult - peak) / peak; dd < maxDD {
			maxDD = dd
		}
	}

	wins, losses := 0, 0
	sumWin, sumLoss := 0.0, 0.0
	for _, tr := range led.Trades {
		if tr.ProfitPct > 0 {
			wins++
			sumWin += tr.ProfitPct
		} else {
			losses++
			sumLoss += tr.ProfitPct
		}
	}
	total := len(led.Trades)

	var winRate, avgProfit, avgLoss, plRatio float64
	if total > 0 {
		winRate = float64(wins) / float64(total) * 100
	}
	if wins > 0 {
		avgProfit = sumWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = sumLoss / float64(losses)
	}
	if avgLoss != 0 {
		plRatio = math.Abs(avgProfit / avgLoss)
	}

	rep := &Report{
		SchemaVersion:   SchemaVersion,
		TotalReturnPct:  round2((mult - 1) * 100),
		MaxDrawdownPct:  round2(math.Abs(maxDD) * 100),
		WinRatePct:      round2(winRate),
		TotalTrades:     total,
		AvgProfitPct:    round2(avgProfit),
		AvgLossPct:      round2(avgLoss),
		ProfitLossRatio: round2(plRatio),
		SharpeRatio:     round2(sharpe(active)),
		Trades:          led.Trades,
		EquityCurve:     equity,
		Dates:           dates,
	}
	if rep.Trades == nil {
		rep.Trades = []Trade{}
	}
	if !finite(rep.TotalReturnPct, rep.MaxDrawdownPct, rep.SharpeRatio, rep.ProfitLossRatio) {
		return nil, fmt.Errorf("%w: non-finite report metric", ErrComputation)
	}
	return rep, nil
}

// sharpe annualizes mean excess return over its sample standard deviation.
// Fewer than two samples or a (numerically) flat series yields 0.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r - dailyRiskFree
	}
	mean /= float64(len(returns))

	ss := 0.0
	for _, r := range returns {
		d := r - dailyRiskFree - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std < 1e-12 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDays)
}
