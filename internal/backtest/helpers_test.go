package backtest

import (
	"math"
	"testing"
	"time"

	"trading-backtestv1/internal/model"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barsFrom(closes ...float64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{
			Date:   day0.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

// wave is a deterministic oscillating series long enough for every default
// window, with a drift so strategies see both trends and reversals.
func wave(n int) []model.Bar {
	closes := make([]float64, n)
	for i := range closes {
		x := float64(i)
		closes[i] = 100 + 0.05*x + 8*math.Sin(x/7) + 3*math.Sin(x/2.3)
	}
	return barsFrom(closes...)
}

func sigs(vals ...int) Signals {
	out := make([]Signal, len(vals))
	for i, v := range vals {
		out[i] = Signal(v)
	}
	return Signals{Values: out}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f (diff %.2e)", label, got, want, math.Abs(got-want))
	}
}
