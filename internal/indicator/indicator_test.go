package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after price 3: (100+102+104)/3 = 102
	// SMA after price 4: (102+104+103)/3 = 103
	// SMA after price 5: (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestSMA_Reset(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(10)
	sma.Update(20)
	sma.Reset()
	if sma.Ready() {
		t.Fatal("expected not ready after Reset")
	}
	sma.Update(4)
	sma.Update(6)
	assertClose(t, "SMA after reset", sma.Value(), 5, 1e-9)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_SeededWithFirstPrice(t *testing.T) {
	// k = 2/(3+1) = 0.5
	// 10 → 10, 11 → 10.5, 12 → 11.25, 13 → 12.125
	ema := NewEMA(3)
	prices := []float64{10, 11, 12, 13}
	expected := []float64{10, 10.5, 11.25, 12.125}
	ready := []bool{false, false, true, true}

	for i, p := range prices {
		ema.Update(p)
		assertClose(t, "EMA(3)", ema.Value(), expected[i], 1e-9)
		if ema.Ready() != ready[i] {
			t.Errorf("price %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_WilderSmoothing(t *testing.T) {
	// Deltas +1, -1, +2 → avgGain 1, avgLoss 1/3 → RS 3 → RSI 75
	// Next delta -1 → avgGain 2/3, avgLoss 5/9 → RS 1.2 → RSI 54.5454
	rsi := NewRSI(3)
	for _, p := range []float64{10, 11, 10, 12} {
		rsi.Update(p)
	}
	if !rsi.Ready() {
		t.Fatal("expected RSI ready after period+1 prices")
	}
	assertClose(t, "RSI seed", rsi.Value(), 75, 1e-9)

	rsi.Update(11)
	assertClose(t, "RSI smoothed", rsi.Value(), 100-100/2.2, 1e-9)
}

func TestRSI_ZeroLossPinnedAt100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 12; i++ {
		rsi.Update(100 + float64(i))
		if rsi.Ready() {
			v := rsi.Value()
			if math.IsNaN(v) || v != 100 {
				t.Fatalf("price %d: expected RSI=100, got %v", i, v)
			}
		}
	}
}

func TestRSI_NotReadyBeforePeriodPlusOne(t *testing.T) {
	rsi := NewRSI(3)
	for i, p := range []float64{1, 2, 3} {
		rsi.Update(p)
		if rsi.Ready() {
			t.Errorf("price %d: expected not ready", i)
		}
	}
}

// ────────────────────────────────────────────────────────────
// StdDev Correctness
// ────────────────────────────────────────────────────────────

func TestStdDev_SampleDeviation(t *testing.T) {
	sd := NewStdDev(3)
	values, ready := Series(sd, []float64{2, 4, 6, 8, 8})

	want := []float64{0, 0, 2, 2, 1.1547005383792515}
	wantReady := []bool{false, false, true, true, true}
	for i := range values {
		if ready[i] != wantReady[i] {
			t.Errorf("price %d: ready=%v, want %v", i, ready[i], wantReady[i])
		}
		if wantReady[i] {
			assertClose(t, "StdDev(3)", values[i], want[i], 1e-9)
		}
	}
}

func TestStdDev_FlatSeriesIsZero(t *testing.T) {
	sd := NewStdDev(4)
	for i := 0; i < 6; i++ {
		sd.Update(50)
	}
	if sd.Value() != 0 {
		t.Errorf("expected 0 deviation on flat series, got %v", sd.Value())
	}
}
