// Package indicator provides streaming technical indicator calculations over
// close prices.
//
// All indicators implement the Indicator interface: they receive one price
// per bar and expose the current value once enough history has accumulated.
// Values read before Ready() returns true are not meaningful.
package indicator

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next close price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Series feeds prices through ind and returns the per-bar values together
// with a readiness mask of the same length.
func Series(ind Indicator, prices []float64) (values []float64, ready []bool) {
	values = make([]float64, len(prices))
	ready = make([]bool, len(prices))
	for i, p := range prices {
		ind.Update(p)
		values[i] = ind.Value()
		ready[i] = ind.Ready()
	}
	return values, ready
}
