package indicator

import "math"

// StdDev calculates the rolling sample standard deviation (n-1 denominator)
// over a fixed window. Each update recomputes from the window with a two-pass
// mean/deviation sum, which keeps small windows exact for flat series.
type StdDev struct {
	period  int
	buf     []float64
	idx     int
	count   int
	current float64
}

// NewStdDev creates a rolling standard deviation over period prices.
// period must be at least 2.
func NewStdDev(period int) *StdDev {
	return &StdDev{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *StdDev) Name() string { return "STDDEV" }

func (s *StdDev) Update(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period {
		return
	}

	var sum float64
	for _, v := range s.buf {
		sum += v
	}
	mean := sum / float64(s.period)

	var sq float64
	for _, v := range s.buf {
		d := v - mean
		sq += d * d
	}
	s.current = math.Sqrt(sq / float64(s.period-1))
}

func (s *StdDev) Value() float64 { return s.current }
func (s *StdDev) Ready() bool    { return s.count >= s.period }
