package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire format for bar and trade dates.
const DateLayout = "2006-01-02"

// Bar represents one daily OHLCV price record for a single symbol.
// Bars are ordered ascending by date, one per trading day.
type Bar struct {
	Date   time.Time `json:"date"` // session date (UTC, midnight-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Day returns the bar date formatted as YYYY-MM-DD.
func (b *Bar) Day() string {
	return b.Date.Format(DateLayout)
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// Closes extracts the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}
