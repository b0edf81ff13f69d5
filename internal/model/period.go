package model

import "time"

// DefaultPeriod is used when a caller names no period or an unknown one.
const DefaultPeriod = "1y"

var periodDays = map[string]int{
	"1y": 365,
	"6m": 182,
	"3m": 91,
	"1m": 30,
	"1w": 7,
}

// PeriodDays returns the calendar-day lookback of a period identifier.
// Unknown identifiers fall back to one year.
func PeriodDays(period string) int {
	if d, ok := periodDays[period]; ok {
		return d
	}
	return periodDays[DefaultPeriod]
}

// PeriodStart returns the first session date (UTC midnight) included in
// period when looking back from now.
func PeriodStart(now time.Time, period string) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -PeriodDays(period))
}

// TrimToPeriod returns the suffix of ascending bars that falls inside period.
func TrimToPeriod(bars []Bar, now time.Time, period string) []Bar {
	start := PeriodStart(now, period)
	for i := range bars {
		if !bars[i].Date.Before(start) {
			return bars[i:]
		}
	}
	return bars[:0]
}
