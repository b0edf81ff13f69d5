package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"trading-backtestv1/internal/model"
)

// chartIter is the part of *chart.Iter the provider consumes.
type chartIter interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// Yahoo fetches daily history from Yahoo Finance charts.
type Yahoo struct {
	fetch func(*chart.Params) chartIter
	now   func() time.Time
}

// NewYahoo creates a Yahoo Finance provider.
func NewYahoo() *Yahoo {
	return &Yahoo{
		fetch: func(p *chart.Params) chartIter { return chart.Get(p) },
		now:   time.Now,
	}
}

// History returns daily bars of symbol inside period, ascending.
func (y *Yahoo) History(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := y.now().UTC()
	start := model.PeriodStart(end, period)

	it := y.fetch(&chart.Params{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	bars := []model.Bar{}
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cb := it.Bar()
		if cb == nil || cb.Close.IsZero() {
			// Yahoo pads halted sessions with empty rows.
			continue
		}
		ts := time.Unix(int64(cb.Timestamp), 0).UTC()
		bars = append(bars, model.Bar{
			Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Open:   cb.Open.InexactFloat64(),
			High:   cb.High.InexactFloat64(),
			Low:    cb.Low.InexactFloat64(),
			Close:  cb.Close.InexactFloat64(),
			Volume: int64(cb.Volume),
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	return model.TrimToPeriod(bars, end, period), nil
}
