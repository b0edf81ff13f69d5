package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"trading-backtestv1/internal/model"
)

// AlpacaConfig configures the Alpaca market-data client.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // data API, empty for the default
	Feed      string // iex or sip
}

// Alpaca fetches split- and dividend-adjusted daily bars from the Alpaca
// market-data API.
type Alpaca struct {
	fetch func(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	feed  string
	now   func() time.Time
}

// NewAlpaca creates an Alpaca provider.
func NewAlpaca(cfg AlpacaConfig) *Alpaca {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	feed := cfg.Feed
	if feed == "" {
		feed = "iex"
	}
	client := marketdata.NewClient(opts)
	return &Alpaca{
		fetch: client.GetBars,
		feed:  feed,
		now:   time.Now,
	}
}

// History returns daily bars of symbol inside period, ascending.
func (a *Alpaca) History(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := a.now().UTC()
	start := model.PeriodStart(end, period)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	raw, err := a.fetch(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Adjustment: marketdata.All,
		Feed:       marketdata.Feed(a.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, err)
	}

	bars := make([]model.Bar, 0, len(raw))
	for _, ab := range raw {
		// Daily bars are stamped at midnight New York time.
		ts := ab.Timestamp.In(newYork)
		bars = append(bars, model.Bar{
			Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Open:   ab.Open,
			High:   ab.High,
			Low:    ab.Low,
			Close:  ab.Close,
			Volume: int64(ab.Volume),
		})
	}
	return model.TrimToPeriod(bars, end, period), nil
}

var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}()
