package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/model"
)

const defaultAlphaVantageURL = "https://www.alphavantage.co"

// AlphaVantageConfig configures the Alpha Vantage daily-series client.
type AlphaVantageConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// AlphaVantage fetches TIME_SERIES_DAILY history over HTTP.
type AlphaVantage struct {
	client *resty.Client
	apiKey string
	now    func() time.Time
	log    *slog.Logger
}

// NewAlphaVantage creates a client. Transport errors and 429/5xx answers
// are retried cfg.Retries times.
func NewAlphaVantage(cfg AlphaVantageConfig, log *slog.Logger) *AlphaVantage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAlphaVantageURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(cfg.Retries)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &AlphaVantage{
		client: client,
		apiKey: cfg.APIKey,
		now:    time.Now,
		log:    log,
	}
}

type avDailyResponse struct {
	Series       map[string]avDailyBar `json:"Time Series (Daily)"`
	ErrorMessage string                `json:"Error Message"`
	Information  string                `json:"Information"`
	Note         string                `json:"Note"`
}

type avDailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// History returns the daily bars of symbol inside period, ascending.
// An API-level error body (bad symbol, rate-limit notice) yields an empty
// series, not an error.
func (a *AlphaVantage) History(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function":   "TIME_SERIES_DAILY",
			"symbol":     symbol,
			"apikey":     a.apiKey,
			"outputsize": "full",
		}).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("alphavantage request %s: %w", symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("alphavantage API error %d: %s", resp.StatusCode(), resp.String())
	}

	var body avDailyResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("alphavantage decode %s: %w", symbol, err)
	}
	if body.Series == nil {
		msg := firstNonEmpty(body.ErrorMessage, body.Information, body.Note, "unknown error")
		a.log.WarnContext(ctx, "alphavantage returned no series",
			append(logger.LogWithRun(ctx), "symbol", symbol, "message", msg)...)
		return []model.Bar{}, nil
	}

	bars := make([]model.Bar, 0, len(body.Series))
	for day, raw := range body.Series {
		b, err := raw.toBar(day)
		if err != nil {
			return nil, fmt.Errorf("alphavantage %s %s: %w", symbol, day, err)
		}
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return model.TrimToPeriod(bars, a.now(), period), nil
}

func (r avDailyBar) toBar(day string) (model.Bar, error) {
	var b model.Bar
	d, err := time.Parse(model.DateLayout, day)
	if err != nil {
		return b, err
	}
	b.Date = d

	fields := []struct {
		raw string
		dst *float64
	}{
		{r.Open, &b.Open}, {r.High, &b.High}, {r.Low, &b.Low}, {r.Close, &b.Close},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return b, err
		}
		*f.dst = v.InexactFloat64()
	}
	if r.Volume != "" {
		v, err := decimal.NewFromString(r.Volume)
		if err != nil {
			return b, err
		}
		b.Volume = v.IntPart()
	}
	return b, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
