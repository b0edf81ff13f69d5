package sqlite

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"trading-backtestv1/internal/model"
)

var csvColumns = []string{"date", "open", "high", "low", "close", "volume"}

// ParseCSV reads daily bars from r. The first row must be a header naming
// date, open, high, low, close and volume in any order; extra columns are
// ignored. Bars are returned ascending by date.
func ParseCSV(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv header: missing column %q", col)
		}
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		b, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseRecord(rec []string, idx map[string]int) (model.Bar, error) {
	var b model.Bar
	field := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }

	d, err := time.Parse(model.DateLayout, field("date"))
	if err != nil {
		return b, fmt.Errorf("date: %w", err)
	}
	b.Date = d

	prices := []struct {
		col string
		dst *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
	}
	for _, p := range prices {
		v, err := strconv.ParseFloat(field(p.col), 64)
		if err != nil {
			return b, fmt.Errorf("%s: %w", p.col, err)
		}
		*p.dst = v
	}

	if s := field("volume"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("volume: %w", err)
		}
		b.Volume = int64(v)
	}
	return b, nil
}

// ImportCSV parses r and upserts its bars for symbol. It returns the number
// of bars written.
func ImportCSV(ctx context.Context, w model.BarWriter, symbol string, r io.Reader) (int, error) {
	bars, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := w.WriteBars(ctx, symbol, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}
