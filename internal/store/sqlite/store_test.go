package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func openPair(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.db")
	w, err := New(WriterConfig{DBPath: path, BatchSize: 3})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	r.SetClock(func() time.Time { return time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC) })
	return w, r
}

func day(s string) time.Time {
	d, _ := time.Parse(model.DateLayout, s)
	return d
}

func TestWriteAndReadHistory(t *testing.T) {
	w, r := openPair(t)
	ctx := context.Background()

	var bars []model.Bar
	for i := 0; i < 31; i++ {
		d := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		bars = append(bars, model.Bar{Date: d, Open: 10, High: 11, Low: 9, Close: float64(100 + i), Volume: int64(i)})
	}
	require.NoError(t, w.WriteBars(ctx, "aapl", bars))

	got, err := r.History(ctx, "AAPL", "1w")
	require.NoError(t, err)
	require.Len(t, got, 8) // Jan 24..31
	assert.Equal(t, "2024-01-24", got[0].Day())
	assert.Equal(t, 130.0, got[len(got)-1].Close)
	assert.Equal(t, int64(30), got[len(got)-1].Volume)

	all, err := r.History(ctx, "aapl", "1y")
	require.NoError(t, err)
	assert.Len(t, all, 31)

	last, err := w.LastDay(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", last)
}

func TestHistory_UnknownSymbolIsEmpty(t *testing.T) {
	_, r := openPair(t)
	got, err := r.History(context.Background(), "NOPE", "1y")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWriteBars_Upserts(t *testing.T) {
	w, r := openPair(t)
	ctx := context.Background()

	require.NoError(t, w.WriteBars(ctx, "MSFT", []model.Bar{{Date: day("2024-01-10"), Close: 1}}))
	require.NoError(t, w.WriteBars(ctx, "MSFT", []model.Bar{{Date: day("2024-01-10"), Close: 2}}))

	got, err := r.History(ctx, "MSFT", "1m")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Close)

	syms, err := r.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"MSFT": 1}, syms)
}

func TestParseCSV(t *testing.T) {
	in := `Date,Close,Open,High,Low,Volume,Adj Close
2024-01-03,101.5,100,102,99,1200,101.4
2024-01-02,100.25,99,101,98,1000.0,100.2
`
	bars, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Day(), "sorted ascending")
	assert.Equal(t, 100.25, bars[0].Close)
	assert.Equal(t, int64(1000), bars[0].Volume)
	assert.Equal(t, 102.0, bars[1].High)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("date,open,high,low,close\n"))
	assert.ErrorContains(t, err, "volume")

	_, err = ParseCSV(strings.NewReader("date,open,high,low,close,volume\n2024-13-01,1,1,1,1,1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ParseCSV(strings.NewReader("date,open,high,low,close,volume\n2024-01-01,1,1,1,x,1\n"))
	assert.ErrorContains(t, err, "close")
}

func TestImportCSV(t *testing.T) {
	w, r := openPair(t)
	ctx := context.Background()

	in := "date,open,high,low,close,volume\n" +
		"2024-01-29,1,1,1,10,5\n" +
		"2024-01-30,1,1,1,11,5\n" +
		"2024-01-31,1,1,1,12,5\n" +
		"2024-01-26,1,1,1,9,5\n"
	n, err := ImportCSV(ctx, w, "spy", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := r.History(ctx, "SPY", "1m")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []float64{9, 10, 11, 12}, model.Closes(got))
}
