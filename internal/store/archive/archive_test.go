package archive

import (
	"path/filepath"
	"testing"
	"time"

	pq "github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func day(s string) time.Time {
	d, _ := time.Parse(model.DateLayout, s)
	return d
}

func TestWriteReadBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "aapl.parquet")
	in := []model.Bar{
		{Date: day("2024-01-02"), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Date: day("2024-01-03"), Open: 10.5, High: 12, Low: 10, Close: 11.75, Volume: 200},
	}
	require.NoError(t, WriteBars(path, "aapl", in))

	out, err := ReadBars(path, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	none, err := ReadBars(path, "MSFT")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReadBars_SortsAndDedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.parquet")
	rows := []BarRecord{
		{Symbol: "SPY", Timestamp: day("2024-01-03").UnixMilli(), Close: 3},
		{Symbol: "SPY", Timestamp: day("2024-01-02").UnixMilli(), Close: 1},
		{Symbol: "SPY", Timestamp: day("2024-01-02").UnixMilli(), Close: 2},
		{Symbol: "QQQ", Timestamp: day("2024-01-02").UnixMilli(), Close: 9},
	}
	require.NoError(t, pq.WriteFile(path, rows))

	bars, err := ReadBars(path, "spy")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Day())
	assert.Equal(t, 2.0, bars[0].Close)
	assert.Equal(t, 3.0, bars[1].Close)

	_, err = ReadBars(path, "")
	assert.Error(t, err)
}

func TestReadBars_Missing(t *testing.T) {
	_, err := ReadBars(filepath.Join(t.TempDir(), "nope.parquet"), "X")
	assert.Error(t, err)
}
