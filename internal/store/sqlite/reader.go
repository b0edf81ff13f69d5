package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-backtestv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader serves daily bar history from SQLite. It satisfies
// model.HistoryProvider.
type Reader struct {
	db  *sql.DB
	now func() time.Time
}

// NewReader opens a SQLite connection for reading. The schema is created if
// missing so a fresh database reads as empty rather than failing.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db, now: time.Now}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// SetClock overrides the clock used to anchor period windows.
func (r *Reader) SetClock(now func() time.Time) { r.now = now }

// History returns the bars of symbol inside period, ascending by date.
// An unknown symbol returns an empty slice.
func (r *Reader) History(ctx context.Context, symbol, period string) ([]model.Bar, error) {
	from := model.PeriodStart(r.now(), period).Format(model.DateLayout)
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, open, high, low, close, volume
		FROM bars_daily
		WHERE symbol = ? AND day >= ?
		ORDER BY day ASC
	`, normalize(symbol), from)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_daily: %w", err)
	}
	defer rows.Close()

	bars := []model.Bar{}
	for rows.Next() {
		var b model.Bar
		var day string
		if err := rows.Scan(&day, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars_daily: %w", err)
		}
		if b.Date, err = time.Parse(model.DateLayout, day); err != nil {
			return nil, fmt.Errorf("sqlite bad day %q: %w", day, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists stored symbols with their bar count.
func (r *Reader) Symbols(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, COUNT(*) FROM bars_daily GROUP BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var sym string
		var n int
		if err := rows.Scan(&sym, &n); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out[sym] = n
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
