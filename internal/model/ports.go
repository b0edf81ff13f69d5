package model

import "context"

// ── Data Port Interfaces ──
// These interfaces decouple the backtest engine from concrete data sources
// (SQLite, Redis, upstream HTTP APIs). Each source satisfies one or more.

// HistoryProvider returns daily bars for a symbol over a named period
// (e.g. "1y", "6m"). Bars are ascending by date. An unknown symbol yields an
// empty slice rather than an error.
type HistoryProvider interface {
	History(ctx context.Context, symbol, period string) ([]Bar, error)
}

// BarWriter persists daily bars for a symbol.
type BarWriter interface {
	// WriteBars upserts bars for symbol in a single transaction.
	WriteBars(ctx context.Context, symbol string, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// HistoryProviderFunc adapts a function to HistoryProvider.
type HistoryProviderFunc func(ctx context.Context, symbol, period string) ([]Bar, error)

// History calls f.
func (f HistoryProviderFunc) History(ctx context.Context, symbol, period string) ([]Bar, error) {
	return f(ctx, symbol, period)
}
