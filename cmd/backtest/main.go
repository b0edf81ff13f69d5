// cmd/backtest runs the backtest engine from the command line: single
// backtests, parameter optimization, strategy weights, and CSV import of
// daily bars into the SQLite store.
//
// Usage:
//
//	backtest run AAPL --strategy sma_cross --period 1y --param short_window=10
//	backtest optimize AAPL --strategy rsi --grid period=7,14,21
//	backtest weights AAPL --strategies sma_cross,macd
//	backtest import AAPL data/aapl.csv
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
