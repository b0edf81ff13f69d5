package backtest

import "trading-backtestv1/internal/model"

// Side is the direction of an open position or a trade.
type Side string

const (
	Flat      Side = "FLAT"
	LongSide  Side = "LONG"
	ShortSide Side = "SHORT"
)

// OpenExitDate marks the still-open trade synthesized at series end.
const OpenExitDate = "open"

// Trade is one entry/exit round trip.
type Trade struct {
	EntryDate  string  `json:"entry_date"`
	ExitDate   string  `json:"exit_date"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	ProfitPct  float64 `json:"profit_pct"`
	Type       Side    `json:"type"`
}

// IsOpen reports whether the trade was still open at series end.
func (t Trade) IsOpen() bool { return t.ExitDate == OpenExitDate }

// Ledger is the outcome of a position simulation.
type Ledger struct {
	Trades []Trade
	// Events[i] is true when a position was opened or closed on bar i.
	Events []bool
}

type position struct {
	side  Side
	price float64
	date  string
}

func (p position) close(bar *model.Bar, exitDate string) Trade {
	var pct float64
	if p.side == LongSide {
		pct = (bar.Close - p.price) / p.price * 100
	} else {
		pct = (p.price - bar.Close) / p.price * 100
	}
	return Trade{
		EntryDate:  p.date,
		ExitDate:   exitDate,
		EntryPrice: round2(p.price),
		ExitPrice:  round2(bar.Close),
		ProfitPct:  round2(pct),
		Type:       p.side,
	}
}

// TrackPositions replays signals over bars. Only a direct flip between
// Short and Long (a signal delta of +2 or -2) opens or closes a position;
// moves through Neutral leave the position untouched. A flip against an open
// position closes it and opens the opposite side on the same bar's close.
// A position still open at the last bar is reported with ExitDate "open".
func TrackPositions(bars []model.Bar, sig Signals) (*Ledger, error) {
	if err := sig.check(len(bars)); err != nil {
		return nil, err
	}

	led := &Ledger{Events: make([]bool, len(bars))}
	pos := position{side: Flat}

	for t := sig.Start + 1; t < len(bars); t++ {
		var want Side
		switch sig.Values[t] - sig.Values[t-1] {
		case 2:
			want = LongSide
		case -2:
			want = ShortSide
		default:
			continue
		}
		if pos.side == want {
			continue
		}

		bar := &bars[t]
		if pos.side != Flat {
			led.Trades = append(led.Trades, pos.close(bar, bar.Day()))
		}
		pos = position{side: want, price: bar.Close, date: bar.Day()}
		led.Events[t] = true
	}

	if pos.side != Flat && len(bars) > 0 {
		led.Trades = append(led.Trades, pos.close(&bars[len(bars)-1], OpenExitDate))
	}
	return led, nil
}
