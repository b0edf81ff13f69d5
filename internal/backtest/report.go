package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is bumped whenever a report field changes meaning.
const SchemaVersion = 1

// Report is the performance summary of one strategy run.
type Report struct {
	SchemaVersion int          `json:"schema_version"`
	Symbol        string       `json:"symbol,omitempty"`
	Strategy      string       `json:"strategy,omitempty"`
	Period        string       `json:"period,omitempty"`
	Parameters    ParameterSet `json:"parameters"`

	TotalReturnPct  float64 `json:"total_return_pct"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	WinRatePct      float64 `json:"win_rate_pct"`
	TotalTrades     int     `json:"total_trades"`
	AvgProfitPct    float64 `json:"avg_profit_pct"`
	AvgLossPct      float64 `json:"avg_loss_pct"`
	ProfitLossRatio float64 `json:"profit_loss_ratio"`
	SharpeRatio     float64 `json:"sharpe_ratio"`

	Trades      []Trade   `json:"trades"`
	EquityCurve []float64 `json:"equity_curve"`
	Dates       []string  `json:"dates"`
	LastUpdated time.Time `json:"last_updated"`
}

// RankedResult is one optimizer entry: a parameter set and its headline
// metrics.
type RankedResult struct {
	Parameters     ParameterSet `json:"parameters"`
	TotalReturnPct float64      `json:"total_return_pct"`
	SharpeRatio    float64      `json:"sharpe_ratio"`
	WinRatePct     float64      `json:"win_rate_pct"`
	MaxDrawdownPct float64      `json:"max_drawdown_pct"`
	TotalTrades    int          `json:"total_trades"`
}

func rankedFrom(params ParameterSet, r *Report) RankedResult {
	return RankedResult{
		Parameters:     params,
		TotalReturnPct: r.TotalReturnPct,
		SharpeRatio:    r.SharpeRatio,
		WinRatePct:     r.WinRatePct,
		MaxDrawdownPct: r.MaxDrawdownPct,
		TotalTrades:    r.TotalTrades,
	}
}

// OptimizationReport ranks the best parameter sets of a grid search.
type OptimizationReport struct {
	SchemaVersion int            `json:"schema_version"`
	Symbol        string         `json:"symbol,omitempty"`
	Strategy      string         `json:"strategy"`
	Period        string         `json:"period,omitempty"`
	TopResults    []RankedResult `json:"top_results"`
	// ParameterCount is the size of the grid, skipped combinations included.
	ParameterCount int `json:"parameter_count"`
	// EvaluatedCount is how many combinations produced a report.
	EvaluatedCount int       `json:"evaluated_count"`
	Partial        bool      `json:"partial"`
	LastUpdated    time.Time `json:"last_updated"`
}

// StrategyResult pairs a strategy's report with its composite score.
type StrategyResult struct {
	Report *Report `json:"report"`
	Score  float64 `json:"score"`
}

// CalculationBasis names the scoring used for weights.
const CalculationBasis = "composite_score"

// WeightReport is the allocation across strategies.
type WeightReport struct {
	SchemaVersion    int                       `json:"schema_version"`
	Symbol           string                    `json:"symbol,omitempty"`
	Period           string                    `json:"period,omitempty"`
	Weights          map[string]float64        `json:"weights"`
	StrategyResults  map[string]StrategyResult `json:"strategy_results"`
	CalculationBasis string                    `json:"calculation_basis"`
	LastUpdated      time.Time                 `json:"last_updated"`
}

func round2(v float64) float64 { return roundTo(v, 2) }
func round4(v float64) float64 { return roundTo(v, 4) }

// roundTo rounds half away from zero in decimal, so 2.675 becomes 2.68
// rather than the binary-float 2.67.
func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
