package gateway

import "trading-backtestv1/internal/backtest"

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	Symbol   string                `json:"symbol"`
	Strategy string                `json:"strategy"`
	Period   string                `json:"period"`
	Params   backtest.ParameterSet `json:"params"`
}

// OptimizeRequest is the body of POST /api/optimize and the first message
// a client sends on /ws/optimize.
type OptimizeRequest struct {
	Symbol    string        `json:"symbol"`
	Strategy  string        `json:"strategy"`
	Period    string        `json:"period"`
	ParamGrid backtest.Grid `json:"param_grid"`
}

// WeightsRequest is the body of POST /api/weights.
type WeightsRequest struct {
	Symbol     string   `json:"symbol"`
	Period     string   `json:"period"`
	Strategies []string `json:"strategies"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StrategyInfo is one entry of GET /api/strategies.
type StrategyInfo struct {
	Name     string                `json:"name"`
	Keys     []string              `json:"keys"`
	Defaults backtest.ParameterSet `json:"defaults"`
	Grid     backtest.Grid         `json:"grid"`
}

// Websocket message types on /ws/optimize.
const (
	MsgProgress = "progress"
	MsgResult   = "result"
	MsgError    = "error"
)

// StreamMsg is a server-to-client frame on /ws/optimize.
type StreamMsg struct {
	Type   string                       `json:"type"`
	Done   int                          `json:"done,omitempty"`
	Total  int                          `json:"total,omitempty"`
	Report *backtest.OptimizationReport `json:"report,omitempty"`
	Error  string                       `json:"error,omitempty"`
	Kind   string                       `json:"kind,omitempty"`
}
