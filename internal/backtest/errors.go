package backtest

import (
	"context"
	"errors"
)

// Error kinds surfaced by the engine. Every error returned from this package
// wraps exactly one of these, so callers can branch with errors.Is.
var (
	// ErrInsufficientData: empty or too-short price series.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnsupportedStrategy: unknown strategy name or missing required parameter.
	ErrUnsupportedStrategy = errors.New("unsupported strategy")
	// ErrComputation: invalid prices or a numeric singularity that could not
	// be resolved to a safe default.
	ErrComputation = errors.New("computation error")
	// ErrConstraintViolation: parameter combination breaks a strategy invariant
	// (e.g. short_window >= long_window).
	ErrConstraintViolation = errors.New("constraint violation")
)

// Stable snake-case error kinds for wire payloads.
const (
	KindInsufficientData    = "insufficient_data"
	KindUnsupportedStrategy = "unsupported_strategy"
	KindComputation         = "computation_error"
	KindConstraintViolation = "constraint_violation"
	KindCanceled            = "canceled"
	KindUpstream            = "upstream_error"
)

// Kind maps err to its wire kind. Errors that wrap none of the engine
// sentinels are reported as upstream errors, since the only other failure
// source in a run is the history provider.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrUnsupportedStrategy):
		return KindUnsupportedStrategy
	case errors.Is(err, ErrComputation):
		return KindComputation
	case errors.Is(err, ErrConstraintViolation):
		return KindConstraintViolation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUpstream
	}
}
