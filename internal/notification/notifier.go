// Package notification delivers run summaries to external channels
// (webhooks, Telegram) once an optimization or weighting finishes.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"trading-backtestv1/internal/backtest"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "INFO"
	AlertWarning AlertLevel = "WARNING"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
	RunID   string     `json:"run_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, "alert",
		"level", string(alert.Level),
		"title", alert.Title,
		"symbol", alert.Symbol,
		"run_id", alert.RunID)
	return nil
}

// Multi fans an alert out to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config selects the backends. Empty fields disable the matching backend.
type Config struct {
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
	TelegramURL    string // Bot API base, defaults to api.telegram.org
}

// New builds the configured notifier. With nothing configured it returns a
// LogNotifier so callers never need a nil check.
func New(cfg Config, log *slog.Logger) Notifier {
	var out Multi
	if cfg.WebhookURL != "" {
		out = append(out, NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, NewTelegramNotifier(cfg.TelegramURL, cfg.TelegramToken, cfg.TelegramChatID))
	}
	if len(out) == 0 {
		return NewLogNotifier(log)
	}
	return out
}

// OptimizationAlert summarizes a grid search.
func OptimizationAlert(r *backtest.OptimizationReport) Alert {
	a := Alert{
		Level:  AlertInfo,
		Title:  fmt.Sprintf("%s %s optimization finished", r.Symbol, r.Strategy),
		Symbol: r.Symbol,
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d combinations evaluated over %s", r.EvaluatedCount, r.ParameterCount, r.Period)
	if r.Partial {
		a.Level = AlertWarning
		b.WriteString(" (partial)")
	}
	if len(r.TopResults) > 0 {
		best := r.TopResults[0]
		fmt.Fprintf(&b, "\nbest: %s return %.2f%% sharpe %.2f", formatParams(best.Parameters), best.TotalReturnPct, best.SharpeRatio)
	}
	a.Message = b.String()
	return a
}

// WeightsAlert summarizes a strategy allocation, largest weight first.
func WeightsAlert(r *backtest.WeightReport) Alert {
	names := make([]string, 0, len(r.Weights))
	for n := range r.Weights {
		names = append(names, n)
	}
	sort.Slice(names, func(a, b int) bool {
		if r.Weights[names[a]] != r.Weights[names[b]] {
			return r.Weights[names[a]] > r.Weights[names[b]]
		}
		return names[a] < names[b]
	})
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s %.2f%%", n, r.Weights[n]*100)
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s strategy weights (%s)", r.Symbol, r.Period),
		Message: strings.Join(parts, ", "),
		Symbol:  r.Symbol,
	}
}

func formatParams(p backtest.ParameterSet) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return strings.Join(parts, " ")
}
