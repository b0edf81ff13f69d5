package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"trading-backtestv1/internal/backtest"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(18)

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func signed(v float64, suffix string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64) + suffix
	switch {
	case v > 0:
		return gainStyle.Render("+" + s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return s
}

// formatParams prints parameters sorted by key.
func formatParams(p backtest.ParameterSet) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}

func renderReport(r *backtest.Report) string {
	open := 0
	for _, t := range r.Trades {
		if t.IsOpen() {
			open++
		}
	}
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s · %s · %s", r.Symbol, r.Strategy, r.Period)),
		row("parameters", formatParams(r.Parameters)),
		"",
		row("total return", signed(r.TotalReturnPct, "%")),
		row("max drawdown", strconv.FormatFloat(r.MaxDrawdownPct, 'f', 2, 64)+"%"),
		row("sharpe ratio", strconv.FormatFloat(r.SharpeRatio, 'f', 2, 64)),
		row("trades", fmt.Sprintf("%d (%d open)", r.TotalTrades, open)),
		row("win rate", strconv.FormatFloat(r.WinRatePct, 'f', 2, 64)+"%"),
		row("avg profit", signed(r.AvgProfitPct, "%")),
		row("avg loss", signed(r.AvgLossPct, "%")),
		row("profit/loss", strconv.FormatFloat(r.ProfitLossRatio, 'f', 2, 64)),
		row("bars", strconv.Itoa(len(r.Dates))),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderOptimization(r *backtest.OptimizationReport) string {
	header := fmt.Sprintf("%s · %s · %s  (%d/%d combinations evaluated)",
		r.Symbol, r.Strategy, r.Period, r.EvaluatedCount, r.ParameterCount)
	lines := []string{titleStyle.Render(header)}
	if r.Partial {
		lines = append(lines, lossStyle.Render("partial: the search stopped before every combination ran"))
	}
	lines = append(lines, "")
	if len(r.TopResults) == 0 {
		lines = append(lines, mutedStyle.Render("no combination produced a result"))
	}
	for i, res := range r.TopResults {
		lines = append(lines, fmt.Sprintf("%d. %s  return %s  sharpe %.2f  win %.2f%%  mdd %.2f%%  trades %d",
			i+1, formatParams(res.Parameters), signed(res.TotalReturnPct, "%"),
			res.SharpeRatio, res.WinRatePct, res.MaxDrawdownPct, res.TotalTrades))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderWeights(r *backtest.WeightReport) string {
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

	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s · %s · weights by %s", r.Symbol, r.Period, r.CalculationBasis)),
		"",
	}
	for _, n := range names {
		res := r.StrategyResults[n]
		ret := 0.0
		if res.Report != nil {
			ret = res.Report.TotalReturnPct
		}
		lines = append(lines, row(n, fmt.Sprintf("%6.2f%%  score %.4f  return %s",
			r.Weights[n]*100, res.Score, signed(ret, "%"))))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderCatalog(c *backtest.Catalog) string {
	var lines []string
	for _, name := range c.Names() {
		s, err := c.Lookup(name)
		if err != nil {
			continue
		}
		lines = append(lines, titleStyle.Render(name))
		lines = append(lines, row("defaults", formatParams(s.Defaults())))
		grid := s.Grid()
		for _, k := range s.Keys() {
			vals := make([]string, len(grid[k]))
			for i, v := range grid[k] {
				vals[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
			lines = append(lines, row("  "+k, strings.Join(vals, ", ")))
		}
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
