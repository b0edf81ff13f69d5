package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/app"
	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/notification"
	"trading-backtestv1/internal/store/archive"
	"trading-backtestv1/internal/store/redis"
	"trading-backtestv1/internal/store/sqlite"
)

// cliState is shared by the subcommands after the root pre-run.
type cliState struct {
	envFile  string
	logLevel string
	asJSON   bool

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:           "backtest",
		Short:         "Backtest, optimize and weight trading strategies on daily bars",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if st.envFile != "" {
				files = append(files, st.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			level := cfg.Server.LogLevel
			if st.logLevel != "" {
				level = st.logLevel
			}
			st.cfg = cfg
			st.log = logger.InitWriter(os.Stderr, "backtest", logger.ParseLevel(level))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&st.envFile, "env", "", "Env file to load (default .env when present)")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "Override LOG_LEVEL (debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&st.asJSON, "json", false, "Print the raw JSON report instead of a summary")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newOptimizeCmd(st))
	root.AddCommand(newWeightsCmd(st))
	root.AddCommand(newImportCmd(st))
	root.AddCommand(newExportCmd(st))
	root.AddCommand(newStrategiesCmd(st))
	return root
}

func newRunCmd(st *cliState) *cobra.Command {
	var (
		strategy string
		period   string
		params   []string
	)
	cmd := &cobra.Command{
		Use:   "run SYMBOL",
		Short: "Backtest one strategy with explicit or default parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseParams(params)
			if err != nil {
				return err
			}
			return st.withService(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Service.RunBacktest(ctx, args[0], strategy, period, overrides)
				if err != nil {
					return err
				}
				return st.print(cmd.OutOrStdout(), rep, renderReport(rep))
			})
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", backtest.StrategySMACross, "Strategy name")
	cmd.Flags().StringVarP(&period, "period", "p", model.DefaultPeriod, "History period (1y, 6m, 3m, 1m, 1w)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Parameter override key=value (repeatable)")
	return cmd
}

func newOptimizeCmd(st *cliState) *cobra.Command {
	var (
		strategy string
		period   string
		grid     []string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "optimize SYMBOL",
		Short: "Grid-search a strategy's parameters and rank by total return",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseGrid(grid)
			if err != nil {
				return err
			}
			return st.withService(cmd, func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithTimeout(ctx, st.cfg.Engine.OptimizeTimeout)
				defer cancel()

				var progress backtest.ProgressFunc
				if !quiet {
					progress = progressPrinter(cmd.ErrOrStderr())
				}
				rep, err := a.Service.OptimizeStrategy(ctx, args[0], strategy, period, overrides, progress)
				if err != nil {
					return err
				}
				st.notify(ctx, a, notification.OptimizationAlert(rep))
				return st.print(cmd.OutOrStdout(), rep, renderOptimization(rep))
			})
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", backtest.StrategySMACross, "Strategy name")
	cmd.Flags().StringVarP(&period, "period", "p", model.DefaultPeriod, "History period (1y, 6m, 3m, 1m, 1w)")
	cmd.Flags().StringArrayVar(&grid, "grid", nil, "Grid override key=v1,v2,... (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func newWeightsCmd(st *cliState) *cobra.Command {
	var (
		period     string
		strategies []string
	)
	cmd := &cobra.Command{
		Use:   "weights SYMBOL",
		Short: "Backtest strategies with defaults and allocate weights by composite score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withService(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Service.CalculateStrategyWeights(ctx, args[0], period, strategies)
				if err != nil {
					return err
				}
				st.notify(ctx, a, notification.WeightsAlert(rep))
				return st.print(cmd.OutOrStdout(), rep, renderWeights(rep))
			})
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", model.DefaultPeriod, "History period (1y, 6m, 3m, 1m, 1w)")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Strategies to weight (default: all)")
	return cmd
}

func newImportCmd(st *cliState) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "import SYMBOL FILE",
		Short: "Import daily bars from CSV (date,open,high,low,close,volume) or Parquet into SQLite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w, err := sqlite.New(sqlite.WriterConfig{DBPath: st.cfg.Data.SQLitePath, BatchSize: batch})
			if err != nil {
				return err
			}
			defer w.Close()

			n, err := importFile(ctx, w, args[0], args[1])
			if err != nil {
				return err
			}
			st.log.Info("bars imported", "symbol", args[0], "rows", n, "db", st.cfg.Data.SQLitePath)

			if st.cfg.Cache.RedisAddr != "" {
				st.invalidate(ctx, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				successStyle.Render(fmt.Sprintf("imported %d bars for %s", n, strings.ToUpper(args[0]))))
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 500, "Rows per transaction")
	return cmd
}

// importFile loads bars from a .parquet archive or a CSV file.
func importFile(ctx context.Context, w model.BarWriter, symbol, path string) (int, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		bars, err := archive.ReadBars(path, symbol)
		if err != nil {
			return 0, err
		}
		if len(bars) == 0 {
			return 0, fmt.Errorf("no bars for %s in %s", strings.ToUpper(symbol), path)
		}
		if err := w.WriteBars(ctx, symbol, bars); err != nil {
			return 0, err
		}
		return len(bars), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return sqlite.ImportCSV(ctx, w, symbol, f)
}

func newExportCmd(st *cliState) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "export SYMBOL FILE.parquet",
		Short: "Write the configured source's daily bars for a period to a Parquet archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withService(cmd, func(ctx context.Context, a *app.App) error {
				bars, err := a.Sources.History.History(ctx, args[0], period)
				if err != nil {
					return err
				}
				if len(bars) == 0 {
					return fmt.Errorf("%w: no bars for %s", backtest.ErrInsufficientData, strings.ToUpper(args[0]))
				}
				if err := archive.WriteBars(args[1], args[0], bars); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("exported %d bars for %s to %s (%s .. %s)",
					len(bars), strings.ToUpper(args[0]), args[1], bars[0].Day(), bars[len(bars)-1].Day())))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", model.DefaultPeriod, "History period (1y, 6m, 3m, 1m, 1w)")
	return cmd
}

func newStrategiesCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List strategies with their default parameters and grids",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := st.cfg.Catalog()
			if err != nil {
				return err
			}
			if st.asJSON {
				out := map[string]backtest.Override{}
				for _, name := range catalog.Names() {
					s, _ := catalog.Lookup(name)
					out[name] = backtest.Override{Defaults: s.Defaults(), Grid: s.Grid()}
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCatalog(catalog))
			return nil
		},
	}
}

// invalidate drops cached series for symbol so the next run sees the
// imported bars. Cache trouble is logged, not fatal.
func (st *cliState) invalidate(ctx context.Context, symbol string) {
	c, err := redis.NewCachedProvider(redis.CacheConfig{
		Addr:     st.cfg.Cache.RedisAddr,
		Password: st.cfg.Cache.RedisPassword,
		DB:       st.cfg.Cache.RedisDB,
		TTL:      st.cfg.Cache.TTL,
	}, nil, nil, st.log)
	if err != nil {
		st.log.Warn("cache not invalidated", "symbol", symbol, "error", err)
		return
	}
	defer c.Close()
	if err := c.Invalidate(ctx, symbol); err != nil {
		st.log.Warn("cache not invalidated", "symbol", symbol, "error", err)
	}
}

// withService wires the app, runs fn with a signal-aware context and
// releases the sources afterwards.
func (st *cliState) withService(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The CLI serves no /metrics, so collectors go to a private registry.
	a, err := app.New(st.cfg, prometheus.NewRegistry(), st.log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return fmt.Errorf("%s: %w", backtest.Kind(err), err)
	}
	return nil
}

// notify sends alert synchronously; delivery failures are only logged.
func (st *cliState) notify(ctx context.Context, a *app.App, alert notification.Alert) {
	alert.RunID = logger.RunID(ctx)
	if err := a.Notify.Send(ctx, alert); err != nil {
		st.log.Warn("notification failed", "title", alert.Title, "error", err)
	}
}

func (st *cliState) print(w io.Writer, v any, summary string) error {
	if st.asJSON {
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// progressPrinter reports optimizer progress roughly every ten percent.
func progressPrinter(w io.Writer) backtest.ProgressFunc {
	bucket := -1
	return func(done, total int) {
		pct := done * 100 / total
		if pct/10 == bucket && done != total {
			return
		}
		bucket = pct / 10
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  %3d%%  %d/%d combinations", pct, done, total)))
	}
}

// parseParams reads key=value pairs into a parameter set.
func parseParams(pairs []string) (backtest.ParameterSet, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := backtest.ParameterSet{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", p)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --param %q: %w", p, err)
		}
		out[k] = f
	}
	return out, nil
}

// parseGrid reads key=v1,v2,... pairs into a grid.
func parseGrid(pairs []string) (backtest.Grid, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := backtest.Grid{}
	for _, p := range pairs {
		k, list, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" || strings.TrimSpace(list) == "" {
			return nil, fmt.Errorf("invalid --grid %q, want key=v1,v2", p)
		}
		var vals []float64
		for _, s := range strings.Split(list, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid --grid %q: %w", p, err)
			}
			vals = append(vals, f)
		}
		out[k] = vals
	}
	return out, nil
}
