// Package optimizer runs a grid search of StrategyConfig knob combinations
// against a training window, ranks survivors by a drawdown-filtered score,
// and re-validates the top few on a disjoint out-of-sample window. It is
// grounded on the walkforward IS/OOS split
// (other_examples/.../libs-walkforward-engine.go.go) for the OOS re-run
// shape, driving internal/backtest instead of that example's own engine.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"perpquant/internal/backtest"
	"perpquant/internal/metrics"
	"perpquant/internal/model"
	"perpquant/internal/tf"

	"github.com/google/uuid"
)

// Options configures one optimizer run.
type Options struct {
	Symbol     string
	TrainStart time.Time
	TrainEnd   time.Time
	DDLimitPct float64
	OOSDays    int
	OOSTopN    int
	OOSStart   time.Time // zero = derive from TrainEnd/OOSDays
	OOSEnd     time.Time
	SaveAll    bool
}

const maxWorkers = 8

// Run executes the full optimizer pipeline and persists every stage
// independently: the run row is created first so its id is captured before
// any dependent write, and a failure in one persistence step does not abort
// the rest. mtx is optional; pass nil to skip instrumentation.
func Run(ctx context.Context, log *slog.Logger, candles model.CandleStore, store model.OptimizerStore, opt Options, mtx *metrics.Metrics) (model.OptimizerRun, error) {
	if mtx != nil {
		mtx.OptimizerRunsTotal.Inc()
		runStart := time.Now()
		defer func() { mtx.OptimizerRunDur.Observe(time.Since(runStart).Seconds()) }()
	}

	run := model.OptimizerRun{
		ID:           uuid.NewString(),
		Symbol:       opt.Symbol,
		TrainStartTS: opt.TrainStart,
		TrainEndTS:   opt.TrainEnd,
		DDLimitPct:   opt.DDLimitPct,
	}
	if err := store.CreateOptimizerRun(ctx, run); err != nil {
		return run, fmt.Errorf("optimizer: create run: %w", err)
	}

	grid := GenerateGrid()
	results := runGridConcurrently(ctx, candles, opt.Symbol, opt.TrainStart, opt.TrainEnd, grid, mtx)
	if mtx != nil {
		mtx.OptimizerConfigsTried.Add(float64(len(grid)))
	}

	run.TotalConfigs = len(grid)
	for _, r := range results {
		if !r.errored {
			run.ValidConfigs++
		}
	}
	if err := store.PatchOptimizerRunCounts(ctx, run.ID, run.TotalConfigs, run.ValidConfigs); err != nil {
		log.Error("optimizer: patch run counts failed", "run_id", run.ID, "error", err)
	}

	survivors := rank(results, opt.DDLimitPct)
	topConfigs := make([]model.TopConfig, 0, len(survivors))
	for i, s := range survivors {
		topConfigs = append(topConfigs, model.TopConfig{
			RunID: run.ID, Rank: i + 1, Score: s.score, Config: s.cfg, Metrics: s.metrics,
		})
	}
	if err := store.SaveTopConfigs(ctx, topConfigs); err != nil {
		log.Error("optimizer: save top configs failed", "run_id", run.ID, "error", err)
	}

	if opt.SaveAll {
		all := make([]model.AllConfig, 0, len(results))
		for _, r := range results {
			all = append(all, model.AllConfig{RunID: run.ID, Config: r.cfg, Metrics: r.metrics, Errored: r.errored})
		}
		if err := store.SaveAllConfigs(ctx, all); err != nil {
			log.Error("optimizer: save all configs failed", "run_id", run.ID, "error", err)
		}
	}

	oosResults := runOOS(ctx, log, candles, opt, run, topConfigs, mtx)
	if len(oosResults) > 0 {
		if err := store.SaveOOSResults(ctx, oosResults); err != nil {
			log.Error("optimizer: save OOS results failed", "run_id", run.ID, "error", err)
		}
	}

	return run, nil
}

func runGridConcurrently(ctx context.Context, candles model.CandleStore, symbol string, start, end time.Time, grid []model.StrategyConfig, mtx *metrics.Metrics) []scoredConfig {
	results := make([]scoredConfig, len(grid))
	workers := maxWorkers
	if n := runtime.NumCPU(); n < workers {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, cfg := range grid {
		i, cfg := i, cfg
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := backtest.Run(ctx, candles, symbol, start, end, cfg, mtx)
			if err != nil {
				results[i] = scoredConfig{cfg: cfg, errored: true}
				return
			}
			results[i] = scoredConfig{cfg: cfg, metrics: res.Metrics}
		}()
	}
	wg.Wait()
	return results
}

func runOOS(ctx context.Context, log *slog.Logger, candles model.CandleStore, opt Options, run model.OptimizerRun, topConfigs []model.TopConfig, mtx *metrics.Metrics) []model.OOSResult {
	oosStart, oosEnd := opt.OOSStart, opt.OOSEnd
	if oosStart.IsZero() || oosEnd.IsZero() {
		oosStart = tf.AddMinutes(opt.TrainEnd, 1)
		oosEnd = tf.EndOfDay(tf.AddDays(opt.TrainEnd, opt.OOSDays))
	}

	n := opt.OOSTopN
	if n > len(topConfigs) {
		n = len(topConfigs)
	}

	var out []model.OOSResult
	for i := 0; i < n; i++ {
		tc := topConfigs[i]
		res, err := backtest.Run(ctx, candles, opt.Symbol, oosStart, oosEnd, tc.Config, mtx)
		if err != nil {
			log.Warn("optimizer: OOS backtest failed", "run_id", run.ID, "rank", tc.Rank, "error", err)
			continue
		}
		out = append(out, model.OOSResult{
			RunID: run.ID, Rank: tc.Rank, Symbol: opt.Symbol,
			WindowStart: oosStart, WindowEnd: oosEnd, Metrics: res.Metrics,
		})
		if res.Metrics.TotalPnLPct < 0 || res.Metrics.MaxDrawdownPct > tc.Metrics.MaxDrawdownPct {
			if mtx != nil {
				mtx.OptimizerOOSWarnings.Inc()
			}
			log.Warn("optimizer: OOS stability warning", "run_id", run.ID, "rank", tc.Rank,
				"oos_pnl_pct", res.Metrics.TotalPnLPct, "oos_dd_pct", res.Metrics.MaxDrawdownPct, "train_dd_pct", tc.Metrics.MaxDrawdownPct)
		}
	}
	return out
}
