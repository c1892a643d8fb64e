// Package backtest replays historical candles through the state builder and
// strategy evaluator, simulating one account's position lifecycle and
// aggregating metrics. It is grounded on the teacher's
// internal/marketdata/replay.Replayer for the candle-by-candle loop
// structure and on internal/execution/paper.go for the fee/slippage fill
// model, now driven by internal/state and internal/strategy/paper-engine
// rather than the teacher's SMA-crossover strategy and live portfolio.
package backtest

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"perpquant/internal/metrics"
	"perpquant/internal/model"
	paperengine "perpquant/internal/paper/engine"
	"perpquant/internal/state"
	"perpquant/internal/strategy"
	"perpquant/internal/tf"
)

// requiredTFs are the timeframes the evaluator reads. 60 is optional —
// it's only consulted when a config sets Require60mAlign, but state is
// always seeded for it so the evaluator's lookup never needs a config-aware
// conditional seed path.
var requiredTFs = []int{1, 5, 15, 60}

const lookback = 24 * time.Hour

// Result is the outcome of one Run call.
type Result struct {
	Trades  []model.Trade
	Metrics model.BacktestMetrics
}

// Run executes the 5-step replay described for the backtest engine: seed
// state from lookback candles, then walk 1-minute candles in [start, end],
// refreshing state, managing one open position, and evaluating new entries.
// mtx is optional; pass nil to skip instrumentation.
func Run(ctx context.Context, store model.CandleStore, symbol string, start, end time.Time, cfg model.StrategyConfig, mtx *metrics.Metrics) (Result, error) {
	runStart := time.Now()
	if mtx != nil {
		defer func() { mtx.BacktestDur.Observe(time.Since(runStart).Seconds()) }()
	}

	candlesByTF := make(map[int][]model.Candle, len(requiredTFs))
	for _, t := range requiredTFs {
		cs, err := store.ReadCandles(ctx, symbol, t, start.Add(-lookback), end)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: read candles tf=%d: %w", t, err)
		}
		candlesByTF[t] = cs
	}

	oneMin := candlesByTF[1]
	seedEnd := 0
	for seedEnd < len(oneMin) && oneMin[seedEnd].TS.Before(start) {
		seedEnd++
	}
	if seedEnd >= len(oneMin) {
		return Result{}, fmt.Errorf("backtest: no 1-minute candles in range")
	}

	cache := make(strategy.StateCache, len(requiredTFs))
	tfIdx := make(map[int]int, len(requiredTFs))
	for _, t := range requiredTFs {
		idx := upperBound(candlesByTF[t], start)
		tfIdx[t] = idx
		if idx > 0 {
			if st, ok := buildState(mtx, symbol, t, candlesByTF[t][:idx]); ok {
				cache[t] = st
			}
		}
	}

	var trades []model.Trade
	var open *model.Position
	var openTrade *model.Trade
	tradeSeq := int64(0)

	equity := 100.0
	maxEquity := 100.0
	var maxDD float64
	var totalDurationMin float64

	for i := seedEnd; i < len(oneMin); i++ {
		candle := oneMin[i]
		if candle.TS.After(end) {
			break
		}

		for _, t := range requiredTFs {
			if t == 1 {
				continue
			}
			if !tf.NearBoundary(candle.TS, t, time.Minute) {
				continue
			}
			idx := upperBound(candlesByTF[t], candle.TS.Add(time.Second))
			if idx > tfIdx[t] {
				tfIdx[t] = idx
				if st, ok := buildState(mtx, symbol, t, candlesByTF[t][:idx]); ok {
					cache[t] = st
				}
			}
		}
		idx1 := upperBound(oneMin, candle.TS.Add(time.Second))
		if st, ok := buildState(mtx, symbol, 1, oneMin[:idx1]); ok {
			cache[1] = st
		}

		if open != nil {
			paperengine.UpdateExcursion(open, candle)
			if exitPx, reason, hit := paperengine.CheckExit(*open, candle); hit {
				closeTrade(&trades, openTrade, open, exitPx, string(reason), candle.TS, cfg, &equity)
				open, openTrade = nil, nil
			} else if cfg.TimeoutMin > 0 && candle.TS.Sub(open.OpenedAt) >= time.Duration(cfg.TimeoutMin)*time.Minute {
				closeTrade(&trades, openTrade, open, candle.Close, "timeout", candle.TS, cfg, &equity)
				open, openTrade = nil, nil
			}
		}

		if open == nil {
			if sig := strategy.Evaluate(cache, candle, cfg); sig != nil {
				tradeSeq++
				tradeID := fmt.Sprintf("bt-%d", tradeSeq)
				p := paperengine.OpenPosition(sig.Side, sig.Entry, sig.SL, sig.TP, equity, cfg.MinRiskPct, cfg, candle.TS, tradeID)
				open = &p
				openTrade = &model.Trade{
					ID: tradeSeq, Side: sig.Side, OpenedAt: candle.TS,
					Entry: p.Entry, Size: p.Size, SL: p.StopLoss, TP: p.TakeProfit,
				}
			}
		}

		var dd float64
		maxEquity, dd = paperengine.UpdateEquityAndDD(equity, maxEquity)
		if dd > maxDD {
			maxDD = dd
		}
	}

	if open != nil {
		lastCandle := oneMin[len(oneMin)-1]
		closeTrade(&trades, openTrade, open, lastCandle.Close, "timeout", lastCandle.TS, cfg, &equity)
	}

	for _, t := range trades {
		if t.ClosedAt != nil {
			totalDurationMin += t.ClosedAt.Sub(t.OpenedAt).Minutes()
		}
	}

	if mtx != nil {
		mtx.BacktestTradesTotal.Add(float64(len(trades)))
	}
	return Result{Trades: trades, Metrics: computeMetrics(trades, maxDD, totalDurationMin)}, nil
}

// buildState wraps state.Build with optional duration/count instrumentation,
// keeping the pure recompute itself free of a metrics dependency.
func buildState(mtx *metrics.Metrics, symbol string, tfMin int, candles []model.Candle) (model.TimeframeState, bool) {
	if mtx == nil {
		return state.Build(symbol, tfMin, candles)
	}
	started := time.Now()
	st, ok := state.Build(symbol, tfMin, candles)
	mtx.StateBuildDur.Observe(time.Since(started).Seconds())
	mtx.StateRecomputeTotal.WithLabelValues(strconv.Itoa(tfMin)).Inc()
	return st, ok
}

func closeTrade(trades *[]model.Trade, openTrade *model.Trade, pos *model.Position, exitPx float64, reason string, closedAt time.Time, cfg model.StrategyConfig, equity *float64) {
	pnlAbs, pnlPct, fees, result := paperengine.ClosePosition(*pos, exitPx, cfg)
	t := *openTrade
	t.ClosedAt = &closedAt
	t.Exit = &exitPx
	t.PnLAbs = &pnlAbs
	t.PnLPct = &pnlPct
	t.FeesAbs = fees
	t.Result = result
	t.ExitReason = reason
	*trades = append(*trades, t)
	*equity += pnlAbs
}

func computeMetrics(trades []model.Trade, maxDD, totalDurationMin float64) model.BacktestMetrics {
	var wins, losses int
	var grossWins, grossLosses, totalPnLPct float64
	var grossWinPct, grossLossPct float64
	for _, t := range trades {
		if t.PnLPct == nil {
			continue
		}
		totalPnLPct += *t.PnLPct
		switch t.Result {
		case model.ResultWin:
			wins++
			grossWins += *t.PnLAbs
			grossWinPct += *t.PnLPct
		case model.ResultLoss:
			losses++
			grossLosses += -*t.PnLAbs
			grossLossPct += -*t.PnLPct
		}
	}
	n := len(trades)
	m := model.BacktestMetrics{
		Trades:         n,
		Wins:           wins,
		Losses:         losses,
		TotalPnLPct:    totalPnLPct,
		MaxDrawdownPct: maxDD,
	}
	if n > 0 {
		m.WinRatePct = float64(wins) / float64(n) * 100
		m.AvgDurationMin = totalDurationMin / float64(n)
	}
	winRate := m.WinRatePct / 100
	avgWinPct := 0.0
	if wins > 0 {
		avgWinPct = grossWinPct / float64(wins)
	}
	avgLossPct := 0.0
	if losses > 0 {
		avgLossPct = grossLossPct / float64(losses)
	}
	m.ExpectancyPct = winRate*avgWinPct - (1-winRate)*avgLossPct

	switch {
	case grossLosses == 0 && grossWins > 0:
		m.ProfitFactor = math.Inf(1)
	case grossLosses == 0:
		m.ProfitFactor = 0
	default:
		m.ProfitFactor = grossWins / grossLosses
	}
	return m
}

func upperBound(candles []model.Candle, ts time.Time) int {
	lo, hi := 0, len(candles)
	for lo < hi {
		mid := (lo + hi) / 2
		if candles[mid].TS.Before(ts) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
