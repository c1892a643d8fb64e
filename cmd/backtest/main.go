// cmd/backtest replays historical candles from SQLite through the state
// builder and strategy evaluator for one strategy configuration, printing
// its trade-level outcome and aggregate metrics.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTC-PERPETUAL --start=2024-01-01T00:00:00Z --end=2024-02-01T00:00:00Z
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"perpquant/internal/backtest"
	"perpquant/internal/logger"
	"perpquant/internal/model"
	sqlitestore "perpquant/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("backtest", slog.LevelWarn)

	symbol := flag.String("symbol", "BTC-PERPETUAL", "Instrument symbol")
	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	startStr := flag.String("start", "", "RFC3339 start timestamp (required)")
	endStr := flag.String("end", "", "RFC3339 end timestamp (required)")

	require5m := flag.Bool("require-5m-align", false, "Require 5m trend alignment with 15m")
	require60m := flag.Bool("require-60m-align", false, "Require 60m trend alignment with 15m")
	entryTrigger := flag.String("entry-trigger", "either", "Entry trigger: choch, bos, or either")
	rrTarget := flag.Float64("rr-target", 2.0, "Risk:reward target")
	slBuffer := flag.Float64("sl-atr-buffer", 0.3, "Stop-loss ATR buffer multiplier")
	timeoutMin := flag.Int("timeout-min", 0, "Position timeout in minutes (0=off)")
	flag.Parse()

	if *startStr == "" || *endStr == "" {
		log.Fatal("[backtest] --start and --end are required")
	}
	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		log.Fatalf("[backtest] invalid --start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, *endStr)
	if err != nil {
		log.Fatalf("[backtest] invalid --end: %v", err)
	}

	store, err := sqlitestore.New(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	cfg := model.StrategyConfig{
		Require5mAlign:  *require5m,
		Require60mAlign: *require60m,
		EntryTrigger:    model.EntryTrigger(*entryTrigger),
		RRTarget:        *rrTarget,
		SLATRBuffer:     *slBuffer,
		TimeoutMin:      *timeoutMin,
		MinRiskPct:      0.001,
		TakerFeeBps:     5,
		SlippageBps:     2,
	}

	result, err := backtest.Run(context.Background(), store, *symbol, start, end, cfg, nil)
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	for i, t := range result.Trades {
		if i >= 20 {
			fmt.Printf("  ... %d more trades\n", len(result.Trades)-20)
			break
		}
		pnl := 0.0
		if t.PnLPct != nil {
			pnl = *t.PnLPct
		}
		fmt.Printf("  [%s] %-5s entry=%.2f result=%-10s pnl=%.3f%%\n",
			t.OpenedAt.Format("2006-01-02 15:04"), t.Side, t.Entry, t.Result, pnl)
	}

	m := result.Metrics
	fmt.Println()
	fmt.Println("==== BACKTEST SUMMARY ====")
	fmt.Printf("  Symbol:          %s\n", *symbol)
	fmt.Printf("  Range:           %s -> %s\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
	fmt.Printf("  Trades:          %d (wins=%d losses=%d)\n", m.Trades, m.Wins, m.Losses)
	fmt.Printf("  Win rate:        %.2f%%\n", m.WinRatePct)
	fmt.Printf("  Total PnL:       %.3f%%\n", m.TotalPnLPct)
	fmt.Printf("  Expectancy:      %.4f%%\n", m.ExpectancyPct)
	fmt.Printf("  Profit factor:   %.3f\n", m.ProfitFactor)
	fmt.Printf("  Max drawdown:    %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("  Avg duration:    %.1f min\n", m.AvgDurationMin)
}
