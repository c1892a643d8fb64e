// cmd/optimize runs one grid-search optimizer pass: it backtests every
// pruned knob combination over the configured training window, ranks the
// drawdown-filtered survivors, and re-validates the top few on a disjoint
// out-of-sample window.
package main

import (
	"context"
	"log"
	"log/slog"

	"perpquant/internal/config"
	"perpquant/internal/logger"
	"perpquant/internal/metrics"
	"perpquant/internal/optimizer"
	sqlitestore "perpquant/internal/store/sqlite"
)

func main() {
	slogger := logger.Init("optimize", slog.LevelInfo)

	cfg, err := config.LoadOptimizer()
	if err != nil {
		log.Fatalf("[optimize] config: %v", err)
	}

	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[optimize] sqlite open failed: %v", err)
	}
	defer store.Close()

	health := metrics.NewHealthStatus()
	health.SetSQLiteOK(true)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	defer metricsSrv.Stop(context.Background())
	mtx := metrics.NewMetrics()

	opts := optimizer.Options{
		Symbol:     cfg.Symbol,
		TrainStart: cfg.TrainStart,
		TrainEnd:   cfg.TrainEnd,
		DDLimitPct: cfg.DDLimitPct,
		OOSDays:    cfg.OOSDays,
		OOSTopN:    cfg.OOSTopN,
		OOSStart:   cfg.OOSStartTS,
		OOSEnd:     cfg.OOSEndTS,
		SaveAll:    cfg.SaveAll,
	}

	run, err := optimizer.Run(context.Background(), slogger, store, store, opts, mtx)
	if err != nil {
		log.Fatalf("[optimize] run failed: %v", err)
	}

	slogger.Info("optimizer run complete",
		"run_id", run.ID, "symbol", run.Symbol,
		"total_configs", run.TotalConfigs, "valid_configs", run.ValidConfigs)
}
