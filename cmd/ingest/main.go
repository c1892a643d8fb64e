// cmd/ingest runs the ingest worker: either a one-shot backfill over an
// explicit range, or a continuous poll loop that keeps the candle store
// at-or-behind the most recent closed boundary on every configured
// timeframe, until SIGTERM.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perpquant/internal/config"
	"perpquant/internal/exchange/rest"
	"perpquant/internal/ingest"
	"perpquant/internal/logger"
	"perpquant/internal/metrics"
	redisstore "perpquant/internal/store/redis"
	sqlitestore "perpquant/internal/store/sqlite"
)

func main() {
	slogger := logger.Init("ingest", slog.LevelInfo)

	cfg, err := config.LoadIngest()
	if err != nil {
		log.Fatalf("[ingest] config: %v", err)
	}

	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[ingest] sqlite open failed: %v", err)
	}
	defer store.Close()

	cursorCache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword)
	defer cursorCache.Close()

	mtx := metrics.NewMetrics()
	exchange := rest.New(rest.Config{BaseURL: os.Getenv("EXCHANGE_BASE_URL")})
	engine := ingest.New(slogger, exchange, store, cursorCache, mtx, cfg.Symbol, cfg.Timeframes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slogger.Info("shutdown signal received")
		cancel()
	}()

	health := metrics.NewHealthStatus()
	health.SetSQLiteOK(true)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	defer metricsSrv.Stop(context.Background())

	if cfg.Backfill {
		slogger.Info("running backfill", "symbol", cfg.Symbol, "start", cfg.BackfillStartTS, "end", cfg.BackfillEndTS)
		if cfg.DryRun {
			slogger.Info("dry run, skipping backfill execution")
			return
		}
		if err := engine.Backfill(ctx, cfg.BackfillStartTS, cfg.BackfillEndTS); err != nil {
			log.Fatalf("[ingest] backfill failed: %v", err)
		}
		slogger.Info("backfill complete")
		return
	}

	slogger.Info("starting continuous ingest", "symbol", cfg.Symbol, "timeframes", cfg.Timeframes, "poll_seconds", cfg.PollSeconds)
	health.SetLastPollAt(time.Now())
	engine.RunContinuous(ctx, time.Duration(cfg.PollSeconds)*time.Second)
	slogger.Info("ingest worker stopped")
}
