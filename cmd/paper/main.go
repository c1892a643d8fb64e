// cmd/paper runs the paper-trade worker: it resumes or creates a PaperRun
// from a ranked optimizer run, then polls forever simulating every active
// config's account on newly closed candles until SIGTERM.
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
	"perpquant/internal/logger"
	"perpquant/internal/metrics"
	"perpquant/internal/model"
	"perpquant/internal/notification"
	"perpquant/internal/paper/runner"
	redisstore "perpquant/internal/store/redis"
	sqlitestore "perpquant/internal/store/sqlite"
)

func main() {
	slogger := logger.Init("paper", slog.LevelInfo)

	cfg, err := config.LoadPaper()
	if err != nil {
		log.Fatalf("[paper] config: %v", err)
	}

	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[paper] sqlite open failed: %v", err)
	}
	defer store.Close()

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword)
	defer cache.Close()

	var notifier model.Notifier
	notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewMulti(notifier, notification.NewWebhookNotifier(cfg.WebhookURL))
	}

	symbol := os.Getenv("SYMBOL")
	if symbol == "" {
		symbol = "BTC-PERPETUAL"
	}

	mtx := metrics.NewMetrics()
	r := runner.New(slogger, store, store, store, notifier, cache, mtx, runner.Options{
		Symbol:              symbol,
		RunID:               cfg.RunID,
		OptimizerRunID:      cfg.OptimizerRunID,
		TopN:                cfg.TopN,
		BalanceStart:        cfg.BalanceStart,
		PollInterval:        time.Duration(cfg.PollSeconds) * time.Second,
		SafeLagMin:          cfg.SafeLagMin,
		MinTradesBeforeKill: cfg.MinTradesBeforeKill,
		KillMaxDDPct:        cfg.KillMaxDDPct,
		KillMinPF:           cfg.KillMinPF,
		KillMinPnLPct:       cfg.KillMinPnLPct,
	})

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

	if err := r.Init(ctx); err != nil {
		log.Fatalf("[paper] init failed: %v", err)
	}

	slogger.Info("paper-trade worker starting", "symbol", symbol)
	if err := r.Run(ctx); err != nil {
		log.Fatalf("[paper] run failed: %v", err)
	}
	slogger.Info("paper-trade worker stopped")
}
