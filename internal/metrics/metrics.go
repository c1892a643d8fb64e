// Package metrics exposes Prometheus counters/histograms/gauges and a
// /healthz liveness endpoint, grounded on the teacher's internal/metrics
// package: the same Metrics-struct-plus-NewMetrics registration idiom and
// HealthStatus/Server shape, generalized from mdengine's tick-pipeline
// metrics to the ingest/state/backtest/optimizer/paper-runner surface.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments shared across the ingest, state,
// backtest, optimizer, and paper-runner processes. A single binary may only
// touch the subset relevant to it.
type Metrics struct {
	// Ingest engine
	CandlesUpsertedTotal *prometheus.CounterVec // labels: tf
	FetchErrorsTotal     *prometheus.CounterVec // labels: tf
	PagesAbortedTotal    *prometheus.CounterVec // labels: tf
	IngestCursorLagSec   *prometheus.GaugeVec   // labels: tf

	// State builder
	StateBuildDur       prometheus.Histogram
	StateRecomputeTotal *prometheus.CounterVec // labels: tf

	// Backtest engine
	BacktestDur         prometheus.Histogram
	BacktestTradesTotal prometheus.Counter

	// Optimizer
	OptimizerRunsTotal      prometheus.Counter
	OptimizerConfigsTried   prometheus.Counter
	OptimizerRunDur         prometheus.Histogram
	OptimizerOOSWarnings    prometheus.Counter

	// Paper-trade runner
	PaperTicksTotal      prometheus.Counter
	PaperTradesOpened    *prometheus.CounterVec // labels: config_id
	PaperTradesClosed    *prometheus.CounterVec // labels: config_id, result
	PaperEquity          *prometheus.GaugeVec   // labels: config_id
	PaperDrawdownPct     *prometheus.GaugeVec   // labels: config_id
	PaperKillsTotal      prometheus.Counter
	PaperCheckpointDur   prometheus.Histogram

	// Shared: circuit breaker and store latency
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	SQLiteCommitDur          prometheus.Histogram
}

// NewMetrics registers and returns every instrument.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesUpsertedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpquant_ingest_candles_upserted_total",
			Help: "Total candles upserted into the store, by timeframe",
		}, []string{"tf"}),
		FetchErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpquant_ingest_fetch_errors_total",
			Help: "Exchange fetch-page failures, by timeframe",
		}, []string{"tf"}),
		PagesAbortedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpquant_ingest_pages_aborted_total",
			Help: "Timeframes aborted for exceeding the page-count ceiling",
		}, []string{"tf"}),
		IngestCursorLagSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpquant_ingest_cursor_lag_seconds",
			Help: "Seconds between now and the stored cursor (start of the last closed candle pulled)",
		}, []string{"tf"}),

		StateBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpquant_state_build_duration_seconds",
			Help:    "State-builder recompute latency",
			Buckets: prometheus.DefBuckets,
		}),
		StateRecomputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpquant_state_recompute_total",
			Help: "Total timeframe-state recomputations, by timeframe",
		}, []string{"tf"}),

		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpquant_backtest_duration_seconds",
			Help:    "Single backtest run wall-clock duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		BacktestTradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_backtest_trades_total",
			Help: "Total trades produced across all backtest runs",
		}),

		OptimizerRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_optimizer_runs_total",
			Help: "Total optimizer runs started",
		}),
		OptimizerConfigsTried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_optimizer_configs_tried_total",
			Help: "Total strategy configs backtested across all optimizer runs",
		}),
		OptimizerRunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpquant_optimizer_run_duration_seconds",
			Help:    "Full grid-search-plus-OOS run duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		OptimizerOOSWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_optimizer_oos_stability_warnings_total",
			Help: "Out-of-sample runs that flagged a stability warning",
		}),

		PaperTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_paper_ticks_total",
			Help: "Total poll-loop ticks executed by the paper-trade runner",
		}),
		PaperTradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpquant_paper_trades_opened_total",
			Help: "Trades opened per paper config",
		}, []string{"config_id"}),
		PaperTradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpquant_paper_trades_closed_total",
			Help: "Trades closed per paper config, by result",
		}, []string{"config_id", "result"}),
		PaperEquity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpquant_paper_equity",
			Help: "Current equity per paper config",
		}, []string{"config_id"}),
		PaperDrawdownPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpquant_paper_drawdown_pct",
			Help: "Current drawdown percentage per paper config",
		}, []string{"config_id"}),
		PaperKillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_paper_kills_total",
			Help: "Total paper configs deactivated by a kill rule",
		}),
		PaperCheckpointDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpquant_paper_checkpoint_duration_seconds",
			Help:    "Account checkpoint write latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpquant_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpquant_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpquant_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.CandlesUpsertedTotal,
		m.FetchErrorsTotal,
		m.PagesAbortedTotal,
		m.IngestCursorLagSec,
		m.StateBuildDur,
		m.StateRecomputeTotal,
		m.BacktestDur,
		m.BacktestTradesTotal,
		m.OptimizerRunsTotal,
		m.OptimizerConfigsTried,
		m.OptimizerRunDur,
		m.OptimizerOOSWarnings,
		m.PaperTicksTotal,
		m.PaperTradesOpened,
		m.PaperTradesClosed,
		m.PaperEquity,
		m.PaperDrawdownPct,
		m.PaperKillsTotal,
		m.PaperCheckpointDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.SQLiteCommitDur,
	)

	return m
}

// HealthStatus represents the liveness of one worker's dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastPollAt     time.Time `json:"last_poll_at"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetLastPollAt(t time.Time) {
	h.mu.Lock()
	h.LastPollAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	pollAge := ""
	if !h.LastPollAt.IsZero() {
		pollAge = time.Since(h.LastPollAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastPollAt      string  `json:"last_poll_at"`
		PollAge         string  `json:"poll_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastPollAt:      h.LastPollAt.Format(time.RFC3339),
		PollAge:         pollAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
