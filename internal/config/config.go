// Package config reads process configuration from environment variables
// with sensible defaults, grounded on the teacher's config.Load pattern
// (getEnv/mustEnv helpers) and generalized to the env surface of §6.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ingest holds ingest-worker configuration (cmd/ingest).
type Ingest struct {
	Symbol           string
	Timeframes       []int // minutes
	PollSeconds      int
	Backfill         bool
	BackfillStartTS  time.Time
	BackfillEndTS    time.Time
	DryRun           bool
	SQLitePath       string
	RedisAddr        string
	RedisPassword    string
	MetricsAddr      string
}

// LoadIngest reads ingest configuration from the environment.
func LoadIngest() (*Ingest, error) {
	c := &Ingest{
		Symbol:        getEnv("SYMBOL", "BTC-PERPETUAL"),
		Timeframes:    parseTFList(firstNonEmpty(getEnv("INGEST_TIMEFRAMES", ""), getEnv("BACKFILL_TIMEFRAMES", ""), "1,5,15,60")),
		PollSeconds:   getEnvInt(firstNonEmptyKey("INGEST_POLL_SECONDS", "POLL_SECONDS"), 15),
		Backfill:      getEnvBool(firstNonEmptyKey("BACKFILL", "BACKFILL_MODE"), false),
		DryRun:        getEnvBool("DRY_RUN", false),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
	}

	if c.Backfill {
		startStr := os.Getenv("BACKFILL_START_TS")
		endStr := os.Getenv("BACKFILL_END_TS")
		if startStr == "" || endStr == "" {
			return nil, fmt.Errorf("config: BACKFILL_START_TS and BACKFILL_END_TS are required when BACKFILL is set")
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return nil, fmt.Errorf("config: invalid BACKFILL_START_TS: %w", err)
		}
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return nil, fmt.Errorf("config: invalid BACKFILL_END_TS: %w", err)
		}
		c.BackfillStartTS = start.UTC()
		c.BackfillEndTS = end.UTC()
	}

	if len(c.Timeframes) == 0 {
		return nil, fmt.Errorf("config: no valid timeframes configured")
	}

	return c, nil
}

// Optimizer holds optimizer-run configuration (cmd/optimize).
type Optimizer struct {
	Symbol       string
	SQLitePath   string
	MetricsAddr  string
	TrainStart   time.Time
	TrainEnd     time.Time
	DDLimitPct   float64
	OOSDays      int
	OOSTopN      int
	OOSStartTS   time.Time
	OOSEndTS     time.Time
	SaveAll      bool
}

// LoadOptimizer reads optimizer configuration from the environment.
func LoadOptimizer() (*Optimizer, error) {
	trainStart, err := parseRequiredTime("OPTIMIZER_TRAIN_START_TS")
	if err != nil {
		return nil, err
	}
	trainEnd, err := parseRequiredTime("OPTIMIZER_TRAIN_END_TS")
	if err != nil {
		return nil, err
	}

	c := &Optimizer{
		Symbol:      getEnv("SYMBOL", "BTC-PERPETUAL"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9092"),
		TrainStart: trainStart,
		TrainEnd:   trainEnd,
		DDLimitPct: getEnvFloat("DD_LIMIT", 10),
		OOSDays:    getEnvInt("OOS_DAYS", 7),
		OOSTopN:    getEnvInt("OOS_TOP_N", 3),
		SaveAll:    getEnvBool("SAVE_ALL_CONFIGS", false),
	}

	if s := os.Getenv("OOS_START_TS"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("config: invalid OOS_START_TS: %w", err)
		}
		c.OOSStartTS = t.UTC()
	}
	if s := os.Getenv("OOS_END_TS"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("config: invalid OOS_END_TS: %w", err)
		}
		c.OOSEndTS = t.UTC()
	}

	return c, nil
}

// Paper holds paper-trade runner configuration (cmd/paper).
type Paper struct {
	SQLitePath         string
	RedisAddr          string
	RedisPassword      string
	MetricsAddr        string
	RunID              string // resume existing, empty = create new
	OptimizerRunID     string // required when RunID is empty
	TopN               int
	BalanceStart       float64
	PollSeconds        int
	SafeLagMin         int
	MinTradesBeforeKill int
	KillMaxDDPct       float64
	KillMinPF          float64
	KillMinPnLPct      float64
	WebhookURL         string
}

// LoadPaper reads paper-trade runner configuration from the environment.
func LoadPaper() (*Paper, error) {
	runID := os.Getenv("PAPER_RUN_ID")
	optimizerRunID := os.Getenv("PAPER_OPTIMIZER_RUN_ID")
	if runID == "" && optimizerRunID == "" {
		return nil, fmt.Errorf("config: one of PAPER_RUN_ID or PAPER_OPTIMIZER_RUN_ID is required")
	}

	safeLag := getEnvInt("PAPER_SAFE_LAG_MIN", 1)
	if safeLag < 0 {
		safeLag = 0
	}
	if safeLag > 10 {
		safeLag = 10
	}

	return &Paper{
		SQLitePath:          getEnv("SQLITE_PATH", "data/candles.db"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9091"),
		RunID:               runID,
		OptimizerRunID:      optimizerRunID,
		TopN:                getEnvInt("PAPER_TOP_N", 10),
		BalanceStart:        getEnvFloat("PAPER_BALANCE_START", 1000),
		PollSeconds:         getEnvInt("PAPER_POLL_SECONDS", 15),
		SafeLagMin:          safeLag,
		MinTradesBeforeKill: getEnvInt("PAPER_MIN_TRADES_BEFORE_KILL", 50),
		KillMaxDDPct:        getEnvFloat("PAPER_KILL_MAX_DD_PCT", 12),
		KillMinPF:           getEnvFloat("PAPER_KILL_MIN_PF", 0.8),
		KillMinPnLPct:       getEnvFloat("PAPER_KILL_MIN_PNL_PCT", -2),
		WebhookURL:          os.Getenv("NOTIFY_WEBHOOK_URL"),
	}, nil
}

func parseRequiredTime(key string) (time.Time, error) {
	s := os.Getenv(key)
	if s == "" {
		return time.Time{}, fmt.Errorf("config: required env var %s not set", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return t.UTC(), nil
}

func parseTFList(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid timeframe value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyKey(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return k
		}
	}
	return keys[0]
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using default %f", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}
