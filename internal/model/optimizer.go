package model

import "time"

// BacktestMetrics aggregates the outcome of a single backtest run over one
// strategy configuration and one time window.
type BacktestMetrics struct {
	Trades          int     `json:"trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRatePct      float64 `json:"winrate_pct"`
	TotalPnLPct     float64 `json:"total_pnl_pct"`
	ExpectancyPct   float64 `json:"expectancy_pct"`
	ProfitFactor    float64 `json:"profit_factor"` // math.Inf(1) if only winners
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	AvgDurationMin  float64 `json:"avg_duration_min"`
}

// OptimizerRun is the top-level record of one grid-search optimization run.
type OptimizerRun struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	TrainStartTS time.Time `json:"train_start_ts"`
	TrainEndTS   time.Time `json:"train_end_ts"`
	DDLimitPct   float64   `json:"dd_limit_pct"`
	TotalConfigs int       `json:"total_configs"`
	ValidConfigs int       `json:"valid_configs"`
}

// TopConfig is a ranked survivor of the in-sample grid search, rank 1..10.
type TopConfig struct {
	RunID   string          `json:"run_id"`
	Rank    int             `json:"rank"`
	Score   float64         `json:"score"`
	Config  StrategyConfig  `json:"config"`
	Metrics BacktestMetrics `json:"metrics"`
}

// AllConfig is an optional record of every grid point tried, kept only when
// SAVE_ALL_CONFIGS is set.
type AllConfig struct {
	RunID   string          `json:"run_id"`
	Config  StrategyConfig  `json:"config"`
	Metrics BacktestMetrics `json:"metrics"`
	Errored bool            `json:"errored"`
}

// OOSResult is an out-of-sample re-run of a top-N survivor over a later,
// disjoint window.
type OOSResult struct {
	RunID       string          `json:"run_id"`
	Rank        int             `json:"rank"`
	Symbol      string          `json:"symbol"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Metrics     BacktestMetrics `json:"metrics"`
}
