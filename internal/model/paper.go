package model

import (
	"math"
	"time"
)

// PaperRunStatus is the lifecycle state of a paper-trade run.
type PaperRunStatus string

const (
	PaperRunRunning  PaperRunStatus = "running"
	PaperRunStopped  PaperRunStatus = "stopped"
	PaperRunFinished PaperRunStatus = "finished"
)

// PaperRun is the top-level record of one paper-trading session.
type PaperRun struct {
	ID           string         `json:"id"`
	Symbol       string         `json:"symbol"`
	TimeframeMin int            `json:"timeframe_min"` // always 1
	Status       PaperRunStatus `json:"status"`
}

// PaperConfig is one ranked, immutable strategy configuration attached to a
// PaperRun.
type PaperConfig struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Rank       int            `json:"rank"`
	Config     StrategyConfig `json:"config"`
	IsActive   bool           `json:"is_active"`
	KillReason string         `json:"kill_reason,omitempty"`
}

// PaperAccount is the one-per-config simulated trading account. Invariants:
// Equity <= MaxEquity always; MaxDrawdownPct = (MaxEquity-Equity)/MaxEquity*100
// when MaxEquity > 0; at most one long and one short open simultaneously.
type PaperAccount struct {
	RunID          string        `json:"run_id"`
	ConfigID       string        `json:"config_id"`
	BalanceStart   float64       `json:"balance_start"`
	Balance        float64       `json:"balance"`
	Equity         float64       `json:"equity"`
	MaxEquity      float64       `json:"max_equity"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	OpenPositions  OpenPositions `json:"open_positions"`
	TradesCount    int           `json:"trades_count"`
	WinsCount      int           `json:"wins_count"`
	LossesCount    int           `json:"losses_count"`
	GrossWins      float64       `json:"gross_wins"`   // sum of winning pnlAbs, real aggregation (§9 open question)
	GrossLosses    float64       `json:"gross_losses"` // sum of |losing pnlAbs|
	ProfitFactor   float64       `json:"profit_factor"`
	LastCandleTS   *time.Time    `json:"last_candle_ts,omitempty"`
}

// UpdateProfitFactor recomputes ProfitFactor from the real accumulated
// gross win/loss sums — resolving the §9 open question in favor of real
// per-trade pnl aggregation rather than a wins/losses-count placeholder.
func (a *PaperAccount) UpdateProfitFactor() {
	switch {
	case a.GrossLosses == 0 && a.GrossWins > 0:
		a.ProfitFactor = math.Inf(1)
	case a.GrossLosses == 0:
		a.ProfitFactor = 0
	default:
		a.ProfitFactor = a.GrossWins / a.GrossLosses
	}
}

// RealizedPnLPct returns realized return relative to starting balance.
func (a *PaperAccount) RealizedPnLPct() float64 {
	if a.BalanceStart == 0 {
		return 0
	}
	return (a.Balance - a.BalanceStart) / a.BalanceStart * 100
}

// EquitySnapshot is a point-in-time equity/drawdown record, unique on
// (RunID, ConfigID, TS).
type EquitySnapshot struct {
	RunID    string    `json:"run_id"`
	ConfigID string    `json:"config_id"`
	TS       time.Time `json:"ts"`
	Equity   float64   `json:"equity"`
	Balance  float64   `json:"balance"`
	DDPct    float64   `json:"dd_pct"`
}
