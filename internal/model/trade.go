package model

import "time"

// TradeResult classifies a closed trade's outcome, with a +/-0.01 dead zone
// around zero pnl treated as breakeven rather than win/loss.
type TradeResult string

const (
	ResultWin       TradeResult = "win"
	ResultLoss      TradeResult = "loss"
	ResultBreakeven TradeResult = "breakeven"
)

// Trade is a persisted open-or-closed trade record. It is idempotent on
// (RunID, ConfigID, OpenedAt, Side, Entry): a duplicate insert must return
// the existing row rather than erroring or duplicating.
type Trade struct {
	ID         int64       `json:"id"`
	RunID      string      `json:"run_id"`
	ConfigID   string      `json:"config_id"`
	OpenedAt   time.Time   `json:"opened_at"`
	Side       Side        `json:"side"`
	Entry      float64     `json:"entry"`
	Size       float64     `json:"size"`
	SL         float64     `json:"sl"`
	TP         float64     `json:"tp"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
	Exit       *float64    `json:"exit,omitempty"`
	PnLPct     *float64    `json:"pnl_pct,omitempty"`
	PnLAbs     *float64    `json:"pnl_abs,omitempty"`
	FeesAbs    float64     `json:"fees_abs"`
	Result     TradeResult `json:"result,omitempty"`
	ExitReason string      `json:"exit_reason,omitempty"` // stop_loss, take_profit, timeout (end of data closes as timeout)
	Meta       string      `json:"meta,omitempty"`        // free-form JSON detail
}

// IsOpen reports whether the trade has not yet been closed.
func (t Trade) IsOpen() bool { return t.ClosedAt == nil }
