package model

import "time"

// Side is the direction of a simulated position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is a live position inside a backtest or paper-trade simulation.
// Invariant: for a long, StopLoss < Entry < TakeProfit (inverted for short).
type Position struct {
	Side        Side      `json:"side"`
	Entry       float64   `json:"entry"`
	Size        float64   `json:"size"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	OpenedAt    time.Time `json:"opened_at"`
	FeesPaid    float64   `json:"fees_paid"`
	TradeID     string    `json:"trade_id"`
	MFE         float64   `json:"mfe"` // max favorable excursion, price terms
	MAE         float64   `json:"mae"` // max adverse excursion, price terms
}

// Valid reports whether the position satisfies the SL/entry/TP ordering
// invariant for its side.
func (p Position) Valid() bool {
	switch p.Side {
	case SideLong:
		return p.StopLoss < p.Entry && p.Entry < p.TakeProfit
	case SideShort:
		return p.TakeProfit < p.Entry && p.Entry < p.StopLoss
	default:
		return false
	}
}

// OpenPositions is the {long?, short?} pair a single account may hold.
// At most one of each side is ever populated simultaneously.
type OpenPositions struct {
	Long  *Position `json:"long,omitempty"`
	Short *Position `json:"short,omitempty"`
}

// Get returns the position for the given side, or nil if none is open.
func (o OpenPositions) Get(side Side) *Position {
	if side == SideLong {
		return o.Long
	}
	return o.Short
}

// Set installs a position for the given side.
func (o *OpenPositions) Set(side Side, p *Position) {
	if side == SideLong {
		o.Long = p
	} else {
		o.Short = p
	}
}

// Clear removes the position for the given side.
func (o *OpenPositions) Clear(side Side) {
	o.Set(side, nil)
}

// Empty reports whether no positions are open on either side.
func (o OpenPositions) Empty() bool {
	return o.Long == nil && o.Short == nil
}
