package model

import "time"

// Trend is the market-structure regime derived from the last two pivot
// highs and the last two pivot lows on a given timeframe.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendChop Trend = "chop"
)

// StructureEvent is a Break-of-Structure or Change-of-Character direction.
type StructureEvent string

const (
	EventNone StructureEvent = ""
	EventUp   StructureEvent = "up"
	EventDown StructureEvent = "down"
)

// Pivot is a confirmed swing high or low: the price at the pivot bar and
// the timestamp of that bar.
type Pivot struct {
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
}

// TimeframeState is the derived snapshot the state builder produces for a
// (symbol, timeframe, ts) triple. It advances monotonically in ts and is
// computed only from candles whose ts <= state.ts.
type TimeframeState struct {
	Symbol       string    `json:"symbol"`
	TimeframeMin int       `json:"timeframe_min"`
	TS           time.Time `json:"ts"`

	Trend Trend   `json:"trend"`
	ATR   float64 `json:"atr"` // 0 when fewer than 15 candles seen

	LastPivotHigh Pivot `json:"last_pivot_high"`
	LastPivotLow  Pivot `json:"last_pivot_low"`

	LastBOS   StructureEvent `json:"last_bos"`
	LastCHoCH StructureEvent `json:"last_choch"`

	PivotLength  int `json:"pivot_length"`
	PivotHighCnt int `json:"pivot_high_count"`
	PivotLowCnt  int `json:"pivot_low_count"`
}

// HasTwoPivotHighs reports whether at least two confirmed pivot highs have
// been observed.
func (s TimeframeState) HasTwoPivotHighs() bool { return s.PivotHighCnt >= 2 }

// HasTwoPivotLows reports whether at least two confirmed pivot lows have
// been observed.
func (s TimeframeState) HasTwoPivotLows() bool { return s.PivotLowCnt >= 2 }
