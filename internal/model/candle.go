// Package model holds the persistent and in-memory record types shared
// across the ingest, state, strategy, backtest, optimizer, and paper-trade
// packages. Types here are plain structs with explicit fields — no dynamic
// option bags — so every layer agrees on shape without runtime reflection.
package model

import "time"

// Candle is an immutable OHLCV observation for one (symbol, timeframe,
// bucket start). Only closed candles are ever persisted; ts is always
// floored to the timeframe boundary in UTC.
type Candle struct {
	Symbol       string    `json:"symbol"`
	TimeframeMin int       `json:"timeframe_min"`
	TS           time.Time `json:"ts"` // bucket start, UTC, floored to TimeframeMin
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	Source       string    `json:"source"` // exchange adapter name that produced it
}

// Key returns a unique key for this candle's (symbol, timeframe) series.
func (c Candle) Key() string {
	return c.Symbol + ":" + Itoa(c.TimeframeMin)
}

// ValidYear reports whether ts falls within the accepted calendar range
// [2009, 2100] per the ingest engine's candle-validity invariant.
func (c Candle) ValidYear() bool {
	y := c.TS.Year()
	return y >= 2009 && y <= 2100
}
