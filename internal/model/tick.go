package model

import "time"

// MarketTrade is a raw exchange trade tick emitted by
// ExchangeClient.StreamTrades — not persisted, not replayed in backtests.
type MarketTrade struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
	TS     time.Time `json:"ts"`
}
