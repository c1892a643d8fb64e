// Package state computes deterministic multi-timeframe market-structure
// state (trend regime, ATR, pivots, BOS/CHoCH) from a candle history. It
// mirrors the teacher's indicator Engine in spirit — per-key state and a
// single build entrypoint, with no snapshot/restore path — but the underlying
// computation is a pure recompute over a candle window rather than a
// streaming accumulator, since ATR/pivots/trend here are defined over a
// bounded lookback rather than an unbounded running series.
package state

import "perpquant/internal/model"

// Build computes the TimeframeState for the given symbol/timeframe from
// candles ordered oldest-to-newest and ending at the candle the state
// should be stamped with. Returns ok=false when there is no candle to stamp
// the state with.
func Build(symbol string, tfMin int, candles []model.Candle) (model.TimeframeState, bool) {
	n := len(candles)
	if n == 0 {
		return model.TimeframeState{}, false
	}
	latest := candles[n-1]

	atr, _ := ATR14(candles)

	pv := FindPivots(candles, DefaultPivotLength)
	trend := TrendFromPivots(pv.Highs, pv.Lows)

	st := model.TimeframeState{
		Symbol:       symbol,
		TimeframeMin: tfMin,
		TS:           latest.TS,
		Trend:        trend,
		ATR:          atr,
		PivotLength:  DefaultPivotLength,
		PivotHighCnt: len(pv.Highs),
		PivotLowCnt:  len(pv.Lows),
	}

	if len(pv.Highs) > 0 {
		st.LastPivotHigh = pv.Highs[len(pv.Highs)-1]
	}
	if len(pv.Lows) > 0 {
		st.LastPivotLow = pv.Lows[len(pv.Lows)-1]
	}

	if trend != model.TrendChop && len(pv.Highs) > 0 && len(pv.Lows) > 0 {
		bos, choch := StructureEvents(trend, latest.Close, st.LastPivotHigh, st.LastPivotLow)
		st.LastBOS = bos
		st.LastCHoCH = choch
	}

	return st, true
}
