// Package strategy evaluates a StrategyConfig against the current
// multi-timeframe state cache and the latest 1-minute candle, producing an
// entry Signal or nil. It replaces the teacher's registered-strategy engine
// (internal/strategy.Engine routing candles to Strategy.OnCandle) with a
// single pure evaluator, since the grid-search optimizer needs to run the
// same decision function thousands of times per backtest rather than hold
// long-lived strategy instances.
package strategy

import "perpquant/internal/model"

// TriggerKind distinguishes the entry-trigger source so a knob-driven
// trigger can be told from the swing-breakout fallback; it is also the
// suffix of Signal.Reason.
type TriggerKind string

const (
	TriggerPrimary  TriggerKind = "primary"
	TriggerFallback TriggerKind = "fallback"
)

// Signal is the evaluator's output: a proposed entry with sizing already
// resolved from ATR and the config's risk knobs.
type Signal struct {
	Side    model.Side
	Entry   float64
	SL      float64
	TP      float64
	RR      float64
	Trigger TriggerKind
	Reason  string
}

// StateCache holds the latest TimeframeState per timeframe minute, as built
// by internal/state, for the timeframes the evaluator reads: 1, 5, 15, and
// optionally 60.
type StateCache map[int]model.TimeframeState

// Evaluate applies cfg to the current state cache and 1-minute candle.
// Returns nil when no entry is warranted.
func Evaluate(cache StateCache, candle model.Candle, cfg model.StrategyConfig) *Signal {
	primary, ok := cache[15]
	if !ok || primary.Trend == model.TrendChop {
		return nil
	}

	if cfg.Require60mAlign {
		st60, ok := cache[60]
		if !ok || st60.Trend != primary.Trend {
			return nil
		}
	}

	st5, has5 := cache[5]
	if cfg.Require5mAlign {
		if !has5 || st5.Trend != primary.Trend {
			return nil
		}
	}

	var side model.Side
	switch {
	case primary.Trend == model.TrendUp && (!has5 || st5.Trend != model.TrendDown):
		side = model.SideLong
	case primary.Trend == model.TrendDown && (!has5 || st5.Trend != model.TrendUp):
		side = model.SideShort
	default:
		return nil
	}

	st1, ok := cache[1]
	if !ok {
		return nil
	}

	trigger, ok := checkTrigger(st1, candle, side, cfg.EntryTrigger)
	if !ok {
		return nil
	}

	if st1.ATR <= 0 {
		return nil
	}

	return size(st1, candle, side, trigger, cfg)
}

// checkTrigger matches the configured entry_trigger (or its fallback swing
// breakout) against the latest 1-minute state/candle.
func checkTrigger(st1 model.TimeframeState, candle model.Candle, side model.Side, entryTrigger model.EntryTrigger) (TriggerKind, bool) {
	if primaryTriggerMatches(st1, side, entryTrigger) {
		return TriggerPrimary, true
	}
	if fallbackTriggerMatches(st1, candle, side) {
		return TriggerFallback, true
	}
	return "", false
}

func primaryTriggerMatches(st1 model.TimeframeState, side model.Side, entryTrigger model.EntryTrigger) bool {
	wantDir := model.EventUp
	if side == model.SideShort {
		wantDir = model.EventDown
	}
	switch entryTrigger {
	case model.TriggerCHoCH:
		return st1.LastCHoCH == wantDir
	case model.TriggerBOS:
		return st1.LastBOS == wantDir
	case model.TriggerEither:
		return st1.LastCHoCH == wantDir || st1.LastBOS == wantDir
	default:
		return false
	}
}

func fallbackTriggerMatches(st1 model.TimeframeState, candle model.Candle, side model.Side) bool {
	if side == model.SideLong {
		return candle.Close > st1.LastPivotHigh.Price || candle.High > st1.LastPivotHigh.Price
	}
	return candle.Close < st1.LastPivotLow.Price || candle.Low < st1.LastPivotLow.Price
}

func size(st1 model.TimeframeState, candle model.Candle, side model.Side, trigger TriggerKind, cfg model.StrategyConfig) *Signal {
	entry := candle.Close
	var sl, tp float64

	switch side {
	case model.SideLong:
		sl = st1.LastPivotLow.Price - cfg.SLATRBuffer*st1.ATR
		if sl >= entry {
			return nil
		}
		tp = entry + (entry-sl)*cfg.RRTarget
	case model.SideShort:
		sl = st1.LastPivotHigh.Price + cfg.SLATRBuffer*st1.ATR
		if sl <= entry {
			return nil
		}
		tp = entry - (sl-entry)*cfg.RRTarget
	}

	riskPct := abs(entry-sl) / entry
	if riskPct < cfg.MinRiskPct {
		return nil
	}

	return &Signal{
		Side:    side,
		Entry:   entry,
		SL:      sl,
		TP:      tp,
		RR:      cfg.RRTarget,
		Trigger: trigger,
		Reason:  string(side) + "/" + string(trigger),
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
