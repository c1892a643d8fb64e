package model

// EntryTrigger selects which market-structure event the strategy evaluator
// requires to arm an entry on the primary (1-minute) timeframe.
type EntryTrigger string

const (
	TriggerCHoCH  EntryTrigger = "choch"
	TriggerBOS    EntryTrigger = "bos"
	TriggerEither EntryTrigger = "either"
)

// StrategyConfig is an immutable, typed bag of strategy knobs. Once
// constructed it is never mutated — the optimizer's grid search and the
// paper-trade runner's per-account configs both hold these by value.
type StrategyConfig struct {
	Require5mAlign  bool         `json:"require_5m_align"`
	Require60mAlign bool         `json:"require_60m_align"`
	EntryTrigger    EntryTrigger `json:"entry_trigger"`
	RRTarget        float64      `json:"rr_target"`
	TimeoutMin      int          `json:"timeout_min"` // 0 = off
	SLATRBuffer     float64      `json:"sl_atr_buffer"`
	MinRiskPct      float64      `json:"min_risk_pct"` // fractional, e.g. 0.001
	TakerFeeBps     int          `json:"taker_fee_bps"`
	SlippageBps     int          `json:"slippage_bps"`
}

// ID returns a stable, deterministic string identifying this configuration,
// used as the grid-search dedup/row key (optimizer_run_configs.config).
func (c StrategyConfig) ID() string {
	b := make([]byte, 0, 96)
	if c.Require5mAlign {
		b = append(b, "5m1"...)
	} else {
		b = append(b, "5m0"...)
	}
	if c.Require60mAlign {
		b = append(b, "-60m1"...)
	} else {
		b = append(b, "-60m0"...)
	}
	b = append(b, '-')
	b = append(b, string(c.EntryTrigger)...)
	b = append(b, "-rr"...)
	b = append(b, formatFloat(c.RRTarget)...)
	b = append(b, "-slbuf"...)
	b = append(b, formatFloat(c.SLATRBuffer)...)
	b = append(b, "-to"...)
	b = append(b, Itoa(c.TimeoutMin)...)
	return string(b)
}

// formatFloat renders a float with up to two decimal places without
// pulling in strconv.FormatFloat's full precision machinery — grid values
// are all hand-picked tenths/hundredths (1.5, 2.0, 0.2, 0.3, ...).
func formatFloat(f float64) string {
	neg := f < 0
	if neg {
		f = -f
	}
	whole := int64(f)
	frac := int64((f-float64(whole))*100 + 0.5)
	out := Itoa(int(whole)) + "." + Itoa(int(frac))
	if neg {
		out = "-" + out
	}
	return out
}
