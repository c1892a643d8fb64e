package strategy

import (
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
)

func baseConfig() model.StrategyConfig {
	return model.StrategyConfig{
		EntryTrigger: model.TriggerEither,
		RRTarget:     2.0,
		SLATRBuffer:  0.3,
		MinRiskPct:   0.001,
		TakerFeeBps:  5,
		SlippageBps:  2,
	}
}

func TestEvaluate_ChopYieldsNoSignal(t *testing.T) {
	cache := StateCache{
		15: {Trend: model.TrendChop},
	}
	candle := model.Candle{Close: 100}
	assert.Nil(t, Evaluate(cache, candle, baseConfig()))
}

func TestEvaluate_LongOnBOSTrigger(t *testing.T) {
	cache := StateCache{
		15: {Trend: model.TrendUp},
		1: {
			Trend: model.TrendUp, ATR: 2,
			LastBOS:       model.EventUp,
			LastPivotLow:  model.Pivot{Price: 95, TS: time.Now()},
			LastPivotHigh: model.Pivot{Price: 105, TS: time.Now()},
		},
	}
	candle := model.Candle{Close: 106}
	sig := Evaluate(cache, candle, baseConfig())
	if assert.NotNil(t, sig) {
		assert.Equal(t, model.SideLong, sig.Side)
		assert.Equal(t, TriggerPrimary, sig.Trigger)
		assert.Less(t, sig.SL, sig.Entry)
		assert.Greater(t, sig.TP, sig.Entry)
	}
}

func TestEvaluate_RejectsBelowMinRisk(t *testing.T) {
	cfg := baseConfig()
	cfg.MinRiskPct = 0.5 // unreachable risk threshold
	cache := StateCache{
		15: {Trend: model.TrendUp},
		1: {
			Trend: model.TrendUp, ATR: 0.01,
			LastBOS:      model.EventUp,
			LastPivotLow: model.Pivot{Price: 99},
		},
	}
	candle := model.Candle{Close: 100}
	assert.Nil(t, Evaluate(cache, candle, cfg))
}

func TestEvaluate_Require60mAlignBlocks(t *testing.T) {
	cfg := baseConfig()
	cfg.Require60mAlign = true
	cache := StateCache{
		15: {Trend: model.TrendUp},
		60: {Trend: model.TrendDown},
		1: {
			Trend: model.TrendUp, ATR: 2,
			LastBOS:      model.EventUp,
			LastPivotLow: model.Pivot{Price: 95},
		},
	}
	candle := model.Candle{Close: 106}
	assert.Nil(t, Evaluate(cache, candle, cfg))
}
