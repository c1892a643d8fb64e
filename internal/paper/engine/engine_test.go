package engine

import (
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCalcFees(t *testing.T) {
	assert.InDelta(t, 5.001, CalcFees(100*100.02, 5), 0.001)
}

func TestApplySlippage_EntryAndExitInvert(t *testing.T) {
	entryLong := ApplySlippage(100, model.SideLong, 2, false)
	assert.InDelta(t, 100.02, entryLong, 1e-9)

	exitLong := ApplySlippage(100, model.SideLong, 2, true)
	assert.InDelta(t, 99.98, exitLong, 1e-9)
}

func TestCheckExit_StopLossWinsOverTakeProfit(t *testing.T) {
	pos := model.Position{Side: model.SideLong, Entry: 100, StopLoss: 95, TakeProfit: 110}
	candle := model.Candle{Open: 100, High: 111, Low: 94}
	px, reason, hit := CheckExit(pos, candle)
	assert.True(t, hit)
	assert.Equal(t, ExitStopLoss, reason)
	assert.Equal(t, 95.0, px)
}

func TestOpenCloseRoundTrip_ZeroSlippageZeroFees(t *testing.T) {
	cfg := model.StrategyConfig{SlippageBps: 0, TakerFeeBps: 0}
	pos := OpenPosition(model.SideLong, 100, 99, 102, 1000, 0.001, cfg, time.Now(), "t1")
	pnlAbs, _, _, result := ClosePosition(pos, pos.Entry, cfg)
	assert.InDelta(t, 0, pnlAbs, 1e-9)
	assert.Equal(t, model.ResultBreakeven, result)
}

func TestOpenCloseRoundTrip_FeesDominateFlatMove(t *testing.T) {
	cfg := model.StrategyConfig{SlippageBps: 2, TakerFeeBps: 5}
	pos := OpenPosition(model.SideLong, 100, 99, 102, 1000, 0.001, cfg, time.Now(), "t1")
	assert.InDelta(t, 100, pos.Size, 1)
	_, _, _, result := ClosePosition(pos, 100.02, cfg)
	assert.Equal(t, model.ResultLoss, result)
}

func TestUpdateEquityAndDD(t *testing.T) {
	maxEq, dd := UpdateEquityAndDD(90, 100)
	assert.Equal(t, 100.0, maxEq)
	assert.InDelta(t, 10.0, dd, 1e-9)

	maxEq, dd = UpdateEquityAndDD(110, 100)
	assert.Equal(t, 110.0, maxEq)
	assert.Equal(t, 0.0, dd)
}
