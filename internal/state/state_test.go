package state

import (
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
)

func mkCandle(ts int64, h, l, c float64) model.Candle {
	return model.Candle{
		Symbol: "BTC-PERPETUAL", TimeframeMin: 1,
		TS: time.Unix(ts*60, 0).UTC(),
		Open: c, High: h, Low: l, Close: c, Volume: 1,
	}
}

func TestATR14_ConstantTrueRange(t *testing.T) {
	candles := make([]model.Candle, 0, 16)
	for i := 0; i < 16; i++ {
		candles = append(candles, mkCandle(int64(i), 10, 0, 5))
	}
	atr, ok := ATR14(candles)
	assert.True(t, ok)
	assert.Equal(t, 10.0, atr)
}

func TestATR14_InsufficientHistory(t *testing.T) {
	candles := make([]model.Candle, 0, 10)
	for i := 0; i < 10; i++ {
		candles = append(candles, mkCandle(int64(i), 10, 0, 5))
	}
	_, ok := ATR14(candles)
	assert.False(t, ok)
}

func TestFindPivots_HighConfirmed(t *testing.T) {
	highs := []float64{1, 2, 3, 5, 3, 2, 1}
	candles := make([]model.Candle, 0, len(highs))
	for i, h := range highs {
		candles = append(candles, mkCandle(int64(i), h, h-1, h-0.5))
	}
	pv := FindPivots(candles, 2)
	assert.Len(t, pv.Highs, 1)
	assert.Equal(t, 5.0, pv.Highs[0].Price)
}

func TestFindPivots_TieDisqualifies(t *testing.T) {
	highs := []float64{1, 2, 3, 3, 3, 2, 1}
	candles := make([]model.Candle, 0, len(highs))
	for i, h := range highs {
		candles = append(candles, mkCandle(int64(i), h, h-1, h-0.5))
	}
	pv := FindPivots(candles, 2)
	assert.Empty(t, pv.Highs)
}

func TestTrendFromPivots(t *testing.T) {
	up := TrendFromPivots(
		[]model.Pivot{{Price: 100}, {Price: 110}},
		[]model.Pivot{{Price: 90}, {Price: 95}},
	)
	assert.Equal(t, model.TrendUp, up)

	down := TrendFromPivots(
		[]model.Pivot{{Price: 110}, {Price: 100}},
		[]model.Pivot{{Price: 95}, {Price: 90}},
	)
	assert.Equal(t, model.TrendDown, down)

	chop := TrendFromPivots(
		[]model.Pivot{{Price: 100}, {Price: 110}},
		[]model.Pivot{{Price: 95}, {Price: 90}},
	)
	assert.Equal(t, model.TrendChop, chop)
}

func TestTrendFromPivots_InsufficientData(t *testing.T) {
	assert.Equal(t, model.TrendChop, TrendFromPivots(nil, nil))
	assert.Equal(t, model.TrendChop, TrendFromPivots([]model.Pivot{{Price: 1}}, []model.Pivot{{Price: 1}, {Price: 2}}))
}

func TestStructureEvents_Uptrend(t *testing.T) {
	high := model.Pivot{Price: 100}
	low := model.Pivot{Price: 90}

	bos, choch := StructureEvents(model.TrendUp, 105, high, low)
	assert.Equal(t, model.EventUp, bos)
	assert.Equal(t, model.EventNone, choch)

	bos, choch = StructureEvents(model.TrendUp, 85, high, low)
	assert.Equal(t, model.EventNone, bos)
	assert.Equal(t, model.EventDown, choch)
}

func TestBuild_StampsLatestCandle(t *testing.T) {
	candles := make([]model.Candle, 0, 20)
	for i := 0; i < 20; i++ {
		candles = append(candles, mkCandle(int64(i), float64(10+i%3), float64(i%3), float64(5+i%3)))
	}
	st, ok := Build("BTC-PERPETUAL", 1, candles)
	assert.True(t, ok)
	assert.Equal(t, candles[len(candles)-1].TS, st.TS)
	assert.Equal(t, "BTC-PERPETUAL", st.Symbol)
}
