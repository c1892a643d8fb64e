package backtest

import (
	"context"
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
)

// memStore is a minimal in-memory model.CandleStore for backtest tests.
type memStore struct {
	candles map[int][]model.Candle
}

func (m *memStore) UpsertCandles(ctx context.Context, candles []model.Candle) error { return nil }
func (m *memStore) LastCandleTS(ctx context.Context, symbol string, tfMin int) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (m *memStore) ReadCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range m.candles[tfMin] {
		if !c.TS.Before(start) && !c.TS.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func flatCandles(n int, tfMin int, startMin int64, price float64) []model.Candle {
	out := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		ts := time.Unix((startMin+int64(i)*int64(tfMin))*60, 0).UTC()
		out = append(out, model.Candle{
			Symbol: "BTC-PERPETUAL", TimeframeMin: tfMin, TS: ts,
			Open: price, High: price, Low: price, Close: price, Volume: 1,
		})
	}
	return out
}

func TestRun_NoSignalsProducesZeroTrades(t *testing.T) {
	store := &memStore{candles: map[int][]model.Candle{
		1:  flatCandles(2000, 1, 0, 100),
		5:  flatCandles(400, 5, 0, 100),
		15: flatCandles(140, 15, 0, 100),
		60: flatCandles(40, 60, 0, 100),
	}}
	cfg := model.StrategyConfig{EntryTrigger: model.TriggerEither, RRTarget: 2, SLATRBuffer: 0.3, MinRiskPct: 0.001, TakerFeeBps: 5, SlippageBps: 2}

	start := time.Unix(1500*60, 0).UTC()
	end := time.Unix(1900*60, 0).UTC()
	res, err := Run(context.Background(), store, "BTC-PERPETUAL", start, end, cfg, nil)

	assert.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 0, res.Metrics.Trades)
}

func TestRun_ErrorsWithoutOneMinuteCandles(t *testing.T) {
	store := &memStore{candles: map[int][]model.Candle{}}
	cfg := model.StrategyConfig{}
	_, err := Run(context.Background(), store, "BTC-PERPETUAL", time.Now(), time.Now(), cfg, nil)
	assert.Error(t, err)
}
