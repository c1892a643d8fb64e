package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"perpquant/internal/model"

	"github.com/stretchr/testify/assert"
)

type fakeExchange struct {
	batches [][]model.Candle
	calls   int
	err     error
}

func (f *fakeExchange) FetchCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.calls]
	f.calls++
	return b, nil
}

func (f *fakeExchange) StreamTrades(ctx context.Context, symbol string, out chan<- model.MarketTrade) error {
	return nil
}

// fakeStore models the same (symbol, timeframe_min, ts) conflict key the
// sqlite store's INSERT OR REPLACE upsert enforces, so tests can assert
// Backfill is safe to re-run over overlapping ranges.
type fakeStore struct {
	byKey   map[string]model.Candle
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: make(map[string]model.Candle)}
}

func candleKey(c model.Candle) string {
	return fmt.Sprintf("%s:%d:%d", c.Symbol, c.TimeframeMin, c.TS.Unix())
}

func (s *fakeStore) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	s.upserts++
	for _, c := range candles {
		s.byKey[candleKey(c)] = c
	}
	return nil
}

func (s *fakeStore) candles() []model.Candle {
	out := make([]model.Candle, 0, len(s.byKey))
	for _, c := range s.byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

func (s *fakeStore) LastCandleTS(ctx context.Context, symbol string, tfMin int) (time.Time, bool, error) {
	all := s.candles()
	if len(all) == 0 {
		return time.Time{}, false, nil
	}
	return all[len(all)-1].TS, true, nil
}

func (s *fakeStore) ReadCandles(ctx context.Context, symbol string, tfMin int, start, end time.Time) ([]model.Candle, error) {
	return s.candles(), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackfill_UpsertsNormalizedCandles(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	exch := &fakeExchange{batches: [][]model.Candle{
		{
			{TS: time.Date(2024, 1, 1, 0, 0, 15, 0, time.UTC), Open: 1, High: 2, Low: 0, Close: 1, Volume: 10},
			{TS: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Open: 1, High: 2, Low: 0, Close: 1, Volume: 10},
		},
	}}
	store := newFakeStore()
	eng := New(testLogger(), exch, store, nil, nil, "BTC-PERPETUAL", []int{1})

	err := eng.Backfill(context.Background(), start, end)
	assert.NoError(t, err)
	candles := store.candles()
	assert.Len(t, candles, 2)
	assert.True(t, candles[0].TS.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "BTC-PERPETUAL", candles[0].Symbol)
}

func TestBackfill_DropsCandlesOutsideValidYearRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	exch := &fakeExchange{batches: [][]model.Candle{
		{
			{TS: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1},
		},
	}}
	store := newFakeStore()
	eng := New(testLogger(), exch, store, nil, nil, "BTC-PERPETUAL", []int{1})

	err := eng.Backfill(context.Background(), start, end)
	assert.NoError(t, err)
	assert.Empty(t, store.candles())
}

func TestBackfill_IsolatesPerTimeframeErrors(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

	store := newFakeStore()
	exch := &fakeExchange{err: assert.AnError}
	eng := New(testLogger(), exch, store, nil, nil, "BTC-PERPETUAL", []int{1, 5})

	err := eng.Backfill(context.Background(), start, end)
	assert.Error(t, err)
}

// TestBackfill_OverlappingRangesAreIdempotent re-runs Backfill over a range
// that overlaps the first run's window and asserts the resulting candle set
// still has exactly one row per (symbol, timeframe_min, ts) — re-ingesting
// a window upserts in place rather than duplicating rows.
func TestBackfill_OverlappingRangesAreIdempotent(t *testing.T) {
	candleAt := func(min int) model.Candle {
		return model.Candle{
			TS: time.Date(2024, 1, 1, 0, min, 0, 0, time.UTC),
			Open: 1, High: 2, Low: 0, Close: 1.5, Volume: 10,
		}
	}

	store := newFakeStore()

	firstRun := &fakeExchange{batches: [][]model.Candle{
		{candleAt(0), candleAt(1), candleAt(2)},
	}}
	eng := New(testLogger(), firstRun, store, nil, nil, "BTC-PERPETUAL", []int{1})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 3, 0, 0, time.UTC)
	assert.NoError(t, eng.Backfill(context.Background(), start, end))
	assert.Len(t, store.candles(), 3)

	// Re-run over an overlapping window (candles at minute 1-2 repeated,
	// plus one new candle at minute 3) with a slightly different close
	// price, simulating a re-ingested/corrected page.
	overlapping := candleAt(1)
	overlapping.Close = 9.99
	secondRun := &fakeExchange{batches: [][]model.Candle{
		{overlapping, candleAt(2), candleAt(3)},
	}}
	eng2 := New(testLogger(), secondRun, store, nil, nil, "BTC-PERPETUAL", []int{1})
	start2 := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	end2 := time.Date(2024, 1, 1, 0, 4, 0, 0, time.UTC)
	assert.NoError(t, eng2.Backfill(context.Background(), start2, end2))

	candles := store.candles()
	assert.Len(t, candles, 4, "overlapping re-ingest must upsert in place, not duplicate")
	assert.Equal(t, 9.99, candles[1].Close, "re-ingested candle overwrites the stored row")
}
