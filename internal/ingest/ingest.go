// Package ingest pulls closed candles from an exchange adapter and upserts
// them into the candle store, timeframe-boundary-aligned. It is grounded on
// the teacher's marketdata/replay.Replayer polling-and-cursor loop,
// generalized from a single-timeframe tick replay into a per-timeframe
// backfill/continuous candle puller.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"perpquant/internal/metrics"
	"perpquant/internal/model"
	redisstore "perpquant/internal/store/redis"
	"perpquant/internal/tf"
)

const (
	maxPages       = 1000
	maxBatchWindow = 7 * 24 * time.Hour
)

// Engine pulls candles for one symbol across a fixed set of timeframes.
type Engine struct {
	log      *slog.Logger
	exchange model.ExchangeClient
	store    model.CandleStore
	cursor   *redisstore.Cache // optional fast-path cursor hint; nil disables it
	mtx      *metrics.Metrics  // optional; nil disables instrumentation
	symbol   string
	tfs      []int
}

// New builds an Engine for symbol across tfs (minutes). cursorCache and mtx
// are both optional (nil is fine) — when cursorCache is set, the continuous
// poll loop consults it before falling back to the store's MAX(ts) lookup,
// and refreshes it after every successful window pull.
func New(log *slog.Logger, exchange model.ExchangeClient, store model.CandleStore, cursorCache *redisstore.Cache, mtx *metrics.Metrics, symbol string, tfs []int) *Engine {
	return &Engine{log: log, exchange: exchange, store: store, cursor: cursorCache, mtx: mtx, symbol: symbol, tfs: tfs}
}

// Backfill fetches and upserts candles for every configured timeframe over
// [start, end], then returns. Per-timeframe errors are isolated and logged;
// one failing timeframe does not abort the others.
func (e *Engine) Backfill(ctx context.Context, start, end time.Time) error {
	var firstErr error
	for _, tfMin := range e.tfs {
		if err := e.pullWindow(ctx, tfMin, tf.FloorToTF(start, tfMin), tf.FloorToTF(end, tfMin)); err != nil {
			e.log.Error("backfill timeframe failed", "symbol", e.symbol, "tf_min", tfMin, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RunContinuous polls every pollInterval until ctx is cancelled, advancing
// each timeframe's cursor from its last stored candle up to the last
// closed boundary.
func (e *Engine) RunContinuous(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	e.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	now := time.Now().UTC()
	for _, tfMin := range e.tfs {
		if err := e.pollTimeframe(ctx, tfMin, now); err != nil {
			e.log.Error("continuous poll failed", "symbol", e.symbol, "tf_min", tfMin, "err", err)
		}
	}
}

func (e *Engine) pollTimeframe(ctx context.Context, tfMin int, now time.Time) error {
	endSafe := tf.AddMinutes(tf.FloorToTF(now, tfMin), -tfMin)

	start := now.Add(-24 * time.Hour)
	lastStored, found, err := e.lastProcessedTS(ctx, tfMin)
	if err != nil {
		return fmt.Errorf("last candle ts: %w", err)
	}
	if found {
		start = tf.AddMinutes(lastStored, tfMin)
	}
	start = tf.FloorToTF(start, tfMin)

	if !start.Before(endSafe) {
		return nil
	}
	if err := e.pullWindow(ctx, tfMin, start, endSafe); err != nil {
		return err
	}
	if e.cursor != nil {
		e.cursor.SetCursor(ctx, e.symbol, tfMin, endSafe)
	}
	if e.mtx != nil {
		e.mtx.IngestCursorLagSec.WithLabelValues(strconv.Itoa(tfMin)).Set(time.Since(endSafe).Seconds())
	}
	return nil
}

// lastProcessedTS consults the Redis cursor cache first (a fast-path hint
// that skips the store's MAX(ts) query on every poll) and falls back to the
// store's MAX(ts) lookup on a cache miss or when no cache is configured —
// SQLite stays the authoritative source either way.
func (e *Engine) lastProcessedTS(ctx context.Context, tfMin int) (time.Time, bool, error) {
	if e.cursor != nil {
		if ts, ok := e.cursor.GetCursor(ctx, e.symbol, tfMin); ok {
			return ts, true, nil
		}
	}
	return e.store.LastCandleTS(ctx, e.symbol, tfMin)
}

// pullWindow fetches [start, end] for one timeframe, paging forward in
// batches no larger than maxBatchWindow. A failed page advances the cursor
// by one window rather than retrying indefinitely, and the first such
// failure is returned once the whole range has been walked; exceeding
// maxPages aborts the timeframe.
func (e *Engine) pullWindow(ctx context.Context, tfMin int, start, end time.Time) error {
	cursor := start
	pages := 0
	var fetchErr error
	for cursor.Before(end) {
		if pages >= maxPages {
			if e.mtx != nil {
				e.mtx.PagesAbortedTotal.WithLabelValues(strconv.Itoa(tfMin)).Inc()
			}
			return fmt.Errorf("tf=%d: exceeded %d pages without reaching end", tfMin, maxPages)
		}
		pages++

		windowEnd := cursor.Add(maxBatchWindow)
		if windowEnd.After(end) {
			windowEnd = end
		}

		candles, err := e.exchange.FetchCandles(ctx, e.symbol, tfMin, cursor, windowEnd)
		if err != nil {
			if e.mtx != nil {
				e.mtx.FetchErrorsTotal.WithLabelValues(strconv.Itoa(tfMin)).Inc()
			}
			e.log.Warn("fetch page failed, advancing cursor", "symbol", e.symbol, "tf_min", tfMin, "err", err)
			if fetchErr == nil {
				fetchErr = err
			}
			cursor = tf.AddMinutes(windowEnd, tfMin)
			continue
		}

		if len(candles) == 0 {
			e.log.Info("no-data response from exchange, advancing cursor", "symbol", e.symbol, "tf_min", tfMin)
			cursor = tf.AddMinutes(windowEnd, tfMin)
			continue
		}

		clean := e.normalizeAndFilter(candles, tfMin)
		if len(clean) > 0 {
			if err := e.store.UpsertCandles(ctx, clean); err != nil {
				return fmt.Errorf("upsert candles: %w", err)
			}
			if e.mtx != nil {
				e.mtx.CandlesUpsertedTotal.WithLabelValues(strconv.Itoa(tfMin)).Add(float64(len(clean)))
			}
		}

		last := candles[len(candles)-1].TS
		next := tf.AddMinutes(last, tfMin)
		if !next.After(cursor) {
			// Exchange returned no forward progress; force advance to avoid
			// looping forever on the same page.
			next = tf.AddMinutes(windowEnd, tfMin)
		}
		cursor = next
	}
	if fetchErr != nil {
		return fmt.Errorf("tf=%d: fetch page failed: %w", tfMin, fetchErr)
	}
	return nil
}

// normalizeAndFilter floors every candle to its timeframe boundary and
// drops any whose year falls outside [2009, 2100].
func (e *Engine) normalizeAndFilter(candles []model.Candle, tfMin int) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		c.TS = tf.FloorToTF(c.TS, tfMin)
		c.TimeframeMin = tfMin
		c.Symbol = e.symbol
		if !c.ValidYear() {
			e.log.Warn("dropping candle outside valid year range", "symbol", e.symbol, "tf_min", tfMin, "ts", c.TS)
			continue
		}
		out = append(out, c)
	}
	return out
}
