// Package tf provides timeframe-boundary time arithmetic. Ingest, backtest
// and the paper runner use these helpers for boundary flooring and minute
// offsets, the way the teacher centralizes bucket math in tfbuilder.process;
// plain time.Add offsets (lookbacks, batch windows) still appear in those
// callers, and internal/state does no timestamp arithmetic.
package tf

import "time"

// FloorToTF floors ts to the most recent tfMin-minute boundary, in UTC.
// floor(ts, k) = ts - (ts mod k·60000ms).
func FloorToTF(ts time.Time, tfMin int) time.Time {
	ts = ts.UTC()
	tfSec := int64(tfMin) * 60
	unix := ts.Unix()
	floored := unix - (unix % tfSec)
	return time.Unix(floored, 0).UTC()
}

// AddMinutes returns ts shifted by n minutes (n may be negative), in UTC.
func AddMinutes(ts time.Time, n int) time.Time {
	return ts.UTC().Add(time.Duration(n) * time.Minute)
}

// AddDays returns ts shifted by n calendar days (n may be negative), in UTC.
func AddDays(ts time.Time, n int) time.Time {
	return ts.UTC().AddDate(0, 0, n)
}

// EndOfDay returns 23:59:00.000Z of the same UTC date as ts.
func EndOfDay(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 23, 59, 0, 0, time.UTC)
}

// IsOnBoundary reports whether ts is already floor-aligned to tfMin.
func IsOnBoundary(ts time.Time, tfMin int) bool {
	return FloorToTF(ts, tfMin).Equal(ts.UTC())
}

// NearBoundary reports whether ts falls within the given tolerance of the
// next tfMin boundary — used by the backtest engine to decide whether a
// 1-minute candle should trigger a higher-timeframe state refresh.
func NearBoundary(ts time.Time, tfMin int, tolerance time.Duration) bool {
	floored := FloorToTF(ts, tfMin)
	next := AddMinutes(floored, tfMin)
	return next.Sub(ts.UTC()) <= tolerance
}
