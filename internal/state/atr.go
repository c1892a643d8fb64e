package state

import "perpquant/internal/model"

const atrPeriod = 14

// trueRanges computes TRi = max(hi-li, |hi-c(i-1)|, |li-c(i-1)|) for every
// candle that has a predecessor. The first candle in the slice has no
// previous close and is skipped.
func trueRanges(candles []model.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l, prevClose := candles[i].High, candles[i].Low, candles[i-1].Close
		tr := h - l
		if v := abs(h - prevClose); v > tr {
			tr = v
		}
		if v := abs(l - prevClose); v > tr {
			tr = v
		}
		trs = append(trs, tr)
	}
	return trs
}

// ATR14 returns the simple mean of the last 14 true ranges. It returns
// (0, false) when fewer than 15 candles are available — one extra candle
// is needed to seed the first true range.
func ATR14(candles []model.Candle) (float64, bool) {
	trs := trueRanges(candles)
	if len(trs) < atrPeriod {
		return 0, false
	}
	window := trs[len(trs)-atrPeriod:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(atrPeriod), true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
