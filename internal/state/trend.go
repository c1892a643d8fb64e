package state

import "perpquant/internal/model"

// TrendFromPivots derives the trend regime from the last two pivot highs and
// the last two pivot lows. Fewer than two of either series is chop.
func TrendFromPivots(highs, lows []model.Pivot) model.Trend {
	h1, h2, okH := LastTwo(highs)
	l1, l2, okL := LastTwo(lows)
	if !okH || !okL {
		return model.TrendChop
	}
	switch {
	case h2.Price > h1.Price && l2.Price > l1.Price:
		return model.TrendUp
	case h2.Price < h1.Price && l2.Price < l1.Price:
		return model.TrendDown
	default:
		return model.TrendChop
	}
}

// StructureEvents computes the latest BOS/CHoCH direction from the trend,
// the latest candle close, and the most recent confirmed pivot high/low.
// Neither fires in chop.
func StructureEvents(trend model.Trend, lastClose float64, lastHigh, lastLow model.Pivot) (bos, choch model.StructureEvent) {
	switch trend {
	case model.TrendUp:
		if lastClose > lastHigh.Price {
			bos = model.EventUp
		}
		if lastClose < lastLow.Price {
			choch = model.EventDown
		}
	case model.TrendDown:
		if lastClose < lastLow.Price {
			bos = model.EventDown
		}
		if lastClose > lastHigh.Price {
			choch = model.EventUp
		}
	}
	return bos, choch
}
