// Package engine implements the paper-trading fill primitives: fee
// calculation, slippage application, position open/close, worst-case
// intrabar exit detection, and equity/drawdown bookkeeping. It generalizes
// the teacher's PaperExecutor (internal/execution/paper.go), which applied
// a flat slippage-bps adjustment to a signal's fill price, to the
// risk-sized, two-sided (long/short) position lifecycle this spec requires.
package engine

import (
	"time"

	"perpquant/internal/model"
)

// CalcFees returns the fee charged on a given notional at feeBps basis
// points (feeBps/10000 of notional).
func CalcFees(notional float64, feeBps int) float64 {
	return notional * float64(feeBps) / 10000
}

// ApplySlippage adjusts price for the given side and direction. On entry, a
// long pays up and a short receives less; on exit the direction inverts
// (closing a long is a sell, closing a short is a buy).
func ApplySlippage(price float64, side model.Side, bps int, isExit bool) float64 {
	factor := float64(bps) / 10000
	long := side == model.SideLong
	if isExit {
		long = !long
	}
	if long {
		return price * (1 + factor)
	}
	return price * (1 - factor)
}

// OpenPosition sizes and fills a new position from the proposed entry/SL,
// charging entry fees against the fill notional.
func OpenPosition(side model.Side, entry, sl, tp float64, equity, riskPct float64, cfg model.StrategyConfig, openedAt time.Time, tradeID string) model.Position {
	fill := ApplySlippage(entry, side, cfg.SlippageBps, false)
	riskFraction := abs(entry-sl) / entry
	size := (equity * riskPct) / riskFraction
	notional := fill * size
	fees := CalcFees(notional, cfg.TakerFeeBps)

	return model.Position{
		Side:       side,
		Entry:      fill,
		Size:       size,
		StopLoss:   sl,
		TakeProfit: tp,
		OpenedAt:   openedAt,
		FeesPaid:   fees,
		TradeID:    tradeID,
		MFE:        fill,
		MAE:        fill,
	}
}

// ExitReason identifies why a position was closed.
type ExitReason string

const (
	ExitNone      ExitReason = ""
	ExitStopLoss  ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTimeout   ExitReason = "timeout"
)

// CheckExit applies worst-case intrabar fill semantics: if both the stop
// loss and take profit fall inside the candle's [low, high] range, the stop
// loss wins.
func CheckExit(pos model.Position, candle model.Candle) (float64, ExitReason, bool) {
	slHit := priceTouched(pos.StopLoss, candle)
	tpHit := priceTouched(pos.TakeProfit, candle)

	switch {
	case slHit && tpHit:
		return pos.StopLoss, ExitStopLoss, true
	case slHit:
		return pos.StopLoss, ExitStopLoss, true
	case tpHit:
		return pos.TakeProfit, ExitTakeProfit, true
	default:
		return 0, ExitNone, false
	}
}

func priceTouched(level float64, candle model.Candle) bool {
	return level >= candle.Low && level <= candle.High
}

// UpdateExcursion refreshes MFE/MAE in price terms from the candle's high/low.
func UpdateExcursion(pos *model.Position, candle model.Candle) {
	switch pos.Side {
	case model.SideLong:
		if candle.High > pos.MFE {
			pos.MFE = candle.High
		}
		if candle.Low < pos.MAE {
			pos.MAE = candle.Low
		}
	case model.SideShort:
		if candle.Low < pos.MFE {
			pos.MFE = candle.Low
		}
		if candle.High > pos.MAE {
			pos.MAE = candle.High
		}
	}
}

// ClosePosition applies exit slippage and fees, returning the realized
// pnl (absolute and percentage) and the win/loss/breakeven classification.
// A ±0.01 dead zone around zero pnlAbs classifies as breakeven.
func ClosePosition(pos model.Position, exitPx float64, cfg model.StrategyConfig) (pnlAbs, pnlPct, fees float64, result model.TradeResult) {
	fillExit := ApplySlippage(exitPx, pos.Side, cfg.SlippageBps, true)
	exitNotional := fillExit * pos.Size
	exitFees := CalcFees(exitNotional, cfg.TakerFeeBps)
	fees = pos.FeesPaid + exitFees

	switch pos.Side {
	case model.SideLong:
		pnlAbs = (fillExit-pos.Entry)*pos.Size - fees
	case model.SideShort:
		pnlAbs = (pos.Entry-fillExit)*pos.Size - fees
	}
	pnlPct = pnlAbs / (pos.Entry * pos.Size) * 100

	switch {
	case pnlAbs > 0.01:
		result = model.ResultWin
	case pnlAbs < -0.01:
		result = model.ResultLoss
	default:
		result = model.ResultBreakeven
	}
	return pnlAbs, pnlPct, fees, result
}

// MarkToMarket returns balance plus unrealized pnl across open positions at
// the given mark price.
func MarkToMarket(balance float64, open model.OpenPositions, markPrice float64) float64 {
	equity := balance
	if p := open.Long; p != nil {
		equity += (markPrice - p.Entry) * p.Size
	}
	if p := open.Short; p != nil {
		equity += (p.Entry - markPrice) * p.Size
	}
	return equity
}

// UpdateEquityAndDD advances maxEquity and computes the current drawdown
// percentage.
func UpdateEquityAndDD(equity, maxEquity float64) (newMaxEquity, ddPct float64) {
	if equity > maxEquity {
		maxEquity = equity
	}
	if maxEquity <= 0 {
		return maxEquity, 0
	}
	return maxEquity, (maxEquity - equity) / maxEquity * 100
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
