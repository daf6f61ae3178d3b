package backtest

import (
	"github.com/shopspring/decimal"
)

// computeStopLoss derives a Position's stop_loss_price from entry price,
// an ATR reading, and the configured multiplier, clamping the relative
// distance from entry to [stop_loss_min, stop_loss_max] (spec §4.3 step 9).
func computeStopLoss(entryPrice, atr decimal.Decimal, cfg *BacktestConfig) decimal.Decimal {
	distanceFraction := atr.Mul(cfg.StopLossATRMultiplier).Div(entryPrice)
	if distanceFraction.LessThan(cfg.StopLossMin) {
		distanceFraction = cfg.StopLossMin
	}
	if distanceFraction.GreaterThan(cfg.StopLossMax) {
		distanceFraction = cfg.StopLossMax
	}
	return entryPrice.Mul(decimal.NewFromInt(1).Sub(distanceFraction))
}

// computeProfitTarget derives a Position's profit_target_price: entry_price
// * (1 + profit_target).
func computeProfitTarget(entryPrice decimal.Decimal, cfg *BacktestConfig) decimal.Decimal {
	return entryPrice.Mul(decimal.NewFromInt(1).Add(cfg.ProfitTarget))
}
