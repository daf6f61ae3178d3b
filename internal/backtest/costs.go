package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// tickTier is one price band of a region's tick-size table.
type tickTier struct {
	upTo     decimal.Decimal // tier applies for price < upTo; last tier has a zero upTo meaning unbounded
	tickSize decimal.Decimal
}

// regionCost is the commission rate and tick table for one region. The
// table is data, not code: adding a region is a configuration change.
type regionCost struct {
	commissionRate decimal.Decimal
	commissionMin  decimal.Decimal
	tiers          []tickTier
}

// defaultRegionCosts is the illustrative region table from spec §4.2.
var defaultRegionCosts = map[types.Region]regionCost{
	types.RegionKR: {
		commissionRate: decimal.NewFromFloat(0.00015),
		commissionMin:  decimal.Zero,
		tiers: []tickTier{
			{upTo: decimal.NewFromInt(1000), tickSize: decimal.NewFromInt(1)},
			{upTo: decimal.NewFromInt(5000), tickSize: decimal.NewFromInt(5)},
			{upTo: decimal.NewFromInt(20000), tickSize: decimal.NewFromInt(10)},
			{upTo: decimal.Zero, tickSize: decimal.NewFromInt(50)},
		},
	},
	types.RegionUS: {
		commissionRate: decimal.Zero,
		commissionMin:  decimal.Zero,
		tiers: []tickTier{
			{upTo: decimal.Zero, tickSize: decimal.NewFromFloat(0.01)},
		},
	},
	types.RegionJP: {
		commissionRate: decimal.NewFromFloat(0.0003),
		commissionMin:  decimal.Zero,
		tiers: []tickTier{
			{upTo: decimal.NewFromInt(3000), tickSize: decimal.NewFromInt(1)},
			{upTo: decimal.Zero, tickSize: decimal.NewFromInt(5)},
		},
	},
}

// TransactionCostModel computes commission, slippage, and tick-rounded
// execution price per fill. Given identical inputs, outputs are
// bit-identical across runs.
type TransactionCostModel struct {
	commissionRate  decimal.Decimal
	baseSlippageBps decimal.Decimal
	regions         map[types.Region]regionCost
}

// NewTransactionCostModel builds a cost model parameterised by the config's
// commission_rate and base_slippage_bps, layered over the region tick table.
func NewTransactionCostModel(commissionRate, baseSlippageBps decimal.Decimal) *TransactionCostModel {
	return &TransactionCostModel{
		commissionRate:  commissionRate,
		baseSlippageBps: baseSlippageBps,
		regions:         defaultRegionCosts,
	}
}

// Commission returns the region-dependent commission, a rate times gross
// notional with a minimum floor if configured.
func (m *TransactionCostModel) Commission(price decimal.Decimal, shares int64, region types.Region) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(shares))
	rc, ok := m.regions[region]
	rate := m.commissionRate
	if ok && rate.IsZero() {
		rate = rc.commissionRate
	}
	fee := notional.Mul(rate)
	if ok && fee.LessThan(rc.commissionMin) {
		return rc.commissionMin
	}
	return fee
}

// Slippage computes the market-impact amount: slippage_bps = base_bps *
// sqrt(order_size / adv); amount = price * shares * slippage_bps / 10_000.
func (m *TransactionCostModel) Slippage(price decimal.Decimal, shares int64, avgDailyVolume decimal.Decimal, side types.Side) decimal.Decimal {
	if avgDailyVolume.IsZero() {
		return decimal.Zero
	}
	orderSize := decimal.NewFromInt(shares)
	ratio := orderSize.Div(avgDailyVolume).InexactFloat64()
	if ratio < 0 {
		ratio = 0
	}
	slippageBps := m.baseSlippageBps.Mul(decimal.NewFromFloat(math.Sqrt(ratio)))
	amount := price.Mul(orderSize).Mul(slippageBps).Div(decimal.NewFromInt(10000))
	if side == types.SideSell {
		return amount.Neg()
	}
	return amount
}

// SlippagePerShare returns the per-share price drift, signed by side: buys
// fill at price+delta, sells at price-delta.
func (m *TransactionCostModel) SlippagePerShare(price decimal.Decimal, shares int64, avgDailyVolume decimal.Decimal, side types.Side) decimal.Decimal {
	if shares == 0 {
		return decimal.Zero
	}
	total := m.Slippage(price, shares, avgDailyVolume, side)
	return total.Div(decimal.NewFromInt(shares)).Abs()
}

// RoundToTick rounds a price to the region's tick-size tier, banded by
// price level. Buys round up to the next tick, sells round down, so
// realised costs are always conservative.
func (m *TransactionCostModel) RoundToTick(price decimal.Decimal, region types.Region, side types.Side) decimal.Decimal {
	tick := m.tickSizeFor(price, region)
	if tick.IsZero() {
		return price
	}
	units := price.Div(tick)
	if side == types.SideBuy {
		return units.Ceil().Mul(tick)
	}
	return units.Floor().Mul(tick)
}

func (m *TransactionCostModel) tickSizeFor(price decimal.Decimal, region types.Region) decimal.Decimal {
	rc, ok := m.regions[region]
	if !ok || len(rc.tiers) == 0 {
		return decimal.Zero
	}
	for _, tier := range rc.tiers {
		if tier.upTo.IsZero() || price.LessThan(tier.upTo) {
			return tier.tickSize
		}
	}
	return rc.tiers[len(rc.tiers)-1].tickSize
}
