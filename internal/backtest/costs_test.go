package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

func TestTransactionCostModel_RoundToTick(t *testing.T) {
	m := NewTransactionCostModel(decimal.NewFromFloat(0.0001), decimal.NewFromFloat(10))

	buy := m.RoundToTick(decimal.NewFromInt(4998), types.RegionKR, types.SideBuy)
	assert.True(t, buy.Equal(decimal.NewFromInt(5000)), "buy rounds up to next tick, got %s", buy)

	sell := m.RoundToTick(decimal.NewFromInt(4998), types.RegionKR, types.SideSell)
	assert.True(t, sell.Equal(decimal.NewFromInt(4995)), "sell rounds down to tick, got %s", sell)
}

func TestTransactionCostModel_Slippage_SqrtImpact(t *testing.T) {
	m := NewTransactionCostModel(decimal.Zero, decimal.NewFromInt(20))

	small := m.Slippage(decimal.NewFromInt(100), 100, decimal.NewFromInt(1_000_000), types.SideBuy)
	large := m.Slippage(decimal.NewFromInt(100), 10_000, decimal.NewFromInt(1_000_000), types.SideBuy)

	assert.True(t, large.GreaterThan(small), "larger order size must incur more slippage")

	sell := m.Slippage(decimal.NewFromInt(100), 100, decimal.NewFromInt(1_000_000), types.SideSell)
	assert.True(t, sell.IsNegative(), "sell slippage is signed negative")
}

func TestTransactionCostModel_Slippage_ZeroADV(t *testing.T) {
	m := NewTransactionCostModel(decimal.Zero, decimal.NewFromInt(20))
	got := m.Slippage(decimal.NewFromInt(100), 100, decimal.Zero, types.SideBuy)
	assert.True(t, got.IsZero(), "zero average daily volume must not divide by zero")
}

func TestTransactionCostModel_Commission_RegionDefaultRate(t *testing.T) {
	m := NewTransactionCostModel(decimal.Zero, decimal.Zero)
	got := m.Commission(decimal.NewFromInt(1000), 10, types.RegionKR)
	want := decimal.NewFromInt(1000).Mul(decimal.NewFromInt(10)).Mul(decimal.NewFromFloat(0.00015))
	assert.True(t, got.Equal(want), "expected region default commission rate, got %s want %s", got, want)
}
