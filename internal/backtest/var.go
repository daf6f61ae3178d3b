package backtest

import (
	"sort"

	"github.com/shopspring/decimal"
)

// varCalculator computes historical Value-at-Risk and Conditional VaR
// (Expected Shortfall) from a daily-return series, the supplemented risk
// metric named in SPEC_FULL.md.
type varCalculator struct {
	confidence float64
}

func newVaRCalculator(confidence float64) *varCalculator {
	return &varCalculator{confidence: confidence}
}

func (vc *varCalculator) historicalVaR(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) == 0 {
		return decimal.Zero
	}
	sorted := sortedCopy(returns)

	index := int(float64(len(sorted)) * (1 - vc.confidence))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index].Neg()
}

func (vc *varCalculator) conditionalVaR(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) == 0 {
		return decimal.Zero
	}
	sorted := sortedCopy(returns)

	cutoff := int(float64(len(sorted)) * (1 - vc.confidence))
	if cutoff == 0 {
		cutoff = 1
	}

	sum := decimal.Zero
	for i := 0; i < cutoff; i++ {
		sum = sum.Add(sorted[i])
	}
	return sum.Div(decimal.NewFromInt(int64(cutoff))).Neg()
}

func sortedCopy(returns []decimal.Decimal) []decimal.Decimal {
	sorted := make([]decimal.Decimal, len(returns))
	copy(sorted, returns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	return sorted
}
