package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

func closedTrade(pattern, region string, entryDate, exitDate time.Time, pnl, ret float64) *Trade {
	d := exitDate
	return &Trade{
		ID: "t", PatternTag: pattern, Region: types.Region(region),
		EntryDate: entryDate, ExitDate: &d,
		RealizedPnL: decimal.NewFromFloat(pnl), RealizedReturn: decimal.NewFromFloat(ret),
	}
}

func TestPerformanceAnalyzer_Analyze_EmptyTradesReturnsSentinels(t *testing.T) {
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(nil, nil)

	assert.True(t, m.Return.TotalReturn.IsZero())
	assert.True(t, m.Trading.ProfitFactorInfinite, "profit factor is infinite, not NaN, when there are zero closed trades")
	assert.Equal(t, 0, m.Trading.TotalClosedTrades)
}

func TestPerformanceAnalyzer_TradingMetrics_WinRateAndProfitFactor(t *testing.T) {
	trades := []*Trade{
		closedTrade("sma_crossover", "KR", day(2020, 1, 1), day(2020, 1, 10), 100, 0.1),
		closedTrade("sma_crossover", "KR", day(2020, 2, 1), day(2020, 2, 5), -50, -0.05),
		closedTrade("sma_crossover", "KR", day(2020, 3, 1), day(2020, 3, 20), 200, 0.2),
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(trades, nil)

	assert.Equal(t, 3, m.Trading.TotalClosedTrades)
	assert.True(t, m.Trading.WinRate.Equal(decimal.NewFromInt(2).Div(decimal.NewFromInt(3))), "got %s", m.Trading.WinRate)
	assert.False(t, m.Trading.ProfitFactorInfinite)
	assert.True(t, m.Trading.ProfitFactor.Equal(decimal.NewFromFloat(300.0/50.0)))
}

func TestPerformanceAnalyzer_TradingMetrics_AllWinsIsInfiniteProfitFactor(t *testing.T) {
	trades := []*Trade{
		closedTrade("momentum", "KR", day(2020, 1, 1), day(2020, 1, 5), 10, 0.01),
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(trades, nil)
	assert.True(t, m.Trading.ProfitFactorInfinite, "zero gross loss must report the sentinel, not divide by zero")
}

func TestPerformanceAnalyzer_ConsecutiveStreaks(t *testing.T) {
	trades := []*Trade{
		closedTrade("p", "KR", day(2020, 1, 1), day(2020, 1, 2), 10, 0.01),
		closedTrade("p", "KR", day(2020, 1, 3), day(2020, 1, 4), 10, 0.01),
		closedTrade("p", "KR", day(2020, 1, 5), day(2020, 1, 6), -10, -0.01),
		closedTrade("p", "KR", day(2020, 1, 7), day(2020, 1, 8), -10, -0.01),
		closedTrade("p", "KR", day(2020, 1, 9), day(2020, 1, 10), -10, -0.01),
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(trades, nil)
	assert.Equal(t, 2, m.Trading.MaxConsecutiveWins)
	assert.Equal(t, 3, m.Trading.MaxConsecutiveLosses)
}

func TestPerformanceAnalyzer_PartitionByPatternAndRegion(t *testing.T) {
	trades := []*Trade{
		closedTrade("sma_crossover", "KR", day(2020, 1, 1), day(2020, 1, 2), 10, 0.01),
		closedTrade("momentum", "US", day(2020, 1, 1), day(2020, 1, 2), -5, -0.01),
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(trades, nil)

	assert.Contains(t, m.ByPattern, "sma_crossover")
	assert.Contains(t, m.ByPattern, "momentum")
	assert.Contains(t, m.ByRegion, "KR")
	assert.Contains(t, m.ByRegion, "US")
	assert.Equal(t, 1, m.ByPattern["sma_crossover"].Trading.TotalClosedTrades)
}

func TestPerformanceAnalyzer_KellyAccuracy(t *testing.T) {
	trades := []*Trade{
		{PatternTag: "sma_crossover", ExitDate: ptrTime(day(2020, 1, 2)), RealizedPnL: decimal.NewFromInt(10), PredictedWinRate: decimal.NewFromFloat(0.6)},
		{PatternTag: "sma_crossover", ExitDate: ptrTime(day(2020, 1, 3)), RealizedPnL: decimal.NewFromInt(-10), PredictedWinRate: decimal.NewFromFloat(0.6)},
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(trades, nil)
	acc, ok := m.KellyAccuracy["sma_crossover"]
	assert.True(t, ok)
	// realized win rate 0.5 against predicted 0.6: accuracy = 1 - |0.5-0.6|/0.6
	assert.True(t, acc.Equal(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(0.1).Div(decimal.NewFromFloat(0.6)))))
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestPerformanceAnalyzer_MaxDrawdown_DurationMeasuredToRecovery(t *testing.T) {
	curve := []EquityCurveSample{
		{Date: day(2020, 1, 1), TotalValue: decimal.NewFromInt(1000), DailyReturn: decimal.Zero},
		{Date: day(2020, 1, 2), TotalValue: decimal.NewFromInt(800), DailyReturn: decimal.NewFromFloat(-0.2)},
		{Date: day(2020, 1, 3), TotalValue: decimal.NewFromInt(900), DailyReturn: decimal.NewFromFloat(0.125)},
		{Date: day(2020, 1, 4), TotalValue: decimal.NewFromInt(1000), DailyReturn: decimal.NewFromFloat(0.111)},
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(nil, curve)

	assert.True(t, m.Risk.MaxDrawdown.Equal(decimal.NewFromFloat(-0.2)), "got %s", m.Risk.MaxDrawdown)
	assert.Equal(t, 3, m.Risk.MaxDrawdownDurationDays, "duration must span peak (day 1) to recovery (day 4), not peak to trough")
}

func TestPerformanceAnalyzer_MaxDrawdown_NeverRecoveredDurationToEnd(t *testing.T) {
	curve := []EquityCurveSample{
		{Date: day(2020, 1, 1), TotalValue: decimal.NewFromInt(1000), DailyReturn: decimal.Zero},
		{Date: day(2020, 1, 2), TotalValue: decimal.NewFromInt(800), DailyReturn: decimal.NewFromFloat(-0.2)},
		{Date: day(2020, 1, 5), TotalValue: decimal.NewFromInt(850), DailyReturn: decimal.NewFromFloat(0.0625)},
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(nil, curve)

	assert.Equal(t, 4, m.Risk.MaxDrawdownDurationDays, "never-recovered drawdown must measure to the last sample")
}

func TestPerformanceAnalyzer_ReturnMetrics_FromEquityCurve(t *testing.T) {
	curve := []EquityCurveSample{
		{Date: day(2020, 1, 1), TotalValue: decimal.NewFromInt(1_000_000)},
		{Date: day(2020, 7, 1), TotalValue: decimal.NewFromInt(1_100_000)},
	}
	a := NewPerformanceAnalyzer(decimal.Zero)
	m := a.Analyze(nil, curve)
	assert.True(t, m.Return.TotalReturn.Equal(decimal.NewFromFloat(0.1)))
}
