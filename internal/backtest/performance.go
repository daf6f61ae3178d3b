package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

// ReturnMetrics holds the overall return figures, §4.6.
type ReturnMetrics struct {
	TotalReturn decimal.Decimal `json:"total_return"`
	CAGR        decimal.Decimal `json:"cagr"`
}

// RiskMetrics holds figures derived from the daily-return series, §4.6.
type RiskMetrics struct {
	Sharpe                   decimal.Decimal `json:"sharpe"`
	Sortino                  decimal.Decimal `json:"sortino"`
	MaxDrawdown              decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownDurationDays  int             `json:"max_drawdown_duration_days"`
	Calmar                   decimal.Decimal `json:"calmar"`
	AnnualizedStdDev         decimal.Decimal `json:"annualized_std_dev"`
	AnnualizedDownsideDev    decimal.Decimal `json:"annualized_downside_dev"`
	ValueAtRisk95            decimal.Decimal `json:"value_at_risk_95"`
	ConditionalValueAtRisk95 decimal.Decimal `json:"conditional_value_at_risk_95"`
}

// TradingMetrics holds trade-log derived figures, §4.6.
type TradingMetrics struct {
	TotalClosedTrades     int             `json:"total_closed_trades"`
	WinRate               decimal.Decimal `json:"win_rate"`
	ProfitFactor          decimal.Decimal `json:"profit_factor"`
	ProfitFactorInfinite  bool            `json:"profit_factor_infinite"`
	AvgWinPct             decimal.Decimal `json:"avg_win_pct"`
	AvgLossPct            decimal.Decimal `json:"avg_loss_pct"`
	WinLossRatio          decimal.Decimal `json:"win_loss_ratio"`
	AvgHoldingDays        decimal.Decimal `json:"avg_holding_days"`
	MaxConsecutiveWins    int             `json:"max_consecutive_wins"`
	MaxConsecutiveLosses  int             `json:"max_consecutive_losses"`
}

// PartitionMetrics is the trading-metrics bundle restricted to a subset of
// trades (a pattern_tag, region, weekday, or month). Omitted entirely by
// the caller when the subset has zero closed trades.
type PartitionMetrics struct {
	Trading TradingMetrics `json:"trading"`
}

// Metrics is the full bundle PerformanceAnalyzer emits, consumed by
// BacktestResult.
type Metrics struct {
	Return  ReturnMetrics  `json:"return"`
	Risk    RiskMetrics    `json:"risk"`
	Trading TradingMetrics `json:"trading"`

	ByPattern map[string]PartitionMetrics `json:"by_pattern,omitempty"`
	ByRegion  map[string]PartitionMetrics `json:"by_region,omitempty"`
	ByWeekday map[string]PartitionMetrics `json:"by_weekday,omitempty"`
	ByMonth   map[string]PartitionMetrics `json:"by_month,omitempty"`

	// KellyAccuracy maps pattern_tag to 1 - |realized - predicted| /
	// predicted, per the Kelly-accuracy open-question resolution (§9),
	// computed only where at least one closed trade tagged predicted_win_rate.
	KellyAccuracy map[string]decimal.Decimal `json:"kelly_accuracy,omitempty"`
}

// PerformanceAnalyzer consumes the closed trade log and equity curve and
// emits a metrics bundle. Empty inputs and zero-variance series return
// well-defined sentinel values, never a divide-by-zero fault.
type PerformanceAnalyzer struct {
	riskFreeRate decimal.Decimal
}

// NewPerformanceAnalyzer builds an analyzer parameterised by rf, the
// Sharpe-ratio risk-free rate (default 0).
func NewPerformanceAnalyzer(riskFreeRate decimal.Decimal) *PerformanceAnalyzer {
	return &PerformanceAnalyzer{riskFreeRate: riskFreeRate}
}

// Analyze computes the full metrics bundle from a run's closed trades and
// equity curve.
func (a *PerformanceAnalyzer) Analyze(trades []*Trade, curve []EquityCurveSample) Metrics {
	closed := closedTrades(trades)

	m := Metrics{
		Return:  a.returnMetrics(curve),
		Risk:    a.riskMetrics(curve),
		Trading: tradingMetrics(closed),
	}

	m.ByPattern = partitionBy(closed, func(t *Trade) string { return t.PatternTag })
	m.ByRegion = partitionBy(closed, func(t *Trade) string { return string(t.Region) })
	m.ByWeekday = partitionBy(closed, func(t *Trade) string { return t.EntryDate.Weekday().String() })
	m.ByMonth = partitionBy(closed, func(t *Trade) string { return t.EntryDate.Format("2006-01") })
	m.KellyAccuracy = kellyAccuracy(closed)

	return m
}

func closedTrades(trades []*Trade) []*Trade {
	var out []*Trade
	for _, t := range trades {
		if !t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

func (a *PerformanceAnalyzer) returnMetrics(curve []EquityCurveSample) ReturnMetrics {
	if len(curve) == 0 {
		return ReturnMetrics{}
	}
	first := curve[0].TotalValue
	last := curve[len(curve)-1].TotalValue
	if first.IsZero() {
		return ReturnMetrics{}
	}
	totalReturn := last.Sub(first).Div(first)

	years := curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24 / 365.25
	var cagr decimal.Decimal
	if years > 0 {
		ratio := last.Div(first).InexactFloat64()
		if ratio > 0 {
			cagr = decimal.NewFromFloat(math.Pow(ratio, 1/years) - 1)
		}
	}

	return ReturnMetrics{TotalReturn: totalReturn, CAGR: cagr}
}

func (a *PerformanceAnalyzer) riskMetrics(curve []EquityCurveSample) RiskMetrics {
	if len(curve) == 0 {
		return RiskMetrics{}
	}

	returns := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		r, _ := curve[i].DailyReturn.Float64()
		returns = append(returns, r)
	}

	meanDaily := mean(returns)
	stdDaily := stddev(returns, meanDaily)
	annualizedReturn := meanDaily * 252
	annualizedStd := stdDaily * math.Sqrt(252)

	var sharpe float64
	if annualizedStd != 0 {
		rf, _ := a.riskFreeRate.Float64()
		sharpe = (annualizedReturn - rf) / annualizedStd
	}

	downside := make([]float64, len(returns))
	for i, r := range returns {
		if r < 0 {
			downside[i] = r * r
		}
	}
	downsideDev := math.Sqrt(mean(downside)) * math.Sqrt(252)
	var sortino float64
	if downsideDev != 0 {
		rf, _ := a.riskFreeRate.Float64()
		sortino = (annualizedReturn - rf) / downsideDev
	}

	maxDD, ddDuration := maxDrawdown(curve)

	var calmar float64
	if maxDD != 0 {
		calmar = annualizedReturn / math.Abs(maxDD)
	}

	decReturns := make([]decimal.Decimal, len(returns))
	for i, r := range returns {
		decReturns[i] = decimal.NewFromFloat(r)
	}
	varCalc := newVaRCalculator(0.95)
	var95 := varCalc.historicalVaR(decReturns)
	cvar95 := varCalc.conditionalVaR(decReturns)

	return RiskMetrics{
		Sharpe:                   decimal.NewFromFloat(sharpe),
		Sortino:                  decimal.NewFromFloat(sortino),
		MaxDrawdown:              decimal.NewFromFloat(maxDD),
		MaxDrawdownDurationDays:  ddDuration,
		Calmar:                   decimal.NewFromFloat(calmar),
		AnnualizedStdDev:         decimal.NewFromFloat(annualizedStd),
		AnnualizedDownsideDev:    decimal.NewFromFloat(downsideDev),
		ValueAtRisk95:            var95,
		ConditionalValueAtRisk95: cvar95,
	}
}

// maxDrawdown returns the worst peak-to-trough decline and the duration of
// that drawdown measured peak-to-recovery: the number of days from the peak
// that preceded the worst trough until the first later sample whose
// TotalValue recovers to that peak, or to the last sample if it never
// recovers.
func maxDrawdown(curve []EquityCurveSample) (float64, int) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].TotalValue
	peakDate := curve[0].Date
	maxDD := 0.0
	var worstPeak, worstPeakDate = peak, peakDate
	var worstTroughIdx int

	for i, sample := range curve {
		if sample.TotalValue.GreaterThan(peak) {
			peak = sample.TotalValue
			peakDate = sample.Date
		}
		if peak.IsZero() {
			continue
		}
		dd := sample.TotalValue.Sub(peak).Div(peak).InexactFloat64()
		if dd < maxDD {
			maxDD = dd
			worstPeak, worstPeakDate = peak, peakDate
			worstTroughIdx = i
		}
	}

	if maxDD == 0 {
		return 0, 0
	}

	recoveryDate := curve[len(curve)-1].Date
	for i := worstTroughIdx + 1; i < len(curve); i++ {
		if curve[i].TotalValue.GreaterThanOrEqual(worstPeak) {
			recoveryDate = curve[i].Date
			break
		}
	}

	duration := int(recoveryDate.Sub(worstPeakDate).Hours() / 24)
	return maxDD, duration
}

func tradingMetrics(closed []*Trade) TradingMetrics {
	if len(closed) == 0 {
		return TradingMetrics{ProfitFactorInfinite: true}
	}

	var wins, losses int
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	sumWinPct := decimal.Zero
	sumLossPct := decimal.Zero
	sumHoldingDays := decimal.Zero
	maxConsecWins, maxConsecLosses := 0, 0
	curWins, curLosses := 0, 0

	for _, t := range closed {
		holdingDays := 0
		if t.ExitDate != nil {
			holdingDays = int(t.ExitDate.Sub(t.EntryDate).Hours() / 24)
		}
		sumHoldingDays = sumHoldingDays.Add(decimal.NewFromInt(int64(holdingDays)))

		if t.RealizedPnL.GreaterThan(decimal.Zero) {
			wins++
			grossProfit = grossProfit.Add(t.RealizedPnL)
			sumWinPct = sumWinPct.Add(t.RealizedReturn)
			curWins++
			curLosses = 0
			if curWins > maxConsecWins {
				maxConsecWins = curWins
			}
		} else if t.RealizedPnL.LessThan(decimal.Zero) {
			losses++
			grossLoss = grossLoss.Add(t.RealizedPnL.Abs())
			sumLossPct = sumLossPct.Add(t.RealizedReturn)
			curLosses++
			curWins = 0
			if curLosses > maxConsecLosses {
				maxConsecLosses = curLosses
			}
		} else {
			curWins, curLosses = 0, 0
		}
	}

	n := decimal.NewFromInt(int64(len(closed)))
	winRate := decimal.NewFromInt(int64(wins)).Div(n)

	var profitFactor decimal.Decimal
	var infinite bool
	if grossLoss.IsZero() {
		infinite = true
	} else {
		profitFactor = grossProfit.Div(grossLoss)
	}

	avgWinPct := decimal.Zero
	if wins > 0 {
		avgWinPct = sumWinPct.Div(decimal.NewFromInt(int64(wins)))
	}
	avgLossPct := decimal.Zero
	if losses > 0 {
		avgLossPct = sumLossPct.Div(decimal.NewFromInt(int64(losses)))
	}
	winLossRatio := decimal.Zero
	if !avgLossPct.IsZero() {
		winLossRatio = avgWinPct.Div(avgLossPct.Abs())
	}

	return TradingMetrics{
		TotalClosedTrades:    len(closed),
		WinRate:              winRate,
		ProfitFactor:         profitFactor,
		ProfitFactorInfinite: infinite,
		AvgWinPct:            avgWinPct,
		AvgLossPct:           avgLossPct,
		WinLossRatio:         winLossRatio,
		AvgHoldingDays:       sumHoldingDays.Div(n),
		MaxConsecutiveWins:   maxConsecWins,
		MaxConsecutiveLosses: maxConsecLosses,
	}
}

func partitionBy(closed []*Trade, key func(*Trade) string) map[string]PartitionMetrics {
	buckets := make(map[string][]*Trade)
	for _, t := range closed {
		k := key(t)
		if k == "" {
			continue
		}
		buckets[k] = append(buckets[k], t)
	}
	if len(buckets) == 0 {
		return nil
	}
	out := make(map[string]PartitionMetrics, len(buckets))
	for k, trades := range buckets {
		out[k] = PartitionMetrics{Trading: tradingMetrics(trades)}
	}
	return out
}

func kellyAccuracy(closed []*Trade) map[string]decimal.Decimal {
	type bucket struct {
		wins, total int
		predicted   decimal.Decimal
	}
	buckets := make(map[string]*bucket)
	for _, t := range closed {
		if t.PredictedWinRate.IsZero() {
			continue
		}
		b, ok := buckets[t.PatternTag]
		if !ok {
			b = &bucket{predicted: t.PredictedWinRate}
			buckets[t.PatternTag] = b
		}
		b.total++
		if t.RealizedPnL.GreaterThan(decimal.Zero) {
			b.wins++
		}
	}
	if len(buckets) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(buckets))
	for tag, b := range buckets {
		if b.total == 0 || b.predicted.IsZero() {
			continue
		}
		realized := decimal.NewFromInt(int64(b.wins)).Div(decimal.NewFromInt(int64(b.total)))
		diff := realized.Sub(b.predicted).Abs().Div(b.predicted)
		out[tag] = decimal.NewFromInt(1).Sub(diff)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
