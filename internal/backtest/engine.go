package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// ErrCancelled is returned when a run's cooperative cancellation flag was
// observed at the top of a trading-day iteration. The partial result is
// discarded; no half-closed trades are exposed.
var ErrCancelled = errors.New("backtest run cancelled")

// BacktestEngine orchestrates the trading-day loop: sequences strategy
// versus exits versus entries, appends equity-curve samples, and feeds
// trades to the portfolio. It exclusively owns the equity curve.
type BacktestEngine struct {
	cfg       *BacktestConfig
	provider  DataProvider
	strategy  Strategy
	portfolio *PortfolioSimulator
	costs     *TransactionCostModel
	log       *logrus.Entry

	equityCurve []EquityCurveSample
}

// NewBacktestEngine wires a run's provider and strategy against a freshly
// seeded portfolio. cfg must already have passed Validate.
func NewBacktestEngine(cfg *BacktestConfig, provider DataProvider, strategy Strategy, log *logrus.Entry) *BacktestEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	costs := NewTransactionCostModel(cfg.CommissionRate, cfg.BaseSlippageBps)
	return &BacktestEngine{
		cfg:       cfg,
		provider:  provider,
		strategy:  strategy,
		costs:     costs,
		portfolio: NewPortfolioSimulator(cfg, costs, log),
		log:       log.WithField("component", "engine"),
	}
}

// Run walks the trading calendar from start to end, executing the
// mark-to-market -> automatic exits -> strategy sells -> strategy buys ->
// equity-sample sequence each day, and force-liquidates at the terminal
// date. ctx cancellation is checked at the top of each day iteration.
func (e *BacktestEngine) Run(ctx context.Context) (*BacktestResult, error) {
	startTime := time.Now()

	days, err := e.provider.TradingDays(e.cfg.Regions[0], e.cfg.StartDate, e.cfg.EndDate)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, &DataError{Reason: ErrDataMissing}
	}

	for i, day := range days {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		default:
		}

		if err := e.portfolio.MarkToMarket(day, e.provider); err != nil {
			return nil, err
		}

		exitIntents, err := e.portfolio.CheckExits(day, e.provider)
		if err != nil {
			return nil, err
		}
		if err := e.executeSells(exitIntents, day); err != nil {
			return nil, err
		}

		openPositions := e.portfolio.OpenPositions()
		sellIntents, err := e.strategy.DecideSells(openPositions, day, e.provider)
		if err != nil {
			return nil, err
		}
		if err := e.executeSells(sellIntents, day); err != nil {
			return nil, err
		}

		isLastDay := i == len(days)-1
		if !isLastDay {
			if err := e.executeBuys(day); err != nil {
				return nil, err
			}
		}

		if err := e.sampleEquityCurve(day); err != nil {
			return nil, err
		}

		if err := e.portfolio.CheckInvariants(); err != nil {
			return nil, err
		}
	}

	lastDay := days[len(days)-1]
	if err := e.portfolio.forceLiquidate(lastDay, e.provider); err != nil {
		return nil, err
	}
	// Re-sample the final day so its equity curve entry reflects the
	// post-liquidation all-cash state, overwriting the last appended row.
	if err := e.resampleLastDay(lastDay); err != nil {
		return nil, err
	}

	result := &BacktestResult{
		ID:            newRunID(),
		ConfigHash:    e.cfg.Hash(),
		Config:        *e.cfg,
		Trades:        e.portfolio.TradeLog(),
		EquityCurve:   e.equityCurve,
		StartDate:     e.cfg.StartDate,
		EndDate:       e.cfg.EndDate,
		ExecutionTime: time.Since(startTime),
	}
	result.Metrics = NewPerformanceAnalyzer(e.cfg.RiskFreeRate).Analyze(result.Trades, result.EquityCurve)

	return result, nil
}

func (e *BacktestEngine) executeSells(intents []SellIntent, day time.Time) error {
	for _, intent := range intents {
		snap, err := e.provider.Snapshot(intent.Ticker, intent.Region, day)
		if err != nil {
			return &DataError{Ticker: intent.Ticker, Date: day.Format("2006-01-02"), Reason: err}
		}
		if snap == nil {
			continue
		}
		price := exitPriceFor(snap, intent.Reason, e.portfolio)
		if err := e.portfolio.ApplySell(intent.Ticker, intent.Region, price, intent.Reason, day); err != nil {
			return err
		}
	}
	return nil
}

// exitPriceFor resolves the fill price for an exit: stop-loss fills at
// min(open, stop_loss_price), profit-target at max(open, profit_target),
// anything else (strategy sell) fills at the day's close.
func exitPriceFor(snap *types.Snapshot, reason types.ExitReason, portfolio *PortfolioSimulator) decimal.Decimal {
	key := PositionKey{Ticker: snap.Ticker, Region: snap.Region}
	pos, ok := portfolio.positions[key]
	if !ok {
		return snap.Close
	}
	switch reason {
	case types.ExitReasonStopLoss:
		if snap.Open.LessThan(pos.StopLossPrice) {
			return snap.Open
		}
		return pos.StopLossPrice
	case types.ExitReasonProfitTarget:
		if snap.Open.GreaterThan(pos.ProfitTargetPrice) {
			return snap.Open
		}
		return pos.ProfitTargetPrice
	default:
		return snap.Close
	}
}

func (e *BacktestEngine) executeBuys(day time.Time) error {
	universe, err := e.provider.Universe(e.cfg.Regions[0], day, nil)
	if err != nil {
		return err
	}
	if len(e.cfg.Tickers) > 0 {
		filtered := make(map[string]bool, len(e.cfg.Tickers))
		for _, t := range e.cfg.Tickers {
			if universe[t] {
				filtered[t] = true
			}
		}
		universe = filtered
	}

	candidates, err := e.strategy.RankBuys(universe, day, e.provider, e.portfolio)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		if e.cfg.MaxOpenPositions > 0 && len(e.portfolio.OpenPositions()) >= e.cfg.MaxOpenPositions {
			break
		}
		signal := BuySignal{
			PatternTag:       cand.PatternTag,
			EntryScore:       cand.EntryScore,
			SectorTag:        cand.SectorTag,
			ATR:              cand.ATR,
			PredictedWinRate: cand.PredictedWinRate,
		}
		outcome, err := e.portfolio.AttemptBuy(cand.Ticker, cand.Region, cand.IntendedNotional, signal, day, e.provider)
		if err != nil {
			return err
		}
		if outcome != types.OutcomeFilled {
			e.log.WithFields(logrus.Fields{"ticker": cand.Ticker, "outcome": outcome}).Debug("buy rejected")
			if outcome == types.OutcomeCashReserveBreach {
				break
			}
			continue
		}
	}
	return nil
}

func (e *BacktestEngine) sampleEquityCurve(day time.Time) error {
	cash := e.portfolio.Cash()
	positionsValue := e.portfolio.PositionsValue()
	total := cash.Add(positionsValue)

	dailyReturn := decimal.Zero
	if n := len(e.equityCurve); n > 0 {
		prev := e.equityCurve[n-1].TotalValue
		if !prev.IsZero() {
			dailyReturn = total.Sub(prev).Div(prev)
		}
	}

	e.equityCurve = append(e.equityCurve, EquityCurveSample{
		Date:           day,
		Cash:           cash,
		PositionsValue: positionsValue,
		TotalValue:     total,
		DailyReturn:    dailyReturn,
	})
	return nil
}

func (e *BacktestEngine) resampleLastDay(day time.Time) error {
	if len(e.equityCurve) == 0 {
		return e.sampleEquityCurve(day)
	}
	cash := e.portfolio.Cash()
	positionsValue := e.portfolio.PositionsValue()
	total := cash.Add(positionsValue)

	idx := len(e.equityCurve) - 1
	prevTotal := decimal.Zero
	if idx > 0 {
		prevTotal = e.equityCurve[idx-1].TotalValue
	}
	dailyReturn := decimal.Zero
	if !prevTotal.IsZero() {
		dailyReturn = total.Sub(prevTotal).Div(prevTotal)
	}
	e.equityCurve[idx] = EquityCurveSample{
		Date: day, Cash: cash, PositionsValue: positionsValue,
		TotalValue: total, DailyReturn: dailyReturn,
	}
	return nil
}
