package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// BuySignal carries everything attempt_buy needs beyond the ticker/region
// identity: the strategy's opaque tags plus the ATR reading used to scale
// the stop-loss distance.
type BuySignal struct {
	PatternTag       string
	EntryScore       decimal.Decimal
	SectorTag        string
	ATR              decimal.Decimal
	PredictedWinRate decimal.Decimal
}

// SellIntent is one exit decision, from either an automatic stop/target
// check or a strategy sell signal.
type SellIntent struct {
	Ticker string
	Region types.Region
	Reason types.ExitReason
}

// PortfolioSimulator tracks cash, open positions, and realized/unrealized
// P&L; enforces position and sector limits; applies exit rules; emits
// trades. It exclusively owns open_positions and the trade log (spec §3
// ownership note) — all mutations flow through its methods.
type PortfolioSimulator struct {
	cash       decimal.Decimal
	positions  map[PositionKey]*Position
	tradeLog   []*Trade
	openTrades map[PositionKey]*Trade
	sectors    *sectorExposureTracker

	cfg   *BacktestConfig
	costs *TransactionCostModel
	log   *logrus.Entry
}

// NewPortfolioSimulator constructs a simulator seeded with initial_capital.
func NewPortfolioSimulator(cfg *BacktestConfig, costs *TransactionCostModel, log *logrus.Entry) *PortfolioSimulator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PortfolioSimulator{
		cash:       cfg.InitialCapital,
		positions:  make(map[PositionKey]*Position),
		openTrades: make(map[PositionKey]*Trade),
		sectors:    newSectorExposureTracker(),
		cfg:        cfg,
		costs:      costs,
		log:        log.WithField("component", "portfolio"),
	}
}

// Cash returns current cash on hand.
func (p *PortfolioSimulator) Cash() decimal.Decimal { return p.cash }

// OpenPositions returns the live position book, sorted by ticker for
// deterministic iteration by callers.
func (p *PortfolioSimulator) OpenPositions() []*Position {
	out := make([]*Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// TradeLog returns the append-only trade log, both open and closed.
func (p *PortfolioSimulator) TradeLog() []*Trade { return p.tradeLog }

// PositionsValue sums every open position's most recently marked notional.
func (p *PortfolioSimulator) PositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(pos.Notional())
	}
	return total
}

// TotalValue returns cash + positions_value at the last mark.
func (p *PortfolioSimulator) TotalValue() decimal.Decimal {
	return p.cash.Add(p.PositionsValue())
}

// MarkToMarket recomputes unrealized valuation for every open Position
// using date's close, and refreshes the sector-exposure cache.
func (p *PortfolioSimulator) MarkToMarket(date time.Time, provider DataProvider) error {
	p.sectors.reset()
	for key, pos := range p.positions {
		snap, err := provider.Snapshot(key.Ticker, key.Region, date)
		if err != nil {
			return &DataError{Ticker: key.Ticker, Date: date.Format("2006-01-02"), Reason: err}
		}
		if snap != nil {
			pos.lastClose = snap.Close
		}
		p.sectors.add(pos.SectorTag, pos.Notional())
	}
	return nil
}

// CheckExits evaluates every open Position in deterministic (alphabetical
// by ticker) order against stop/target levels for date, returning the sell
// intents the caller must execute via ApplySell. Stop loss wins ties.
func (p *PortfolioSimulator) CheckExits(date time.Time, provider DataProvider) ([]SellIntent, error) {
	var intents []SellIntent
	for _, pos := range p.OpenPositions() {
		snap, err := provider.Snapshot(pos.Ticker, pos.Region, date)
		if err != nil {
			return nil, &DataError{Ticker: pos.Ticker, Date: date.Format("2006-01-02"), Reason: err}
		}
		if snap == nil {
			continue
		}
		switch {
		case snap.Low.LessThanOrEqual(pos.StopLossPrice):
			intents = append(intents, SellIntent{Ticker: pos.Ticker, Region: pos.Region, Reason: types.ExitReasonStopLoss})
		case snap.High.GreaterThanOrEqual(pos.ProfitTargetPrice):
			intents = append(intents, SellIntent{Ticker: pos.Ticker, Region: pos.Region, Reason: types.ExitReasonProfitTarget})
		}
	}
	return intents, nil
}

// AttemptBuy runs the eight-step rejection ladder in spec §4.3 and either
// fills the order (creating a Position and an open Trade) or returns the
// Outcome naming why it did not.
func (p *PortfolioSimulator) AttemptBuy(ticker string, region types.Region, intendedNotional decimal.Decimal, signal BuySignal, date time.Time, provider DataProvider) (types.Outcome, error) {
	key := PositionKey{Ticker: ticker, Region: region}

	if _, exists := p.positions[key]; exists {
		return types.OutcomeDuplicatePosition, nil
	}

	snap, err := provider.Snapshot(ticker, region, date)
	if err != nil {
		return "", &DataError{Ticker: ticker, Date: date.Format("2006-01-02"), Reason: err}
	}
	if snap == nil {
		return types.OutcomeNoSnapshot, nil
	}

	fillPrice := p.costs.RoundToTick(snap.Close, region, types.SideBuy)

	estimatedShares := intendedNotional.Div(fillPrice).IntPart()
	slippagePerShare := p.costs.SlippagePerShare(fillPrice, estimatedShares, snap.Volume, types.SideBuy)
	effectivePrice := fillPrice.Add(slippagePerShare)

	shares := intendedNotional.Div(effectivePrice).IntPart()
	if shares < 1 {
		return types.OutcomeBelowMinLot, nil
	}

	commission := p.costs.Commission(fillPrice, shares, region)
	slippage := p.costs.Slippage(fillPrice, shares, snap.Volume, types.SideBuy)
	totalCost := fillPrice.Mul(decimal.NewFromInt(shares)).Add(commission).Add(slippage)

	portfolioValue := p.TotalValue()
	if p.cash.Sub(totalCost).LessThan(p.cfg.MinCashFraction.Mul(portfolioValue)) {
		return types.OutcomeCashReserveBreach, nil
	}

	positionNotional := fillPrice.Mul(decimal.NewFromInt(shares))
	if positionNotional.Div(portfolioValue).GreaterThan(p.cfg.MaxPositionFraction) {
		return types.OutcomePositionLimit, nil
	}

	if p.sectors.wouldBreach(signal.SectorTag, positionNotional, portfolioValue, p.cfg.MaxSectorFraction) {
		return types.OutcomeSectorLimit, nil
	}

	p.cash = p.cash.Sub(totalCost)

	pos := &Position{
		Ticker:            ticker,
		Region:            region,
		EntryDate:         date,
		EntryPrice:        fillPrice,
		Shares:            shares,
		StopLossPrice:     computeStopLoss(fillPrice, signal.ATR, p.cfg),
		ProfitTargetPrice: computeProfitTarget(fillPrice, p.cfg),
		PatternTag:        signal.PatternTag,
		EntryScore:        signal.EntryScore,
		SectorTag:         signal.SectorTag,
		lastClose:         fillPrice,
	}
	p.positions[key] = pos
	p.sectors.add(pos.SectorTag, pos.Notional())

	trade := NewOpenTrade(pos)
	trade.PredictedWinRate = signal.PredictedWinRate
	trade.CommissionPaidTotal = commission
	trade.SlippagePaidTotal = slippage.Abs()
	p.tradeLog = append(p.tradeLog, trade)
	p.openTrades[key] = trade

	p.log.WithFields(logrus.Fields{"ticker": ticker, "region": region, "shares": shares, "fill_price": fillPrice.String()}).Debug("buy filled")

	return types.OutcomeFilled, nil
}

// ApplySell tick-rounds the exit price, computes commission and slippage,
// realizes P&L, credits cash, closes the Trade, and removes the Position.
func (p *PortfolioSimulator) ApplySell(ticker string, region types.Region, price decimal.Decimal, reason types.ExitReason, date time.Time) error {
	key := PositionKey{Ticker: ticker, Region: region}
	pos, ok := p.positions[key]
	if !ok {
		return &InvariantError{Check: "apply_sell", Context: "no open position for " + ticker}
	}
	trade, ok := p.openTrades[key]
	if !ok {
		return &InvariantError{Check: "apply_sell", Context: "no open trade for " + ticker}
	}

	exitPrice := p.costs.RoundToTick(price, region, types.SideSell)
	commission := p.costs.Commission(exitPrice, pos.Shares, region)
	slippage := p.costs.Slippage(exitPrice, pos.Shares, decimal.NewFromInt(1), types.SideSell).Abs()

	grossPnL := exitPrice.Sub(pos.EntryPrice).Mul(decimal.NewFromInt(pos.Shares))
	realizedPnL := grossPnL.Sub(trade.CommissionPaidTotal).Sub(commission).Sub(trade.SlippagePaidTotal).Sub(slippage)
	costBasis := pos.EntryPrice.Mul(decimal.NewFromInt(pos.Shares))

	proceeds := exitPrice.Mul(decimal.NewFromInt(pos.Shares)).Sub(commission).Sub(slippage)
	p.cash = p.cash.Add(proceeds)

	exitDate := date
	trade.ExitDate = &exitDate
	trade.ExitPrice = exitPrice
	trade.ExitReason = reason
	trade.CommissionPaidTotal = trade.CommissionPaidTotal.Add(commission)
	trade.SlippagePaidTotal = trade.SlippagePaidTotal.Add(slippage)
	trade.RealizedPnL = realizedPnL
	if !costBasis.IsZero() {
		trade.RealizedReturn = realizedPnL.Div(costBasis)
	}

	p.sectors.remove(pos.SectorTag, pos.Notional())
	delete(p.positions, key)
	delete(p.openTrades, key)

	p.log.WithFields(logrus.Fields{"ticker": ticker, "region": region, "reason": reason, "realized_pnl": realizedPnL.String()}).Debug("sell applied")

	return nil
}

// CheckInvariants verifies the universal invariants from spec §3/§4.3/§8.
// The engine runs it once at the end of each trading day, after that day's
// fills, in every build; it is not run after each individual buy or sell.
// Violations are reported as InvariantError for fail-fast handling.
func (p *PortfolioSimulator) CheckInvariants() error {
	if p.cash.LessThan(decimal.Zero) {
		return &InvariantError{Check: "cash_nonnegative", Context: p.cash.String()}
	}
	portfolioValue := p.TotalValue()
	maxInvested := portfolioValue.Sub(p.cfg.MinCashFraction.Mul(portfolioValue))
	if p.PositionsValue().GreaterThan(maxInvested.Mul(decimal.NewFromFloat(1 + tolerance))) {
		return &InvariantError{Check: "position_notional_cap", Context: p.PositionsValue().String()}
	}
	if len(p.positions) != len(p.openTrades) {
		return &InvariantError{Check: "open_positions_matches_open_trades", Context: ""}
	}
	for key := range p.positions {
		if _, ok := p.openTrades[key]; !ok {
			return &InvariantError{Check: "position_without_trade", Context: key.Ticker}
		}
	}
	return nil
}

// tolerance accounts for rounding in the fixed-point-to-display boundary
// when comparing invested notional to its cap.
const tolerance = 1e-9

// forceLiquidate closes every remaining open Position at date's close with
// reason end_of_backtest, so every Trade closes and metrics stay well
// defined (spec §4.4 termination step).
func (p *PortfolioSimulator) forceLiquidate(date time.Time, provider DataProvider) error {
	for _, pos := range p.OpenPositions() {
		snap, err := provider.Snapshot(pos.Ticker, pos.Region, date)
		if err != nil {
			return &DataError{Ticker: pos.Ticker, Date: date.Format("2006-01-02"), Reason: err}
		}
		price := pos.lastClose
		if snap != nil {
			price = snap.Close
		}
		if err := p.ApplySell(pos.Ticker, pos.Region, price, types.ExitReasonEndOfBacktest, date); err != nil {
			return err
		}
	}
	return nil
}
