package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// sizeNotional derives an intended buy notional from the portfolio's
// current value scaled by max_position_fraction and kelly_multiplier, the
// way a Kelly-scaled position-sizing rule conservatively under-sizes
// relative to the hard cap attempt_buy enforces independently.
func sizeNotional(portfolio *PortfolioSimulator, cfg *BacktestConfig) decimal.Decimal {
	return portfolio.TotalValue().Mul(cfg.MaxPositionFraction).Mul(cfg.KellyMultiplier)
}

// lastNBars returns the trailing window of bars ending on or before asOf,
// honouring the look-ahead contract by never reading past asOf.
func lastNBars(provider DataProvider, ticker string, region types.Region, asOf time.Time, n int) ([]types.OHLCV, error) {
	start := asOf.AddDate(0, 0, -(n*3 + 10)) // generous calendar padding for weekends/holidays
	bars, err := provider.OHLCV(ticker, region, start, asOf)
	if err != nil {
		return nil, err
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func sma(bars []types.OHLCV) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

// atr computes a simplified Average True Range over bars: the mean of
// max(high-low, |high-prevClose|, |low-prevClose|).
func atr(bars []types.OHLCV) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i, b := range bars {
		trueRange := b.High.Sub(b.Low)
		if i > 0 {
			prevClose := bars[i-1].Close
			if d := b.High.Sub(prevClose).Abs(); d.GreaterThan(trueRange) {
				trueRange = d
			}
			if d := b.Low.Sub(prevClose).Abs(); d.GreaterThan(trueRange) {
				trueRange = d
			}
		}
		sum = sum.Add(trueRange)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

func intParam(params map[string]interface{}, key string, def int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func decimalParam(params map[string]interface{}, key string, def decimal.Decimal) decimal.Decimal {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return decimal.NewFromFloat(n)
		case string:
			if d, err := decimal.NewFromString(n); err == nil {
				return d
			}
		}
	}
	return def
}

// SMACrossoverStrategy buys tickers whose fast SMA has just crossed above
// the slow SMA, ranked by the crossover's relative magnitude, and sells
// open positions on a bearish crossover.
type SMACrossoverStrategy struct {
	fastPeriod int
	slowPeriod int
}

// NewSMACrossoverStrategy builds the strategy from strategy_params
// fast_period/slow_period (defaults 20/50).
func NewSMACrossoverStrategy(params map[string]interface{}, cfg *BacktestConfig) (Strategy, error) {
	return &SMACrossoverStrategy{
		fastPeriod: intParam(params, "fast_period", 20),
		slowPeriod: intParam(params, "slow_period", 50),
	}, nil
}

func (s *SMACrossoverStrategy) RankBuys(universe map[string]bool, date time.Time, provider DataProvider, portfolio *PortfolioSimulator) ([]BuyCandidate, error) {
	tickers := make([]string, 0, len(universe))
	for t := range universe {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var candidates []BuyCandidate
	for _, ticker := range tickers {
		region := portfolio.cfg.Regions[0]
		bars, err := lastNBars(provider, ticker, region, date, s.slowPeriod+1)
		if err != nil || len(bars) < s.slowPeriod+1 {
			continue
		}

		fastToday := sma(bars[len(bars)-s.fastPeriod:])
		slowToday := sma(bars[1:])
		fastYesterday := sma(bars[len(bars)-1-s.fastPeriod : len(bars)-1])
		slowYesterday := sma(bars[:len(bars)-1])

		crossedUp := fastYesterday.LessThanOrEqual(slowYesterday) && fastToday.GreaterThan(slowToday)
		if !crossedUp || slowToday.IsZero() {
			continue
		}

		score := fastToday.Sub(slowToday).Div(slowToday)
		sectorTag, err := provider.Sector(ticker, region, date)
		if err != nil {
			continue
		}

		candidates = append(candidates, BuyCandidate{
			Ticker:           ticker,
			Region:           region,
			PatternTag:       "sma_crossover",
			EntryScore:       score,
			SectorTag:        sectorTag,
			ATR:              atr(bars),
			IntendedNotional: sizeNotional(portfolio, portfolio.cfg),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EntryScore.GreaterThan(candidates[j].EntryScore)
	})
	return candidates, nil
}

func (s *SMACrossoverStrategy) DecideSells(openPositions []*Position, date time.Time, provider DataProvider) ([]SellIntent, error) {
	var intents []SellIntent
	for _, pos := range openPositions {
		bars, err := lastNBars(provider, pos.Ticker, pos.Region, date, s.slowPeriod+1)
		if err != nil || len(bars) < s.slowPeriod+1 {
			continue
		}
		fastToday := sma(bars[len(bars)-s.fastPeriod:])
		slowToday := sma(bars[1:])
		fastYesterday := sma(bars[len(bars)-1-s.fastPeriod : len(bars)-1])
		slowYesterday := sma(bars[:len(bars)-1])

		crossedDown := fastYesterday.GreaterThanOrEqual(slowYesterday) && fastToday.LessThan(slowToday)
		if crossedDown {
			intents = append(intents, SellIntent{Ticker: pos.Ticker, Region: pos.Region, Reason: types.ExitReasonStrategySell})
		}
	}
	return intents, nil
}

// MomentumStrategy ranks tickers by trailing return over a lookback window
// and exits positions whose return since entry has fallen through a
// configured drawdown threshold.
type MomentumStrategy struct {
	lookbackDays int
	threshold    decimal.Decimal
}

// NewMomentumStrategy builds the strategy from strategy_params
// lookback_days/threshold (defaults 90 days, 10% drawdown).
func NewMomentumStrategy(params map[string]interface{}, cfg *BacktestConfig) (Strategy, error) {
	return &MomentumStrategy{
		lookbackDays: intParam(params, "lookback_days", 90),
		threshold:    decimalParam(params, "threshold", decimal.NewFromFloat(0.10)),
	}, nil
}

func (m *MomentumStrategy) RankBuys(universe map[string]bool, date time.Time, provider DataProvider, portfolio *PortfolioSimulator) ([]BuyCandidate, error) {
	tickers := make([]string, 0, len(universe))
	for t := range universe {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var candidates []BuyCandidate
	for _, ticker := range tickers {
		region := portfolio.cfg.Regions[0]
		bars, err := lastNBars(provider, ticker, region, date, m.lookbackDays)
		if err != nil || len(bars) < 2 {
			continue
		}
		first := bars[0].Close
		last := bars[len(bars)-1].Close
		if first.IsZero() {
			continue
		}
		momentum := last.Sub(first).Div(first)
		if momentum.LessThanOrEqual(decimal.Zero) {
			continue
		}

		sectorTag, err := provider.Sector(ticker, region, date)
		if err != nil {
			continue
		}

		candidates = append(candidates, BuyCandidate{
			Ticker:           ticker,
			Region:           region,
			PatternTag:       "momentum",
			EntryScore:       momentum,
			SectorTag:        sectorTag,
			ATR:              atr(bars),
			IntendedNotional: sizeNotional(portfolio, portfolio.cfg),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EntryScore.GreaterThan(candidates[j].EntryScore)
	})
	return candidates, nil
}

func (m *MomentumStrategy) DecideSells(openPositions []*Position, date time.Time, provider DataProvider) ([]SellIntent, error) {
	var intents []SellIntent
	for _, pos := range openPositions {
		snap, err := provider.Snapshot(pos.Ticker, pos.Region, date)
		if err != nil || snap == nil {
			continue
		}
		returnSinceEntry := snap.Close.Sub(pos.EntryPrice).Div(pos.EntryPrice)
		if returnSinceEntry.LessThan(m.threshold.Neg()) {
			intents = append(intents, SellIntent{Ticker: pos.Ticker, Region: pos.Region, Reason: types.ExitReasonStrategySell})
		}
	}
	return intents, nil
}
