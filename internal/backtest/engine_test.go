package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// flatMarketProvider returns a provider where a single ticker trades flat
// at 1000 for n days with a volume of 1,000,000 per bar, exercising the property that a
// strategy which never signals leaves the portfolio untouched (spec §8
// "flat market" scenario).
func flatMarketProvider(t *testing.T, ticker string, region types.Region, n int) (*InMemoryDataProvider, []time.Time) {
	t.Helper()
	p := NewInMemoryDataProvider()
	var bars []types.OHLCV
	var days []time.Time
	start := day(2020, 1, 2)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		bars = append(bars, types.OHLCV{
			Date: d, Open: decimal.NewFromInt(1000), High: decimal.NewFromInt(1000),
			Low: decimal.NewFromInt(1000), Close: decimal.NewFromInt(1000), Volume: decimal.NewFromInt(1_000_000),
		})
		days = append(days, d)
	}
	p.LoadSeries(ticker, region, bars, "tech", time.Time{}, time.Time{}, nil)
	p.SetCalendar(region, days)
	return p, days
}

// noopStrategy never buys or sells; used to isolate the engine's day-loop
// mechanics from strategy decision logic.
type noopStrategy struct{}

func (noopStrategy) RankBuys(map[string]bool, time.Time, DataProvider, *PortfolioSimulator) ([]BuyCandidate, error) {
	return nil, nil
}
func (noopStrategy) DecideSells([]*Position, time.Time, DataProvider) ([]SellIntent, error) {
	return nil, nil
}

func TestBacktestEngine_FlatMarket_NoTrades(t *testing.T) {
	cfg := testCfg()
	cfg.StartDate = day(2020, 1, 2)
	cfg.EndDate = day(2020, 1, 10)
	provider, _ := flatMarketProvider(t, "005930", types.RegionKR, 7)

	eng := NewBacktestEngine(cfg, provider, noopStrategy{}, nil)
	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.True(t, result.Metrics.Return.TotalReturn.IsZero())
	for _, sample := range result.EquityCurve {
		assert.True(t, sample.TotalValue.Equal(cfg.InitialCapital), "cash-only portfolio must never drift from initial capital")
	}
}

// oneShotBuyStrategy buys a single ticker on its first opportunity only,
// never sells on its own, letting the engine's automatic stop/target/
// end-of-backtest liquidation close the round trip.
type oneShotBuyStrategy struct {
	ticker string
	region types.Region
	bought bool
}

func (s *oneShotBuyStrategy) RankBuys(universe map[string]bool, date time.Time, provider DataProvider, portfolio *PortfolioSimulator) ([]BuyCandidate, error) {
	if s.bought || !universe[s.ticker] {
		return nil, nil
	}
	s.bought = true
	return []BuyCandidate{{
		Ticker: s.ticker, Region: s.region, PatternTag: "manual",
		IntendedNotional: portfolio.TotalValue().Mul(decimal.NewFromFloat(0.1)),
		ATR:              decimal.NewFromInt(20),
	}}, nil
}
func (s *oneShotBuyStrategy) DecideSells([]*Position, time.Time, DataProvider) ([]SellIntent, error) {
	return nil, nil
}

func TestBacktestEngine_EndOfBacktest_ForceLiquidatesOpenPositions(t *testing.T) {
	cfg := testCfg()
	cfg.StartDate = day(2020, 1, 2)
	cfg.EndDate = day(2020, 1, 10)
	provider, _ := flatMarketProvider(t, "005930", types.RegionKR, 7)

	strat := &oneShotBuyStrategy{ticker: "005930", region: types.RegionKR}
	eng := NewBacktestEngine(cfg, provider, strat, nil)
	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.False(t, trade.IsOpen(), "every trade must be closed by the terminal force-liquidation")
	assert.Equal(t, types.ExitReasonEndOfBacktest, trade.ExitReason)

	last := result.EquityCurve[len(result.EquityCurve)-1]
	assert.True(t, last.PositionsValue.IsZero(), "no open positions should remain after force liquidation")
}

func TestBacktestEngine_Deterministic_SameConfigSameResult(t *testing.T) {
	cfg := testCfg()
	cfg.StartDate = day(2020, 1, 2)
	cfg.EndDate = day(2020, 1, 10)

	run := func() *BacktestResult {
		provider, _ := flatMarketProvider(t, "005930", types.RegionKR, 7)
		strat := &oneShotBuyStrategy{ticker: "005930", region: types.RegionKR}
		eng := NewBacktestEngine(cfg, provider, strat, nil)
		result, err := eng.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Len(t, a.Trades, 1)
	require.Len(t, b.Trades, 1)
	assert.True(t, a.Trades[0].RealizedPnL.Equal(b.Trades[0].RealizedPnL), "identical inputs must produce bit-identical realized P&L")
	assert.Equal(t, len(a.EquityCurve), len(b.EquityCurve))
}

func TestBacktestEngine_Cancellation(t *testing.T) {
	cfg := testCfg()
	cfg.StartDate = day(2020, 1, 2)
	cfg.EndDate = day(2020, 1, 10)
	provider, _ := flatMarketProvider(t, "005930", types.RegionKR, 7)

	eng := NewBacktestEngine(cfg, provider, noopStrategy{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Run(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}
