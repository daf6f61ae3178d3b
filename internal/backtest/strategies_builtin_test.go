package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

func crossoverSeries(n int, breakAt int) []types.OHLCV {
	var bars []types.OHLCV
	price := decimal.NewFromInt(100)
	for i := 0; i < n; i++ {
		if i >= breakAt {
			price = price.Add(decimal.NewFromInt(2))
		}
		bars = append(bars, types.OHLCV{
			Date: day(2020, 1, 1).AddDate(0, 0, i),
			Open: price, High: price.Add(decimal.NewFromInt(1)), Low: price.Sub(decimal.NewFromInt(1)),
			Close: price, Volume: decimal.NewFromInt(1_000_000),
		})
	}
	return bars
}

func TestSMACrossoverStrategy_RankBuys_RequiresBullishCrossover(t *testing.T) {
	cfg := testCfg()
	cfg.StrategyParams = map[string]interface{}{"fast_period": 3, "slow_period": 5}
	strat, err := NewSMACrossoverStrategy(cfg.StrategyParams, cfg)
	require.NoError(t, err)

	provider := NewInMemoryDataProvider()
	bars := crossoverSeries(40, 30)
	provider.LoadSeries("005930", types.RegionKR, bars, "tech", time.Time{}, time.Time{}, nil)

	portfolio := newTestPortfolio(cfg)
	universe := map[string]bool{"005930": true}

	candidates, err := strat.RankBuys(universe, bars[len(bars)-1].Date, provider, portfolio)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.Equal(t, "005930", c.Ticker)
		assert.Equal(t, "sma_crossover", c.PatternTag)
		assert.Equal(t, "tech", c.SectorTag, "sector tag must come from the data provider, not a fabricated per-ticker bucket")
		assert.True(t, c.EntryScore.GreaterThan(decimal.Zero), "ranked candidates must carry a positive crossover score")
	}
}

func TestSMACrossoverStrategy_RankBuys_InsufficientHistorySkipsTicker(t *testing.T) {
	cfg := testCfg()
	strat, err := NewSMACrossoverStrategy(nil, cfg)
	require.NoError(t, err)

	provider := NewInMemoryDataProvider()
	provider.LoadSeries("005930", types.RegionKR, crossoverSeries(5, 3), "tech", time.Time{}, time.Time{}, nil)
	portfolio := newTestPortfolio(cfg)

	candidates, err := strat.RankBuys(map[string]bool{"005930": true}, day(2020, 1, 5), provider, portfolio)
	require.NoError(t, err)
	assert.Empty(t, candidates, "fewer bars than slow_period+1 must be skipped, not crash")
}

func TestMomentumStrategy_RankBuys_PositiveMomentumOnly(t *testing.T) {
	cfg := testCfg()
	strat, err := NewMomentumStrategy(map[string]interface{}{"lookback_days": 10}, cfg)
	require.NoError(t, err)

	provider := NewInMemoryDataProvider()
	provider.LoadSeries("UP", types.RegionKR, crossoverSeries(15, 0), "tech", time.Time{}, time.Time{}, nil)
	flatBars := make([]types.OHLCV, 15)
	for i := range flatBars {
		flatBars[i] = types.OHLCV{
			Date: day(2020, 1, 1).AddDate(0, 0, i), Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101),
			Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1_000_000),
		}
	}
	provider.LoadSeries("FLAT", types.RegionKR, flatBars, "tech", time.Time{}, time.Time{}, nil)

	portfolio := newTestPortfolio(cfg)
	candidates, err := strat.RankBuys(map[string]bool{"UP": true, "FLAT": true}, day(2020, 1, 15), provider, portfolio)
	require.NoError(t, err)

	tickers := make(map[string]bool)
	for _, c := range candidates {
		tickers[c.Ticker] = true
		assert.Equal(t, "tech", c.SectorTag, "momentum candidates must carry the real sector tag, not an empty default")
	}
	assert.True(t, tickers["UP"])
	assert.False(t, tickers["FLAT"], "flat or non-positive momentum must not produce a buy candidate")
}

func TestMomentumStrategy_DecideSells_ExitsOnDrawdownThreshold(t *testing.T) {
	cfg := testCfg()
	strat, err := NewMomentumStrategy(map[string]interface{}{"threshold": 0.1}, cfg)
	require.NoError(t, err)

	provider := NewInMemoryDataProvider()
	provider.LoadSeries("005930", types.RegionKR, []types.OHLCV{
		{Date: day(2020, 1, 10), Open: decimal.NewFromInt(80), High: decimal.NewFromInt(80), Low: decimal.NewFromInt(80), Close: decimal.NewFromInt(80), Volume: decimal.NewFromInt(1000)},
	}, "tech", time.Time{}, time.Time{}, nil)

	pos := &Position{Ticker: "005930", Region: types.RegionKR, EntryPrice: decimal.NewFromInt(100), Shares: 10}
	intents, err := strat.DecideSells([]*Position{pos}, day(2020, 1, 10), provider)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, types.ExitReasonStrategySell, intents[0].Reason)
}
