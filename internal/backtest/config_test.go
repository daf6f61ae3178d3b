package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

func validConfig() *BacktestConfig {
	return &BacktestConfig{
		StartDate:             time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:               time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		Regions:               []types.Region{types.RegionKR},
		InitialCapital:        decimal.NewFromInt(100_000_000),
		StrategyID:            "sma_crossover",
		KellyMultiplier:       decimal.NewFromFloat(0.5),
		MaxPositionFraction:   decimal.NewFromFloat(0.1),
		MaxSectorFraction:     decimal.NewFromFloat(0.3),
		MinCashFraction:       decimal.NewFromFloat(0.05),
		StopLossATRMultiplier: decimal.NewFromFloat(2),
		StopLossMin:           decimal.NewFromFloat(0.03),
		StopLossMax:           decimal.NewFromFloat(0.15),
		ProfitTarget:          decimal.NewFromFloat(0.2),
		CommissionRate:        decimal.NewFromFloat(0.00015),
		BaseSlippageBps:       decimal.NewFromInt(10),
		RiskFreeRate:          decimal.Zero,
		MaxOpenPositions:      20,
	}
}

func TestBacktestConfig_Validate_Valid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestBacktestConfig_Validate_EndBeforeStart(t *testing.T) {
	cfg := validConfig()
	cfg.EndDate = cfg.StartDate.AddDate(0, 0, -1)
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBacktestConfig_Validate_MultiRegionRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Regions = []types.Region{types.RegionKR, types.RegionUS}
	require.Error(t, cfg.Validate())
}

func TestBacktestConfig_Validate_StopLossMinAboveMax(t *testing.T) {
	cfg := validConfig()
	cfg.StopLossMin = decimal.NewFromFloat(0.2)
	cfg.StopLossMax = decimal.NewFromFloat(0.1)
	require.Error(t, cfg.Validate())
}

func TestBacktestConfig_Validate_NonPositiveCapital(t *testing.T) {
	cfg := validConfig()
	cfg.InitialCapital = decimal.Zero
	require.Error(t, cfg.Validate())
}

func TestBacktestConfig_Hash_DeterministicAndSensitive(t *testing.T) {
	a := validConfig()
	b := validConfig()
	assert.Equal(t, a.Hash(), b.Hash(), "identical configs hash identically")

	b.KellyMultiplier = decimal.NewFromFloat(0.75)
	assert.NotEqual(t, a.Hash(), b.Hash(), "changed field must change the hash")
}
