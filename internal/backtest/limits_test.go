package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSectorExposureTracker_WouldBreach(t *testing.T) {
	tr := newSectorExposureTracker()
	tr.add("tech", decimal.NewFromInt(100_000))

	portfolioValue := decimal.NewFromInt(1_000_000)
	maxFraction := decimal.NewFromFloat(0.2)

	assert.False(t, tr.wouldBreach("tech", decimal.NewFromInt(50_000), portfolioValue, maxFraction))
	assert.True(t, tr.wouldBreach("tech", decimal.NewFromInt(150_000), portfolioValue, maxFraction))
}

func TestSectorExposureTracker_RemoveDeletesZeroedSector(t *testing.T) {
	tr := newSectorExposureTracker()
	tr.add("tech", decimal.NewFromInt(100))
	tr.remove("tech", decimal.NewFromInt(100))
	assert.True(t, tr.get("tech").IsZero())
}

func TestSectorExposureTracker_Reset(t *testing.T) {
	tr := newSectorExposureTracker()
	tr.add("tech", decimal.NewFromInt(100))
	tr.reset()
	assert.True(t, tr.get("tech").IsZero())
}

func TestComputeStopLoss_ClampedToConfiguredRange(t *testing.T) {
	cfg := validConfig()
	cfg.StopLossATRMultiplier = decimal.NewFromInt(10)
	cfg.StopLossMin = decimal.NewFromFloat(0.03)
	cfg.StopLossMax = decimal.NewFromFloat(0.15)

	// a huge ATR relative to price would otherwise push the stop far below
	// the configured maximum distance.
	got := computeStopLoss(decimal.NewFromInt(100), decimal.NewFromInt(50), cfg)
	want := decimal.NewFromInt(100).Mul(decimal.NewFromFloat(0.85))
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestComputeProfitTarget(t *testing.T) {
	cfg := validConfig()
	cfg.ProfitTarget = decimal.NewFromFloat(0.2)
	got := computeProfitTarget(decimal.NewFromInt(100), cfg)
	assert.True(t, got.Equal(decimal.NewFromInt(120)))
}
