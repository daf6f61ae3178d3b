package backtest

import (
	"github.com/shopspring/decimal"
)

// sectorExposureTracker keeps sector notional exposure in sync with the
// open-position book, so PortfolioSimulator.attempt_buy's sector-limit
// check (spec §4.3 step 8) never has to re-scan all positions.
type sectorExposureTracker struct {
	exposure map[string]decimal.Decimal
}

func newSectorExposureTracker() *sectorExposureTracker {
	return &sectorExposureTracker{exposure: make(map[string]decimal.Decimal)}
}

func (t *sectorExposureTracker) add(sector string, notional decimal.Decimal) {
	t.exposure[sector] = t.exposure[sector].Add(notional)
}

func (t *sectorExposureTracker) remove(sector string, notional decimal.Decimal) {
	t.exposure[sector] = t.exposure[sector].Sub(notional)
	if t.exposure[sector].LessThanOrEqual(decimal.Zero) {
		delete(t.exposure, sector)
	}
}

// reset clears every sector's recorded exposure. MarkToMarket calls it
// before re-adding each position's freshly marked notional for the day.
func (t *sectorExposureTracker) reset() {
	t.exposure = make(map[string]decimal.Decimal)
}

func (t *sectorExposureTracker) get(sector string) decimal.Decimal {
	return t.exposure[sector]
}

// wouldBreach reports whether adding additionalNotional to sector would
// push its fraction of portfolioValue over maxSectorFraction.
func (t *sectorExposureTracker) wouldBreach(sector string, additionalNotional, portfolioValue, maxSectorFraction decimal.Decimal) bool {
	if portfolioValue.IsZero() {
		return true
	}
	projected := t.exposure[sector].Add(additionalNotional)
	fraction := projected.Div(portfolioValue)
	return fraction.GreaterThan(maxSectorFraction)
}
