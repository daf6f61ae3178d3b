package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// BuyCandidate is one ranked entry proposal from rank_buys.
type BuyCandidate struct {
	Ticker           string
	Region           types.Region
	PatternTag       string
	EntryScore       decimal.Decimal
	SectorTag        string
	ATR              decimal.Decimal
	IntendedNotional decimal.Decimal
	// PredictedWinRate is optional; when set it feeds the Kelly-accuracy
	// metric partition in PerformanceAnalyzer.
	PredictedWinRate decimal.Decimal
}

// Strategy is a pure decision function: given the market snapshot and
// portfolio state, it returns ranked buy candidates and sell decisions. A
// strategy may carry its own internal state but the engine never shares
// state with it, and it must not mutate provider or portfolio.
type Strategy interface {
	// RankBuys returns candidates ranked descending by strategy score.
	// Must honour the look-ahead contract: only provider calls dated <= date.
	RankBuys(universe map[string]bool, date time.Time, provider DataProvider, portfolio *PortfolioSimulator) ([]BuyCandidate, error)

	// DecideSells returns strategy-initiated exits, independent of the
	// engine's own automatic stop/target checks.
	DecideSells(openPositions []*Position, date time.Time, provider DataProvider) ([]SellIntent, error)
}

// StrategyFactory builds a Strategy from an opaque strategy_id and its
// params, the way a tagged-variant registry replaces the dynamically
// loaded strategy classes of the source system (spec §9 Design Notes).
type StrategyFactory func(params map[string]interface{}, cfg *BacktestConfig) (Strategy, error)

var strategyRegistry = map[string]StrategyFactory{
	"sma_crossover": NewSMACrossoverStrategy,
	"momentum":      NewMomentumStrategy,
}

// RegisterStrategy adds or overrides a strategy_id -> factory mapping. Call
// before constructing a BacktestEngine with that strategy_id.
func RegisterStrategy(id string, factory StrategyFactory) {
	strategyRegistry[id] = factory
}

// NewStrategy resolves strategy_id against the registry and constructs the
// Strategy for a run.
func NewStrategy(cfg *BacktestConfig) (Strategy, error) {
	factory, ok := strategyRegistry[cfg.StrategyID]
	if !ok {
		return nil, &ConfigError{Field: "strategy_id", Reason: fmt.Sprintf("unknown strategy %q", cfg.StrategyID)}
	}
	return factory(cfg.StrategyParams, cfg)
}
