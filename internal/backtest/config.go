package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Validate checks the configuration errors named in spec §7: invalid
// parameter combinations, detected before any trading day executes.
func (c *BacktestConfig) Validate() error {
	if c.EndDate.Before(c.StartDate) {
		return &ConfigError{Field: "end_date", Reason: "end_date before start_date"}
	}
	if len(c.Regions) != 1 {
		return &ConfigError{Field: "regions", Reason: "exactly one region required in v1"}
	}
	if c.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return &ConfigError{Field: "initial_capital", Reason: "must be > 0"}
	}
	if c.StrategyID == "" {
		return &ConfigError{Field: "strategy_id", Reason: "required"}
	}
	if c.KellyMultiplier.LessThanOrEqual(decimal.Zero) || c.KellyMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		return &ConfigError{Field: "kelly_multiplier", Reason: "must be in (0, 1]"}
	}
	if c.MaxPositionFraction.LessThanOrEqual(decimal.Zero) || c.MaxPositionFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ConfigError{Field: "max_position_fraction", Reason: "must be in (0, 1)"}
	}
	if c.MaxSectorFraction.LessThanOrEqual(decimal.Zero) || c.MaxSectorFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ConfigError{Field: "max_sector_fraction", Reason: "must be in (0, 1)"}
	}
	if c.MinCashFraction.LessThan(decimal.Zero) || c.MinCashFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ConfigError{Field: "min_cash_fraction", Reason: "must be in [0, 1)"}
	}
	if c.StopLossMin.GreaterThan(c.StopLossMax) {
		return &ConfigError{Field: "stop_loss_min", Reason: "stop_loss_min must be <= stop_loss_max"}
	}
	if c.ProfitTarget.LessThanOrEqual(decimal.Zero) {
		return &ConfigError{Field: "profit_target", Reason: "must be > 0"}
	}
	if c.CommissionRate.LessThan(decimal.Zero) {
		return &ConfigError{Field: "commission_rate", Reason: "must be >= 0"}
	}
	if c.BaseSlippageBps.LessThan(decimal.Zero) {
		return &ConfigError{Field: "base_slippage_bps", Reason: "must be >= 0"}
	}
	return nil
}

// configHash content-hashes the config. The hash is carried on
// BacktestResult.ConfigHash and written to result.json and summary.txt;
// ResultStore does not deduplicate on it, and every Save writes a new run
// directory.
func configHash(c *BacktestConfig) string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
