package backtest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// Position is an open holding. Exactly one Position may exist per
// (ticker, region) pair at any time; scale-ins are not modelled.
type Position struct {
	Ticker            string          `json:"ticker"`
	Region            types.Region    `json:"region"`
	EntryDate         time.Time       `json:"entry_date"`
	EntryPrice        decimal.Decimal `json:"entry_price"`
	Shares            int64           `json:"shares"`
	StopLossPrice     decimal.Decimal `json:"stop_loss_price"`
	ProfitTargetPrice decimal.Decimal `json:"profit_target_price"`
	PatternTag        string          `json:"pattern_tag"`
	EntryScore        decimal.Decimal `json:"entry_score"`
	SectorTag         string          `json:"sector_tag"`

	// mutated daily by MarkToMarket; convenience snapshot of the latest
	// close, not part of the persisted Position identity.
	lastClose decimal.Decimal
}

// Key returns the (ticker, region) identity used for open_positions lookups.
func (p *Position) Key() PositionKey {
	return PositionKey{Ticker: p.Ticker, Region: p.Region}
}

// Notional returns the position's value at its most recently marked close.
func (p *Position) Notional() decimal.Decimal {
	return p.lastClose.Mul(decimal.NewFromInt(p.Shares))
}

// PositionKey identifies an open position.
type PositionKey struct {
	Ticker string
	Region types.Region
}

// Trade is the complete record of a round-trip, or a still-open leg while
// the position it mirrors remains open. Once exit fields are populated the
// Trade is closed and immutable.
type Trade struct {
	ID                string          `json:"id"`
	Ticker            string          `json:"ticker"`
	Region            types.Region    `json:"region"`
	EntryDate         time.Time       `json:"entry_date"`
	EntryPrice        decimal.Decimal `json:"entry_price"`
	Shares            int64           `json:"shares"`
	StopLossPrice     decimal.Decimal `json:"stop_loss_price"`
	ProfitTargetPrice decimal.Decimal `json:"profit_target_price"`
	PatternTag        string          `json:"pattern_tag"`
	EntryScore        decimal.Decimal `json:"entry_score"`
	SectorTag         string          `json:"sector_tag"`
	PredictedWinRate  decimal.Decimal `json:"predicted_win_rate,omitempty"`

	ExitDate            *time.Time       `json:"exit_date,omitempty"`
	ExitPrice           decimal.Decimal  `json:"exit_price,omitempty"`
	CommissionPaidTotal decimal.Decimal  `json:"commission_paid_total"`
	SlippagePaidTotal   decimal.Decimal  `json:"slippage_paid_total"`
	RealizedPnL         decimal.Decimal  `json:"realized_pnl,omitempty"`
	RealizedReturn      decimal.Decimal  `json:"realized_return,omitempty"`
	ExitReason          types.ExitReason `json:"exit_reason,omitempty"`
}

// IsOpen reports whether the Trade's exit_date is still absent.
func (t *Trade) IsOpen() bool {
	return t.ExitDate == nil
}

// NewOpenTrade creates the Trade counterpart of a freshly filled Position.
func NewOpenTrade(pos *Position) *Trade {
	return &Trade{
		ID:                uuid.NewString(),
		Ticker:            pos.Ticker,
		Region:            pos.Region,
		EntryDate:         pos.EntryDate,
		EntryPrice:        pos.EntryPrice,
		Shares:            pos.Shares,
		StopLossPrice:     pos.StopLossPrice,
		ProfitTargetPrice: pos.ProfitTargetPrice,
		PatternTag:        pos.PatternTag,
		EntryScore:        pos.EntryScore,
		SectorTag:         pos.SectorTag,
	}
}

// EquityCurveSample is one per-trading-day snapshot of portfolio value.
// The engine appends one per day; the final day's sample is rewritten once
// after the end-of-backtest liquidation, before the result is built, and no
// sample changes after that.
type EquityCurveSample struct {
	Date           time.Time       `json:"date"`
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	DailyReturn    decimal.Decimal `json:"daily_return"`
}

// BacktestConfig parameterises a single run. Immutable after construction;
// Hash identifies it for dedup of persisted results.
type BacktestConfig struct {
	StartDate time.Time      `json:"start_date" yaml:"start_date"`
	EndDate   time.Time      `json:"end_date" yaml:"end_date"`
	Regions   []types.Region `json:"regions" yaml:"regions"`
	Tickers   []string       `json:"tickers,omitempty" yaml:"tickers,omitempty"`

	InitialCapital decimal.Decimal `json:"initial_capital" yaml:"initial_capital"`

	StrategyID     string                 `json:"strategy_id" yaml:"strategy_id"`
	StrategyParams map[string]interface{} `json:"strategy_params,omitempty" yaml:"strategy_params,omitempty"`

	KellyMultiplier     decimal.Decimal `json:"kelly_multiplier" yaml:"kelly_multiplier"`
	MaxPositionFraction decimal.Decimal `json:"max_position_fraction" yaml:"max_position_fraction"`
	MaxSectorFraction   decimal.Decimal `json:"max_sector_fraction" yaml:"max_sector_fraction"`
	MinCashFraction     decimal.Decimal `json:"min_cash_fraction" yaml:"min_cash_fraction"`

	StopLossATRMultiplier decimal.Decimal `json:"stop_loss_atr_multiplier" yaml:"stop_loss_atr_multiplier"`
	StopLossMin           decimal.Decimal `json:"stop_loss_min" yaml:"stop_loss_min"`
	StopLossMax           decimal.Decimal `json:"stop_loss_max" yaml:"stop_loss_max"`
	ProfitTarget          decimal.Decimal `json:"profit_target" yaml:"profit_target"`

	CommissionRate  decimal.Decimal `json:"commission_rate" yaml:"commission_rate"`
	BaseSlippageBps decimal.Decimal `json:"base_slippage_bps" yaml:"base_slippage_bps"`

	RiskFreeRate decimal.Decimal `json:"risk_free_rate" yaml:"risk_free_rate"`

	MaxOpenPositions int `json:"max_open_positions" yaml:"max_open_positions"`
}

// Hash returns a content hash of the config suitable for result-row
// deduplication, following the header/trades/equity-curve table layout.
func (c *BacktestConfig) Hash() string {
	return configHash(c)
}

// BacktestResult is the immutable bundle handed back to the caller.
type BacktestResult struct {
	ID            string              `json:"id"`
	ConfigHash    string              `json:"config_hash"`
	Config        BacktestConfig      `json:"config"`
	Metrics       Metrics             `json:"metrics"`
	Trades        []*Trade            `json:"trades"`
	EquityCurve   []EquityCurveSample `json:"equity_curve"`
	StartDate     time.Time           `json:"start_date"`
	EndDate       time.Time           `json:"end_date"`
	ExecutionTime time.Duration       `json:"execution_time"`
}
