package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a simulated fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Region is a market jurisdiction governing tick sizes, commissions, and
// the trading calendar a DataProvider consults.
type Region string

const (
	RegionKR Region = "KR"
	RegionUS Region = "US"
	RegionCN Region = "CN"
	RegionHK Region = "HK"
	RegionJP Region = "JP"
	RegionVN Region = "VN"
)

// ExitReason classifies why a Trade closed.
type ExitReason string

const (
	ExitReasonProfitTarget  ExitReason = "profit_target"
	ExitReasonStopLoss      ExitReason = "stop_loss"
	ExitReasonStrategySell  ExitReason = "strategy_sell"
	ExitReasonEndOfBacktest ExitReason = "end_of_backtest"
	ExitReasonManual        ExitReason = "manual"
)

// Outcome is the closed set of results attempt_buy can produce. Portfolio
// logic rejections are control flow, not errors.
type Outcome string

const (
	OutcomeFilled           Outcome = "filled"
	OutcomeDuplicatePosition Outcome = "duplicate_position"
	OutcomeBelowMinLot      Outcome = "below_min_lot"
	OutcomeCashReserveBreach Outcome = "cash_reserve_breach"
	OutcomePositionLimit    Outcome = "position_limit"
	OutcomeSectorLimit      Outcome = "sector_limit"
	OutcomeNoSnapshot       Outcome = "no_snapshot"
)

// OHLCV is one bar of daily candle data, exact-precision throughout.
type OHLCV struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Snapshot is the point-in-time row for a single ticker on a single date,
// carrying any indicators observable as of that date alongside the bar.
type Snapshot struct {
	Ticker     string                     `json:"ticker"`
	Region     Region                     `json:"region"`
	Date       time.Time                  `json:"date"`
	Open       decimal.Decimal           `json:"open"`
	High       decimal.Decimal           `json:"high"`
	Low        decimal.Decimal           `json:"low"`
	Close      decimal.Decimal           `json:"close"`
	Volume     decimal.Decimal           `json:"volume"`
	Indicators map[string]decimal.Decimal `json:"indicators,omitempty"`
}

// Fundamentals is a mapping of field name to value for the most recent
// fundamental record whose publication date is no later than an as-of date.
type Fundamentals map[string]decimal.Decimal
