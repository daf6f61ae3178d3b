package backtest

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy in spec §7. Wrap with fmt.Errorf("...: %w")
// so callers can errors.Is/errors.As against these.
var (
	// ErrConfiguration marks an invalid parameter combination, detected at
	// construction time before any trading day executes.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataMissing marks a DataProvider call with no rows in range, or a
	// ticker absent from the backing store.
	ErrDataMissing = errors.New("data missing")

	// ErrInvalidRange marks end < start passed to a DataProvider call.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvariantViolation marks a core bug: negative cash, duplicate
	// position key, closed-trade mutation, unknown exit reason. Fail fast,
	// never mask.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ConfigError wraps ErrConfiguration with the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// DataError wraps ErrDataMissing or ErrInvalidRange with the offending
// (ticker, date) so the engine can propagate it as the run's terminal error.
type DataError struct {
	Ticker string
	Date   string
	Reason error
}

func (e *DataError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("data error: %v", e.Reason)
	}
	return fmt.Sprintf("data error: ticker=%s date=%s: %v", e.Ticker, e.Date, e.Reason)
}

func (e *DataError) Unwrap() error { return e.Reason }

// InvariantError wraps ErrInvariantViolation with the check that failed and
// the state that tripped it, for the abort-the-run log line.
type InvariantError struct {
	Check   string
	Context string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s: %s", e.Check, e.Context)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }
