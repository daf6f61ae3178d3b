package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

func newRunID() string {
	return uuid.NewString()
}

// ResultStore persists a BacktestResult into the three logical tables named
// in spec §6: a results header (one row per run), trades (one row per
// closed Trade, foreign-keyed to the header), and an equity curve (one row
// per sampled date). It writes JSON, CSV, and a human-readable summary,
// mirroring the source's GenerateReport/generateJSONReport/
// generateCSVReport/generateSummaryReport split.
type ResultStore struct {
	outputDir string
}

// NewResultStore roots persisted runs under outputDir, one subdirectory per
// run ID.
func NewResultStore(outputDir string) *ResultStore {
	return &ResultStore{outputDir: outputDir}
}

// Save writes a run's three logical tables plus a summary text file under
// <outputDir>/<result.ID>/.
func (s *ResultStore) Save(result *BacktestResult) (string, error) {
	runDir := filepath.Join(s.outputDir, result.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}

	if err := s.writeJSON(runDir, result); err != nil {
		return "", err
	}
	if err := s.writeTradesCSV(runDir, result); err != nil {
		return "", err
	}
	if err := s.writeEquityCurveCSV(runDir, result); err != nil {
		return "", err
	}
	if err := s.writeSummary(runDir, result); err != nil {
		return "", err
	}

	return runDir, nil
}

func (s *ResultStore) writeJSON(dir string, result *BacktestResult) error {
	f, err := os.Create(filepath.Join(dir, "result.json"))
	if err != nil {
		return fmt.Errorf("creating result.json: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func (s *ResultStore) writeTradesCSV(dir string, result *BacktestResult) error {
	f, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return fmt.Errorf("creating trades.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"id", "ticker", "region", "entry_date", "entry_price", "shares",
		"stop_loss_price", "profit_target_price", "pattern_tag", "sector_tag",
		"exit_date", "exit_price", "commission_paid_total", "slippage_paid_total",
		"realized_pnl", "realized_return", "exit_reason",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range result.Trades {
		exitDate := ""
		if t.ExitDate != nil {
			exitDate = t.ExitDate.Format("2006-01-02")
		}
		row := []string{
			t.ID, t.Ticker, string(t.Region), t.EntryDate.Format("2006-01-02"),
			t.EntryPrice.String(), strconv.FormatInt(t.Shares, 10),
			t.StopLossPrice.String(), t.ProfitTargetPrice.String(), t.PatternTag, t.SectorTag,
			exitDate, t.ExitPrice.String(), t.CommissionPaidTotal.String(), t.SlippagePaidTotal.String(),
			t.RealizedPnL.String(), t.RealizedReturn.String(), string(t.ExitReason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func (s *ResultStore) writeEquityCurveCSV(dir string, result *BacktestResult) error {
	f, err := os.Create(filepath.Join(dir, "equity_curve.csv"))
	if err != nil {
		return fmt.Errorf("creating equity_curve.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"date", "cash", "positions_value", "total_value", "daily_return"}); err != nil {
		return err
	}
	for _, e := range result.EquityCurve {
		row := []string{
			e.Date.Format("2006-01-02"), e.Cash.String(), e.PositionsValue.String(),
			e.TotalValue.String(), e.DailyReturn.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func (s *ResultStore) writeSummary(dir string, result *BacktestResult) error {
	f, err := os.Create(filepath.Join(dir, "summary.txt"))
	if err != nil {
		return fmt.Errorf("creating summary.txt: %w", err)
	}
	defer f.Close()

	m := result.Metrics
	fmt.Fprintf(f, "Backtest Result %s\n", result.ID)
	fmt.Fprintf(f, "Config hash: %s\n", result.ConfigHash)
	fmt.Fprintf(f, "Window: %s to %s\n", result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02"))
	fmt.Fprintf(f, "Execution time: %s\n\n", result.ExecutionTime)

	fmt.Fprintf(f, "Total return: %s\n", m.Return.TotalReturn.StringFixed(4))
	fmt.Fprintf(f, "CAGR: %s\n", m.Return.CAGR.StringFixed(4))
	fmt.Fprintf(f, "Sharpe: %s\n", m.Risk.Sharpe.StringFixed(4))
	fmt.Fprintf(f, "Sortino: %s\n", m.Risk.Sortino.StringFixed(4))
	fmt.Fprintf(f, "Max drawdown: %s (%d days)\n", m.Risk.MaxDrawdown.StringFixed(4), m.Risk.MaxDrawdownDurationDays)
	fmt.Fprintf(f, "Calmar: %s\n", m.Risk.Calmar.StringFixed(4))
	fmt.Fprintf(f, "VaR95: %s  CVaR95: %s\n\n", m.Risk.ValueAtRisk95.StringFixed(4), m.Risk.ConditionalValueAtRisk95.StringFixed(4))

	fmt.Fprintf(f, "Closed trades: %d\n", m.Trading.TotalClosedTrades)
	fmt.Fprintf(f, "Win rate: %s\n", m.Trading.WinRate.StringFixed(4))
	if m.Trading.ProfitFactorInfinite {
		fmt.Fprintf(f, "Profit factor: Inf\n")
	} else {
		fmt.Fprintf(f, "Profit factor: %s\n", m.Trading.ProfitFactor.StringFixed(4))
	}
	fmt.Fprintf(f, "Avg win: %s  Avg loss: %s\n", m.Trading.AvgWinPct.StringFixed(4), m.Trading.AvgLossPct.StringFixed(4))
	fmt.Fprintf(f, "Max consecutive wins: %d  losses: %d\n", m.Trading.MaxConsecutiveWins, m.Trading.MaxConsecutiveLosses)

	return nil
}
