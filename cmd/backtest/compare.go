package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-backtest/internal/backtest"
)

func newCompareCommand() *cobra.Command {
	var (
		dataDir   string
		outputDir string
		strategyA string
		strategyB string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run two strategies over the same window and print their metrics side by side",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategyA == "" || strategyB == "" {
				return fmt.Errorf("compare: both --strategy-a and --strategy-b are required")
			}

			baseCfg, err := configFromViper()
			if err != nil {
				return err
			}

			provider, err := backtest.LoadCSVDataProvider(dataDir, baseCfg.Regions[0])
			if err != nil {
				return fmt.Errorf("loading data: %w", err)
			}

			store := backtest.NewResultStore(outputDir)

			resultA, err := runOne(baseCfg, strategyA, provider, store)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", strategyA, err)
			}
			resultB, err := runOne(baseCfg, strategyB, provider, store)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", strategyB, err)
			}

			printComparison(strategyA, resultA, strategyB, resultB)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory of per-ticker CSV files")
	cmd.Flags().StringVar(&outputDir, "output", "./backtest_results", "directory to write run artifacts")
	cmd.Flags().StringVar(&strategyA, "strategy-a", "", "first strategy_id to compare")
	cmd.Flags().StringVar(&strategyB, "strategy-b", "", "second strategy_id to compare")

	return cmd
}

func runOne(baseCfg *backtest.BacktestConfig, strategyID string, provider backtest.DataProvider, store *backtest.ResultStore) (*backtest.BacktestResult, error) {
	cfg := *baseCfg
	cfg.StrategyID = strategyID
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strategy, err := backtest.NewStrategy(&cfg)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewBacktestEngine(&cfg, provider, strategy, log.WithField("strategy_id", strategyID))
	result, err := engine.Run(context.Background())
	if err != nil {
		return nil, fmt.Errorf("running backtest: %w", err)
	}

	if _, err := store.Save(result); err != nil {
		return nil, fmt.Errorf("saving result: %w", err)
	}
	return result, nil
}

func printComparison(nameA string, a *backtest.BacktestResult, nameB string, b *backtest.BacktestResult) {
	fmt.Printf("%-24s %16s %16s\n", "metric", nameA, nameB)
	fmt.Printf("%-24s %16s %16s\n", "total_return", a.Metrics.Return.TotalReturn.StringFixed(4), b.Metrics.Return.TotalReturn.StringFixed(4))
	fmt.Printf("%-24s %16s %16s\n", "cagr", a.Metrics.Return.CAGR.StringFixed(4), b.Metrics.Return.CAGR.StringFixed(4))
	fmt.Printf("%-24s %16s %16s\n", "sharpe", a.Metrics.Risk.Sharpe.StringFixed(4), b.Metrics.Risk.Sharpe.StringFixed(4))
	fmt.Printf("%-24s %16s %16s\n", "sortino", a.Metrics.Risk.Sortino.StringFixed(4), b.Metrics.Risk.Sortino.StringFixed(4))
	fmt.Printf("%-24s %16s %16s\n", "max_drawdown", a.Metrics.Risk.MaxDrawdown.StringFixed(4), b.Metrics.Risk.MaxDrawdown.StringFixed(4))
	fmt.Printf("%-24s %16s %16s\n", "win_rate", a.Metrics.Trading.WinRate.StringFixed(4), b.Metrics.Trading.WinRate.StringFixed(4))
	fmt.Printf("%-24s %16d %16d\n", "closed_trades", a.Metrics.Trading.TotalClosedTrades, b.Metrics.Trading.TotalClosedTrades)
}
