package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-backtest/internal/backtest"
)

// sweepResult pairs one parameter variation with its outcome, for the
// summary table printed once every worker has finished.
type sweepResult struct {
	kellyMultiplier decimal.Decimal
	result          *backtest.BacktestResult
	err             error
}

func newSweepCommand() *cobra.Command {
	var (
		dataDir    string
		outputDir  string
		kellyGrid  []float64
		workerPool int
		redisURL   string
		natsURL    string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run independent backtests across a kelly_multiplier parameter grid in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseCfg, err := configFromViper()
			if err != nil {
				return err
			}

			loaded, err := backtest.LoadCSVDataProvider(dataDir, baseCfg.Regions[0])
			if err != nil {
				return fmt.Errorf("loading data: %w", err)
			}
			provider := wrapWithCache(loaded, redisURL)

			if len(kellyGrid) == 0 {
				kellyGrid = []float64{0.25, 0.5, 0.75, 1.0}
			}

			jobs := make(chan float64, len(kellyGrid))
			results := make(chan sweepResult, len(kellyGrid))
			var wg sync.WaitGroup

			for i := 0; i < workerPool; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for multiplier := range jobs {
						cfg := *baseCfg
						cfg.KellyMultiplier = decimal.NewFromFloat(multiplier)
						if err := cfg.Validate(); err != nil {
							results <- sweepResult{kellyMultiplier: cfg.KellyMultiplier, err: err}
							continue
						}

						strategy, err := backtest.NewStrategy(&cfg)
						if err != nil {
							results <- sweepResult{kellyMultiplier: cfg.KellyMultiplier, err: err}
							continue
						}

						engine := backtest.NewBacktestEngine(&cfg, provider, strategy, log.WithField("kelly", multiplier))
						result, err := engine.Run(context.Background())
						results <- sweepResult{kellyMultiplier: cfg.KellyMultiplier, result: result, err: err}
					}
				}()
			}

			for _, m := range kellyGrid {
				jobs <- m
			}
			close(jobs)

			go func() {
				wg.Wait()
				close(results)
			}()

			store := backtest.NewResultStore(outputDir)
			for r := range results {
				if r.err != nil {
					log.WithField("kelly", r.kellyMultiplier).WithError(r.err).Error("sweep run failed")
					continue
				}
				runDir, err := store.Save(r.result)
				if err != nil {
					log.WithField("kelly", r.kellyMultiplier).WithError(err).Error("saving sweep result")
					continue
				}
				log.WithFields(map[string]interface{}{
					"kelly_multiplier": r.kellyMultiplier.String(),
					"sharpe":           r.result.Metrics.Risk.Sharpe.StringFixed(4),
					"total_return":     r.result.Metrics.Return.TotalReturn.StringFixed(4),
					"output":           runDir,
				}).Info("sweep run complete")
				publishRunCompleted(natsURL, r.result)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory of per-ticker CSV files")
	cmd.Flags().StringVar(&outputDir, "output", "./backtest_results", "directory to write run artifacts")
	cmd.Flags().Float64SliceVar(&kellyGrid, "kelly-grid", nil, "kelly_multiplier values to sweep (default 0.25,0.5,0.75,1.0)")
	cmd.Flags().IntVar(&workerPool, "workers", 4, "number of backtests to run concurrently")
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "optional Redis address (host:port) for read-through snapshot caching")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "optional NATS URL to publish backtest.run.completed on, once per sweep run")

	return cmd
}
