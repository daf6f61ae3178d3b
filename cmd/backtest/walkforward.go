package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-backtest/internal/backtest"
)

// walkForwardFold is one in-sample/out-of-sample slice of the configured
// window. Only the out-of-sample leg is backtested and reported; the
// in-sample dates are reserved for whatever parameter selection produced
// the config (a future concern, not implemented here).
type walkForwardFold struct {
	oosStart time.Time
	oosEnd   time.Time
}

func newWalkForwardCommand() *cobra.Command {
	var (
		dataDir    string
		outputDir  string
		foldMonths int
		stepMonths int
	)

	cmd := &cobra.Command{
		Use:   "walk-forward",
		Short: "Run a sequence of out-of-sample backtests over rolling windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper()
			if err != nil {
				return err
			}

			provider, err := backtest.LoadCSVDataProvider(dataDir, cfg.Regions[0])
			if err != nil {
				return fmt.Errorf("loading data: %w", err)
			}

			folds := buildWalkForwardFolds(cfg.StartDate, cfg.EndDate, foldMonths, stepMonths)
			if len(folds) == 0 {
				return fmt.Errorf("walk-forward: window too short for fold_months=%d", foldMonths)
			}

			store := backtest.NewResultStore(outputDir)
			for i, fold := range folds {
				foldCfg := *cfg
				foldCfg.StartDate = fold.oosStart
				foldCfg.EndDate = fold.oosEnd
				if err := foldCfg.Validate(); err != nil {
					return fmt.Errorf("fold %d: %w", i, err)
				}

				strategy, err := backtest.NewStrategy(&foldCfg)
				if err != nil {
					return fmt.Errorf("fold %d: %w", i, err)
				}

				engine := backtest.NewBacktestEngine(&foldCfg, provider, strategy,
					log.WithField("fold", i).WithField("oos_start", fold.oosStart.Format("2006-01-02")))
				result, err := engine.Run(context.Background())
				if err != nil {
					return fmt.Errorf("fold %d: running backtest: %w", i, err)
				}

				runDir, err := store.Save(result)
				if err != nil {
					return fmt.Errorf("fold %d: saving result: %w", i, err)
				}

				log.WithFields(map[string]interface{}{
					"fold":         i,
					"oos_start":    fold.oosStart.Format("2006-01-02"),
					"oos_end":      fold.oosEnd.Format("2006-01-02"),
					"total_return": result.Metrics.Return.TotalReturn.StringFixed(4),
					"sharpe":       result.Metrics.Risk.Sharpe.StringFixed(4),
					"output":       runDir,
				}).Info("walk-forward fold complete")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory of per-ticker CSV files")
	cmd.Flags().StringVar(&outputDir, "output", "./backtest_results", "directory to write run artifacts")
	cmd.Flags().IntVar(&foldMonths, "fold-months", 3, "length of each out-of-sample fold, in months")
	cmd.Flags().IntVar(&stepMonths, "step-months", 3, "months to advance between folds")

	return cmd
}

// buildWalkForwardFolds slices [start, end] into consecutive foldMonths-wide
// windows, advancing stepMonths between each. The final fold is clipped to
// end rather than dropped, so the whole configured window gets covered.
func buildWalkForwardFolds(start, end time.Time, foldMonths, stepMonths int) []walkForwardFold {
	if foldMonths <= 0 || stepMonths <= 0 || !start.Before(end) {
		return nil
	}

	var folds []walkForwardFold
	for cursor := start; cursor.Before(end); cursor = cursor.AddDate(0, stepMonths, 0) {
		foldEnd := cursor.AddDate(0, foldMonths, 0)
		if foldEnd.After(end) {
			foldEnd = end
		}
		folds = append(folds, walkForwardFold{oosStart: cursor, oosEnd: foldEnd})
		if !foldEnd.Before(end) {
			break
		}
	}
	return folds
}
