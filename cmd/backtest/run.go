package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jsj9346/spock-backtest/internal/backtest"
	"github.com/jsj9346/spock-backtest/pkg/types"
)

func newRunCommand() *cobra.Command {
	var (
		dataDir   string
		outputDir string
		redisURL  string
		natsURL   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single backtest against historical data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			baseProvider, err := backtest.LoadCSVDataProvider(dataDir, cfg.Regions[0])
			if err != nil {
				return fmt.Errorf("loading data: %w", err)
			}
			provider := wrapWithCache(baseProvider, redisURL)

			strategy, err := backtest.NewStrategy(cfg)
			if err != nil {
				return err
			}

			engine := backtest.NewBacktestEngine(cfg, provider, strategy, log.WithField("run", "single"))
			result, err := engine.Run(context.Background())
			if err != nil {
				return fmt.Errorf("running backtest: %w", err)
			}

			store := backtest.NewResultStore(outputDir)
			runDir, err := store.Save(result)
			if err != nil {
				return fmt.Errorf("saving result: %w", err)
			}

			log.WithFields(map[string]interface{}{
				"run_id":       result.ID,
				"total_return": result.Metrics.Return.TotalReturn.StringFixed(4),
				"sharpe":       result.Metrics.Risk.Sharpe.StringFixed(4),
				"trades":       len(result.Trades),
				"output":       runDir,
			}).Info("backtest complete")

			publishRunCompleted(natsURL, result)

			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory of per-ticker CSV files")
	cmd.Flags().StringVar(&outputDir, "output", "./backtest_results", "directory to write run artifacts")
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "optional Redis address (host:port) for read-through snapshot caching")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "optional NATS URL to publish backtest.run.completed on")

	return cmd
}

// wrapWithCache decorates provider with a Redis read-through cache when
// redisURL is set. A failed ping degrades to the uncached provider: caching
// is an optimization, never a correctness dependency.
func wrapWithCache(provider backtest.DataProvider, redisURL string) backtest.DataProvider {
	if redisURL == "" {
		return provider
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisURL})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, continuing without snapshot cache")
		return provider
	}
	return backtest.NewCachingDataProvider(provider, rdb, log)
}

// publishRunCompleted emits a best-effort backtest.run.completed event when
// natsURL is set. Connection or publish failures are logged, never fatal.
func publishRunCompleted(natsURL string, result *backtest.BacktestResult) {
	if natsURL == "" {
		return
	}
	publisher, err := backtest.NewResultPublisher(natsURL, log)
	if err != nil {
		log.WithError(err).Warn("nats unreachable, skipping run-completed publish")
		return
	}
	defer publisher.Close()
	if err := publisher.PublishRunCompleted(result); err != nil {
		log.WithError(err).Warn("publishing run-completed event failed")
	}
}

// configFromViper builds a BacktestConfig field-by-field from viper keys
// rather than viper.Unmarshal into a struct, since decimal.Decimal fields
// need explicit float-to-decimal conversion.
func configFromViper() (*backtest.BacktestConfig, error) {
	start, err := time.Parse("2006-01-02", viper.GetString("start_date"))
	if err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", viper.GetString("end_date"))
	if err != nil {
		return nil, fmt.Errorf("parsing end_date: %w", err)
	}

	region := types.Region(viper.GetString("region"))
	if region == "" {
		region = types.RegionKR
	}

	cfg := &backtest.BacktestConfig{
		StartDate:             start,
		EndDate:               end,
		Regions:               []types.Region{region},
		Tickers:               viper.GetStringSlice("tickers"),
		InitialCapital:        decimalOrDefault("initial_capital", 100_000_000),
		StrategyID:            viper.GetString("strategy_id"),
		StrategyParams:        viper.GetStringMap("strategy_params"),
		KellyMultiplier:       decimalOrDefault("kelly_multiplier", 0.5),
		MaxPositionFraction:   decimalOrDefault("max_position_fraction", 0.1),
		MaxSectorFraction:     decimalOrDefault("max_sector_fraction", 0.3),
		MinCashFraction:       decimalOrDefault("min_cash_fraction", 0.05),
		StopLossATRMultiplier: decimalOrDefault("stop_loss_atr_multiplier", 2),
		StopLossMin:           decimalOrDefault("stop_loss_min", 0.03),
		StopLossMax:           decimalOrDefault("stop_loss_max", 0.15),
		ProfitTarget:          decimalOrDefault("profit_target", 0.2),
		CommissionRate:        decimalOrDefault("commission_rate", 0.00015),
		BaseSlippageBps:       decimalOrDefault("base_slippage_bps", 10),
		RiskFreeRate:          decimalOrDefault("risk_free_rate", 0),
		MaxOpenPositions:      viper.GetInt("max_open_positions"),
	}
	if cfg.MaxOpenPositions == 0 {
		cfg.MaxOpenPositions = 20
	}
	return cfg, nil
}

func decimalOrDefault(key string, def float64) decimal.Decimal {
	if !viper.IsSet(key) {
		return decimal.NewFromFloat(def)
	}
	return decimal.NewFromFloat(viper.GetFloat64(key))
}
