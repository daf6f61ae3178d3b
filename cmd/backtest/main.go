package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// logLevel and configFile are shared across every subcommand, following the
// flag-then-config precedence the source CLI used for data dir/strategy
// overrides.
var (
	logLevel   string
	configFile string
	log        = logrus.New()
)

func main() {
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Historical equity strategy backtesting engine",
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default: ./backtest.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cobra.OnInitialize(initConfig, initLogger)

	root.AddCommand(newRunCommand())
	root.AddCommand(newSweepCommand())
	root.AddCommand(newWalkForwardCommand())
	root.AddCommand(newCompareCommand())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("backtest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("BACKTEST")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}
}

func initLogger() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})
}
