package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mselser95/polymarket-surveillance/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-surveillance",
	Short: "Polymarket insider-trading surveillance engine",
	Long: `Polymarket surveillance engine that watches public trades, news and
influential social accounts, scores suspicious activity and raises alerts.

The engine polls the Gamma and Data APIs, folds every trade into per-wallet
aggregates, correlates signals with market reactions and delivers alerts
to the configured sinks.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envFile, _ := cmd.Flags().GetString("env-file")
		err := godotenv.Load(envFile)
		if err != nil && envFile != ".env" {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before the configuration")
}

// loadConfig reads the configuration and builds the logger every command uses.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}
